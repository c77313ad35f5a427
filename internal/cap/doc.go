// Package cap implements capability-based access control for kernel
// resources.
//
// A capability is an unforgeable, rights-bearing token identified by an
// opaque id. Capabilities are derived with monotonically narrowing
// rights: a child can never hold a right its parent lacked at derivation
// time. Revocation is absolute: a revoked capability fails every
// authorization check regardless of its rights bits.
//
// Capability objects are owned by the IPC registry; a Space records only
// which ids a process holds.
package cap
