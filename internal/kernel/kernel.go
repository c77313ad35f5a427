package kernel

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quillos/kernel/internal/cap"
	"github.com/quillos/kernel/internal/config"
	"github.com/quillos/kernel/internal/futex"
	"github.com/quillos/kernel/internal/ipc"
	"github.com/quillos/kernel/internal/ksyscall"
	"github.com/quillos/kernel/internal/logging"
	"github.com/quillos/kernel/internal/monitoring"
	"github.com/quillos/kernel/internal/sched"
)

// Kernel is the assembled control plane.
type Kernel struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *monitoring.Metrics
	bootID  string
	started time.Time

	mem        *FlatMemory
	registry   *ipc.Registry
	scheduler  *sched.Scheduler
	futexes    *futex.Table
	dispatcher *ksyscall.Dispatcher

	mu           sync.Mutex
	nextPID      uint64
	spaces       map[uint64]*cap.Space
	lastSwitches uint64
	queueLabels  map[string]struct{}
}

// New wires every subsystem. cfg and metrics may be nil; a nil logger
// is replaced with a no-op logger.
func New(cfg *config.Config, log *logging.Logger, metrics *monitoring.Metrics) *Kernel {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NewNop()
	}

	mem := NewFlatMemory()
	scheduler := sched.New(log)
	registry := ipc.NewRegistry(log)
	futexes := futex.NewTable(mem)

	// Capabilities are stamped with the scheduler's tick clock.
	registry.SetClock(scheduler.Ticks)
	registry.SetDefaultQueueLimit(cfg.IPC.QueueLimit)

	if cfg.Sched.TimeSliceMS > 0 {
		ticks := uint64(cfg.Sched.TimeSliceMS) * sched.TimerFrequencyHz / 1000
		if ticks == 0 {
			ticks = 1
		}
		scheduler.SetAllQuanta(ticks)
	}

	k := &Kernel{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		bootID:    uuid.NewString(),
		started:   time.Now(),
		mem:       mem,
		registry:  registry,
		scheduler: scheduler,
		futexes:   futexes,
		nextPID:     1,
		spaces:      make(map[uint64]*cap.Space),
		queueLabels: make(map[string]struct{}),
	}
	k.dispatcher = ksyscall.NewDispatcher(registry, scheduler, futexes, mem, metrics, log)

	log.Info("kernel assembled",
		zap.String("boot_id", k.bootID),
		zap.Int("queue_limit", cfg.IPC.QueueLimit),
		zap.Int("time_slice_ms", cfg.Sched.TimeSliceMS))

	return k
}

// BootID returns the unique id of this kernel instance.
func (k *Kernel) BootID() string {
	return k.bootID
}

// Uptime returns the time since assembly.
func (k *Kernel) Uptime() time.Duration {
	return time.Since(k.started)
}

// Memory returns the task-memory model.
func (k *Kernel) Memory() *FlatMemory {
	return k.mem
}

// Registry returns the IPC registry.
func (k *Kernel) Registry() *ipc.Registry {
	return k.registry
}

// Scheduler returns the scheduler.
func (k *Kernel) Scheduler() *sched.Scheduler {
	return k.scheduler
}

// Futexes returns the futex table.
func (k *Kernel) Futexes() *futex.Table {
	return k.futexes
}

// Dispatcher returns the syscall dispatcher.
func (k *Kernel) Dispatcher() *ksyscall.Dispatcher {
	return k.dispatcher
}

// CreateProcess allocates a process id, spawns its initial thread at
// the given priority, and issues the process's root capability with
// full rights over itself.
func (k *Kernel) CreateProcess(priority sched.Priority) (uint64, *sched.Task) {
	k.mu.Lock()
	pid := k.nextPID
	k.nextPID++
	k.mu.Unlock()

	t := k.dispatcher.SpawnThread(pid, priority)

	capID := k.registry.CreateCapabilityFull(cap.TypeProcess, pid, pid)
	sp := cap.NewSpace(pid)
	sp.Add(capID)
	k.mu.Lock()
	k.spaces[pid] = sp
	k.mu.Unlock()

	if k.metrics != nil {
		k.metrics.RecordCapIssued()
	}

	k.log.Info("process created",
		zap.Uint64("pid", pid),
		zap.Uint64("task", uint64(t.ID())),
		zap.String("priority", priority.String()))

	return pid, t
}

// GrantCapability issues an all-rights capability to a process and
// records it in the process's capability space.
func (k *Kernel) GrantCapability(pid uint64, typ cap.Type, resource uint64) (cap.ID, error) {
	k.mu.Lock()
	sp, ok := k.spaces[pid]
	k.mu.Unlock()
	if !ok {
		return cap.NullID, ipc.ErrPermissionDenied
	}

	id := k.registry.CreateCapabilityFull(typ, resource, pid)
	sp.Add(id)
	if k.metrics != nil {
		k.metrics.RecordCapIssued()
	}
	return id, nil
}

// ProcessCapabilities returns the capability ids a process holds, in
// ascending order.
func (k *Kernel) ProcessCapabilities(pid uint64) []cap.ID {
	k.mu.Lock()
	sp, ok := k.spaces[pid]
	k.mu.Unlock()
	if !ok {
		return nil
	}
	return sp.All()
}

// TerminateProcess tears down a process: its threads, futex waits,
// channel state, and every capability subtree rooted in its space.
func (k *Kernel) TerminateProcess(pid uint64, code int32) {
	k.dispatcher.TerminateProcess(pid, code)

	k.mu.Lock()
	sp, ok := k.spaces[pid]
	delete(k.spaces, pid)
	k.mu.Unlock()
	if !ok {
		return
	}

	revoked := 0
	for _, id := range sp.All() {
		if n, err := k.registry.RevokeCapability(id); err == nil {
			revoked += n
		}
	}
	if revoked > 0 && k.metrics != nil {
		k.metrics.RecordCapRevoked(revoked)
	}
}

// Syscall dispatches one syscall for the running task.
func (k *Kernel) Syscall(c ksyscall.Context) int64 {
	return k.dispatcher.Dispatch(c)
}

// Tick advances the timer by one tick and reschedules when the running
// task's slice expired. Gauges follow the new state.
func (k *Kernel) Tick() {
	if k.scheduler.Tick() {
		k.scheduler.Schedule()
	}
	if k.metrics != nil {
		k.metrics.TimerTicks.Inc()
	}
	k.syncMetrics()
}

// syncMetrics publishes scheduler and registry state to the gauges and
// folds new context switches into the counter.
func (k *Kernel) syncMetrics() {
	if k.metrics == nil {
		return
	}

	switches := k.scheduler.ContextSwitches()
	k.mu.Lock()
	delta := switches - k.lastSwitches
	k.lastSwitches = switches
	k.mu.Unlock()
	k.metrics.RecordContextSwitches(int(delta))

	k.metrics.SetTasksReady(k.scheduler.ReadyCount())
	k.metrics.SetTasksBlocked(k.scheduler.BlockedCount())
	k.metrics.SetChannelsOpen(k.registry.GetStats().OpenChannels)

	// Removed channels must take their gauge series with them.
	seen := make(map[string]struct{})
	for _, ch := range k.registry.Channels() {
		label := strconv.FormatUint(ch.ID, 10)
		seen[label] = struct{}{}
		k.metrics.SetQueueDepth(label, ch.Queued)
	}
	k.mu.Lock()
	stale := k.queueLabels
	k.queueLabels = seen
	k.mu.Unlock()
	for label := range stale {
		if _, ok := seen[label]; !ok {
			k.metrics.DropQueueDepth(label)
		}
	}
}

// Stats is the aggregated control-plane summary for the JSON API.
type Stats struct {
	BootID          string    `json:"boot_id"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	Ticks           uint64    `json:"ticks"`
	ContextSwitches uint64    `json:"context_switches"`
	TasksReady      int       `json:"tasks_ready"`
	TasksBlocked    int       `json:"tasks_blocked"`
	IPC             ipc.Stats `json:"ipc"`
	FutexEntries    int       `json:"futex_entries"`
}

// GetStats returns the aggregated summary.
func (k *Kernel) GetStats() Stats {
	return Stats{
		BootID:          k.bootID,
		UptimeSeconds:   int64(k.Uptime().Seconds()),
		Ticks:           k.scheduler.Ticks(),
		ContextSwitches: k.scheduler.ContextSwitches(),
		TasksReady:      k.scheduler.ReadyCount(),
		TasksBlocked:    k.scheduler.BlockedCount(),
		IPC:             k.registry.GetStats(),
		FutexEntries:    k.futexes.Size(),
	}
}

// Channels returns a summary of every channel endpoint.
func (k *Kernel) Channels() []ipc.ChannelInfo {
	return k.registry.Channels()
}

// Tasks returns a summary of every known task.
func (k *Kernel) Tasks() []sched.TaskInfo {
	return k.scheduler.Snapshot()
}

// CapabilityInfo is a point-in-time capability summary for the API.
type CapabilityInfo struct {
	ID       uint64   `json:"id"`
	Type     string   `json:"type"`
	Rights   uint32   `json:"rights"`
	Resource uint64   `json:"resource"`
	Owner    uint64   `json:"owner"`
	Parent   uint64   `json:"parent"`
	Children []uint64 `json:"children"`
	Created  uint64   `json:"created_at_tick"`
}

// Capability returns the summary for a valid capability id.
func (k *Kernel) Capability(id cap.ID) (CapabilityInfo, error) {
	c, err := k.registry.ValidateCapability(id)
	if err != nil {
		return CapabilityInfo{}, err
	}

	children := c.Children()
	raw := make([]uint64, len(children))
	for i, child := range children {
		raw[i] = uint64(child)
	}

	return CapabilityInfo{
		ID:       uint64(c.ID()),
		Type:     c.Type().String(),
		Rights:   uint32(c.Rights()),
		Resource: c.Resource(),
		Owner:    c.Owner(),
		Parent:   uint64(c.Parent()),
		Children: raw,
		Created:  c.CreatedAt(),
	}, nil
}
