package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the kernel control plane.
type Metrics struct {
	// Scheduler metrics
	ContextSwitches prometheus.Counter
	TasksReady      prometheus.Gauge
	TasksBlocked    prometheus.Gauge
	TimerTicks      prometheus.Counter

	// IPC metrics
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	SendErrors       *prometheus.CounterVec
	ChannelsOpen     prometheus.Gauge
	QueueDepth       *prometheus.GaugeVec

	// Capability metrics
	CapsIssued  prometheus.Counter
	CapsRevoked prometheus.Counter

	// Futex metrics
	FutexWaits prometheus.Counter
	FutexWakes prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON stats API.
type Snapshot struct {
	ContextSwitches  int64 `json:"context_switches"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	SendErrors       int64 `json:"send_errors"`
	CapsIssued       int64 `json:"caps_issued"`
	CapsRevoked      int64 `json:"caps_revoked"`
	FutexWaits       int64 `json:"futex_waits"`
	FutexWakes       int64 `json:"futex_wakes"`
	UptimeSeconds    int64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		ContextSwitches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_context_switches_total",
				Help: "Total number of context switches",
			},
		),
		TasksReady: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_tasks_ready",
				Help: "Number of tasks in ready queues",
			},
		),
		TasksBlocked: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_tasks_blocked",
				Help: "Number of blocked tasks",
			},
		),
		TimerTicks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_timer_ticks_total",
				Help: "Total number of timer ticks processed",
			},
		),

		MessagesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_ipc_messages_sent_total",
				Help: "Total number of IPC messages sent",
			},
		),
		MessagesReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_ipc_messages_received_total",
				Help: "Total number of IPC messages received",
			},
		),
		SendErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_ipc_send_errors_total",
				Help: "Total number of failed IPC sends",
			},
			[]string{"reason"},
		),
		ChannelsOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_ipc_channels_open",
				Help: "Number of open channel endpoints",
			},
		),
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kernel_ipc_queue_depth",
				Help: "Pending messages per channel",
			},
			[]string{"channel"},
		),

		CapsIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_capabilities_issued_total",
				Help: "Total number of capabilities issued",
			},
		),
		CapsRevoked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_capabilities_revoked_total",
				Help: "Total number of capabilities revoked",
			},
		),

		FutexWaits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_futex_waits_total",
				Help: "Total number of futex wait operations that blocked",
			},
		),
		FutexWakes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_futex_wakes_total",
				Help: "Total number of tasks woken by futex wake",
			},
		),

		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_http_requests_total",
				Help: "Total HTTP requests to the introspection API",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_uptime_seconds",
				Help: "Control plane uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordContextSwitch records one completed context switch.
func (m *Metrics) RecordContextSwitch() {
	m.ContextSwitches.Inc()
	m.mu.Lock()
	m.snapshot.ContextSwitches++
	m.mu.Unlock()
}

// RecordContextSwitches records n completed context switches at once.
func (m *Metrics) RecordContextSwitches(n int) {
	if n <= 0 {
		return
	}
	m.ContextSwitches.Add(float64(n))
	m.mu.Lock()
	m.snapshot.ContextSwitches += int64(n)
	m.mu.Unlock()
}

// RecordSend records a successful IPC send.
func (m *Metrics) RecordSend() {
	m.MessagesSent.Inc()
	m.mu.Lock()
	m.snapshot.MessagesSent++
	m.mu.Unlock()
}

// RecordReceive records a successful IPC receive.
func (m *Metrics) RecordReceive() {
	m.MessagesReceived.Inc()
	m.mu.Lock()
	m.snapshot.MessagesReceived++
	m.mu.Unlock()
}

// RecordSendError records a failed IPC send by reason.
func (m *Metrics) RecordSendError(reason string) {
	m.SendErrors.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.snapshot.SendErrors++
	m.mu.Unlock()
}

// RecordCapIssued records one issued capability.
func (m *Metrics) RecordCapIssued() {
	m.CapsIssued.Inc()
	m.mu.Lock()
	m.snapshot.CapsIssued++
	m.mu.Unlock()
}

// RecordCapRevoked records n revoked capabilities.
func (m *Metrics) RecordCapRevoked(n int) {
	m.CapsRevoked.Add(float64(n))
	m.mu.Lock()
	m.snapshot.CapsRevoked += int64(n)
	m.mu.Unlock()
}

// RecordFutexWait records one blocking futex wait.
func (m *Metrics) RecordFutexWait() {
	m.FutexWaits.Inc()
	m.mu.Lock()
	m.snapshot.FutexWaits++
	m.mu.Unlock()
}

// RecordFutexWake records n tasks woken.
func (m *Metrics) RecordFutexWake(n int) {
	m.FutexWakes.Add(float64(n))
	m.mu.Lock()
	m.snapshot.FutexWakes += int64(n)
	m.mu.Unlock()
}

// SetTasksReady sets the ready-task gauge.
func (m *Metrics) SetTasksReady(count int) {
	m.TasksReady.Set(float64(count))
}

// SetTasksBlocked sets the blocked-task gauge.
func (m *Metrics) SetTasksBlocked(count int) {
	m.TasksBlocked.Set(float64(count))
}

// SetChannelsOpen sets the open-channels gauge.
func (m *Metrics) SetChannelsOpen(count int) {
	m.ChannelsOpen.Set(float64(count))
}

// SetQueueDepth sets the pending-message gauge for one channel.
func (m *Metrics) SetQueueDepth(channel string, depth int) {
	m.QueueDepth.WithLabelValues(channel).Set(float64(depth))
}

// DropQueueDepth removes a dead channel's gauge series.
func (m *Metrics) DropQueueDepth(channel string) {
	m.QueueDepth.DeleteLabelValues(channel)
}

// GetSnapshot returns current metric values for the JSON API.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.snapshot
	snap.UptimeSeconds = int64(time.Since(m.startTime).Seconds())
	return snap
}
