package observability

import (
	"os"
	"sync"
	"time"
)

// Op identifies a logical store operation being measured. The set is
// closed so the metrics map cannot grow without bound over a long-running
// process.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpSave   Op = "save"
	OpLoad   Op = "load"
	OpSearch Op = "search"
	OpBackup Op = "backup"
)

// Ops lists every measurable operation.
var Ops = []Op{OpInsert, OpUpdate, OpDelete, OpSave, OpLoad, OpSearch, OpBackup}

const (
	// DefaultWindowSize caps the per-operation duration window.
	DefaultWindowSize = 100

	// DefaultSlowThreshold is the duration above which an operation is
	// logged as slow.
	DefaultSlowThreshold = 100 * time.Millisecond
)

// Stats are aggregate duration statistics for one operation.
type Stats struct {
	Count int           `json:"count"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Metrics collects per-operation duration windows. Recording is advisory
// only: it never blocks or alters the operation it measures.
type Metrics struct {
	mu            sync.RWMutex
	windows       map[Op][]time.Duration
	windowSize    int
	slowThreshold time.Duration
	logger        *Logger
}

// NewMetrics creates a collector. logger may be nil to disable slow-op
// warnings.
func NewMetrics(logger *Logger) *Metrics {
	windows := make(map[Op][]time.Duration, len(Ops))
	for _, op := range Ops {
		windows[op] = make([]time.Duration, 0, DefaultWindowSize)
	}
	return &Metrics{
		windows:       windows,
		windowSize:    DefaultWindowSize,
		slowThreshold: DefaultSlowThreshold,
		logger:        logger,
	}
}

// SetSlowThreshold overrides the slow-operation warning threshold.
func (m *Metrics) SetSlowThreshold(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.slowThreshold = d
	}
}

// Observe records one operation duration. Unknown ops are dropped.
func (m *Metrics) Observe(op Op, d time.Duration) {
	m.mu.Lock()
	window, ok := m.windows[op]
	if !ok {
		m.mu.Unlock()
		return
	}
	if len(window) >= m.windowSize {
		// Shift left (drop oldest).
		copy(window, window[1:])
		window[len(window)-1] = d
	} else {
		window = append(window, d)
	}
	m.windows[op] = window
	slow := d >= m.slowThreshold
	m.mu.Unlock()

	if slow && m.logger != nil {
		m.logger.Warn("slow operation",
			"op", string(op),
			"duration_ms", d.Milliseconds(),
		)
	}
}

// Timed runs fn, observing its duration under op, and returns fn's error.
func (m *Metrics) Timed(op Op, fn func() error) error {
	start := time.Now()
	err := fn()
	m.Observe(op, time.Since(start))
	return err
}

// Stats returns aggregate statistics for one operation.
func (m *Metrics) Stats(op Op) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	window := m.windows[op]
	if len(window) == 0 {
		return Stats{}
	}

	var sum time.Duration
	min, max := window[0], window[0]
	for _, d := range window {
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return Stats{
		Count: len(window),
		Avg:   sum / time.Duration(len(window)),
		Min:   min,
		Max:   max,
	}
}

// AllStats returns statistics for every operation with recorded samples.
func (m *Metrics) AllStats() map[Op]Stats {
	out := make(map[Op]Stats, len(Ops))
	for _, op := range Ops {
		if s := m.Stats(op); s.Count > 0 {
			out[op] = s
		}
	}
	return out
}

// Reset clears all windows.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for op, w := range m.windows {
		m.windows[op] = w[:0]
	}
}

// FileSize returns the current size of the store file in bytes, or 0 if
// the file cannot be read.
func (m *Metrics) FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
