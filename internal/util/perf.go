package util

import (
	"sync"
	"time"
)

// PerfMetric aggregates the timings recorded under one name.
type PerfMetric struct {
	Count     int64
	TotalTime time.Duration
	Last      time.Duration
}

// PerfTracker collects operation timings. It is only fed while debug
// logging is on.
type PerfTracker struct {
	mu      sync.Mutex
	metrics map[string]PerfMetric
}

var (
	globalPerf     *PerfTracker
	globalPerfOnce sync.Once
)

// GetPerfTracker returns the global performance tracker
func GetPerfTracker() *PerfTracker {
	globalPerfOnce.Do(func() {
		globalPerf = &PerfTracker{metrics: make(map[string]PerfMetric)}
	})
	return globalPerf
}

// Record adds one timing for name.
func (pt *PerfTracker) Record(name string, d time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	m := pt.metrics[name]
	m.Count++
	m.TotalTime += d
	m.Last = d
	pt.metrics[name] = m
}

// Metric returns the aggregate for name.
func (pt *PerfTracker) Metric(name string) PerfMetric {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.metrics[name]
}

// Timer represents an active timing operation
type Timer struct {
	name  string
	start time.Time
}

// StartTimer starts a timer, or returns nil when debug is off.
func StartTimer(name string) *Timer {
	if !IsDebug() {
		return nil
	}
	return &Timer{name: name, start: time.Now()}
}

// StopAndLog records the elapsed time and logs it at debug level. It is
// safe to call on a nil Timer.
func (t *Timer) StopAndLog(keyvals ...interface{}) time.Duration {
	if t == nil {
		return 0
	}
	d := time.Since(t.start)
	GetPerfTracker().Record(t.name, d)
	Debug("[PERF] "+t.name, append([]interface{}{"took", d}, keyvals...)...)
	return d
}
