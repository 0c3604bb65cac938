package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eunmann/asorg-db/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// ProgressTracker tracks how many snapshot files have been processed and
// estimates the time left. It is safe for concurrent use.
type ProgressTracker struct {
	total     int64
	completed atomic.Int64
	skipped   atomic.Int64
	startTime time.Time
	log       zerolog.Logger
	phase     string

	// logEvery limits Tick output to every n-th completion.
	logEvery int64

	mu              sync.Mutex
	recentDurations []time.Duration
	maxRecent       int
}

// NewProgressTracker creates a tracker for total items.
func NewProgressTracker(phase string, total int64, log zerolog.Logger) *ProgressTracker {
	every := total / 20
	if every < 1 {
		every = 1
	}
	return &ProgressTracker{
		total:           total,
		startTime:       time.Now(),
		log:             log,
		phase:           phase,
		logEvery:        every,
		recentDurations: make([]time.Duration, 0, 16),
		maxRecent:       16,
	}
}

// RecordCompletion records that an item completed in d.
func (pt *ProgressTracker) RecordCompletion(d time.Duration) {
	pt.completed.Add(1)

	pt.mu.Lock()
	if len(pt.recentDurations) >= pt.maxRecent {
		pt.recentDurations = pt.recentDurations[1:]
	}
	pt.recentDurations = append(pt.recentDurations, d)
	pt.mu.Unlock()
}

// RecordSkip records that an item was skipped.
func (pt *ProgressTracker) RecordSkip() {
	pt.skipped.Add(1)
}

// Progress returns current progress counts.
func (pt *ProgressTracker) Progress() (completed, skipped, total int64) {
	return pt.completed.Load(), pt.skipped.Load(), pt.total
}

// ProgressPct returns the progress percentage (0-100).
func (pt *ProgressTracker) ProgressPct() float64 {
	if pt.total == 0 {
		return 100.0
	}
	done := pt.completed.Load() + pt.skipped.Load()
	return float64(done) * 100.0 / float64(pt.total)
}

// ETA estimates the remaining time from the moving average of recent items.
func (pt *ProgressTracker) ETA() time.Duration {
	completed := pt.completed.Load()
	if completed == 0 {
		return 0
	}
	remaining := pt.Remaining()
	if remaining <= 0 {
		return 0
	}

	pt.mu.Lock()
	var avg time.Duration
	if n := len(pt.recentDurations); n > 0 {
		var sum time.Duration
		for _, d := range pt.recentDurations {
			sum += d
		}
		avg = sum / time.Duration(n)
	} else {
		avg = time.Since(pt.startTime) / time.Duration(completed)
	}
	pt.mu.Unlock()

	return avg * time.Duration(remaining)
}

// Remaining returns how many items are left.
func (pt *ProgressTracker) Remaining() int64 {
	return pt.total - pt.completed.Load() - pt.skipped.Load()
}

// Elapsed returns the time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

// Tick logs a progress line every few completions and on the last one.
func (pt *ProgressTracker) Tick(msg string) {
	completed, skipped, total := pt.Progress()
	done := completed + skipped
	if done != total && done%pt.logEvery != 0 {
		return
	}
	NewCompletionEvent(pt.log, "progress", pt.phase, pt.Elapsed()).
		ProgressFromTracker(pt).
		Log(msg)
}

// CompletionEvent builds consistent completion log events.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  map[string]interface{}
	order   []string
}

// NewCompletionEvent creates a completion event builder.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
		fields:  make(map[string]interface{}),
	}
}

func (ce *CompletionEvent) set(key string, val interface{}) *CompletionEvent {
	if _, ok := ce.fields[key]; !ok {
		ce.order = append(ce.order, key)
	}
	ce.fields[key] = val
	return ce
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	return ce.set(key, val)
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	return ce.set(key, val)
}

// Bytes adds a byte count with a human-readable companion in pretty mode.
func (ce *CompletionEvent) Bytes(key string, bytes int64) *CompletionEvent {
	ce.set(key, bytes)
	if IsPrettyMode() {
		ce.set(key+"_h", humanfmt.Bytes(bytes))
	}
	return ce
}

// Count adds a count with a human-readable companion in pretty mode.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.set(key, n)
	if IsPrettyMode() {
		ce.set(key+"_h", humanfmt.Count(n))
	}
	return ce
}

// ProgressFromTracker adds progress fields from a ProgressTracker.
func (ce *CompletionEvent) ProgressFromTracker(pt *ProgressTracker) *CompletionEvent {
	completed, skipped, total := pt.Progress()
	ce.set("completed", completed)
	ce.set("skipped", skipped)
	ce.set("total", total)
	ce.set("progress_pct", pt.ProgressPct())
	if eta := pt.ETA(); eta > 0 {
		ce.set("eta_ms", eta.Milliseconds())
		if IsPrettyMode() {
			ce.set("eta_h", humanfmt.Duration(eta))
		}
	}
	return ce
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())
	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}
	for _, k := range ce.order {
		e = e.Interface(k, ce.fields[k])
	}
	e.Msg(msg)
}

// Log emits the event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

// PhaseComplete starts a phase completion event.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "phase_completed", phase, elapsed)
}

// FileProcessed starts a per-snapshot completion event.
func FileProcessed(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_processed", phase, elapsed)
}

// FileCreated starts an output file completion event.
func FileCreated(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "file_created", phase, elapsed)
}
