package observability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/shellguide/internal/config"
)

// AnomalyDetector flags sessions that probe the sandbox: a high share of
// refused command lines, or an attempt rate no learner types by hand.
// Counts are kept in per-session sliding windows.
type AnomalyDetector struct {
	mu       sync.Mutex
	refused  map[string]*slidingWindow
	accepted map[string]*slidingWindow
	flagged  map[string]time.Time
	cfg      *config.AnomalyConfig
	logger   *slog.Logger
	now      func() time.Time
}

type slidingWindow struct {
	entries []windowEntry
	window  time.Duration
}

type windowEntry struct {
	timestamp time.Time
	value     float64
}

// NewAnomalyDetector creates an anomaly detector from config.
func NewAnomalyDetector(cfg *config.AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AnomalyDetector{
		refused:  make(map[string]*slidingWindow),
		accepted: make(map[string]*slidingWindow),
		flagged:  make(map[string]time.Time),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (a *AnomalyDetector) windowDuration() time.Duration {
	secs := a.cfg.WindowSeconds
	if secs <= 0 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// RecordRefusal records a command line refused before execution.
func (a *AnomalyDetector) RecordRefusal(sessionID string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.getOrCreateWindow(a.refused, sessionID).add(1, a.now())
	a.check(sessionID)
}

// RecordAccepted records a command line that passed validation and ran.
func (a *AnomalyDetector) RecordAccepted(sessionID string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.getOrCreateWindow(a.accepted, sessionID).add(1, a.now())
	a.check(sessionID)
}

// Flagged reports whether sessionID tripped a threshold inside the current window.
func (a *AnomalyDetector) Flagged(sessionID string) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.flagged[sessionID]
	return ok && a.now().Sub(at) < a.windowDuration()
}

// Forget drops the windows of a closed session.
func (a *AnomalyDetector) Forget(sessionID string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.refused, sessionID)
	delete(a.accepted, sessionID)
	delete(a.flagged, sessionID)
}

// check evaluates both thresholds for a session.
// Must be called with a.mu held.
func (a *AnomalyDetector) check(sessionID string) {
	now := a.now()
	refused := a.getOrCreateWindow(a.refused, sessionID).sum(now)
	accepted := a.getOrCreateWindow(a.accepted, sessionID).sum(now)
	total := refused + accepted

	if threshold := a.cfg.RefusalRateThreshold; threshold > 0 && total >= 5 {
		rate := refused / total
		if rate > threshold {
			a.flag(sessionID, now, "anomaly detected: high refusal rate",
				slog.Float64("refusal_rate", rate),
				slog.Float64("threshold", threshold),
				slog.Float64("refused", refused),
				slog.Float64("total", total),
			)
		}
	}

	if limit := a.cfg.AttemptsPerMinuteLimit; limit > 0 {
		perMinute := total / a.windowDuration().Minutes()
		if perMinute > float64(limit) {
			a.flag(sessionID, now, "anomaly detected: attempt rate",
				slog.Float64("attempts_per_minute", perMinute),
				slog.Int("limit", limit),
			)
		}
	}
}

// flag logs once per window per session.
func (a *AnomalyDetector) flag(sessionID string, now time.Time, msg string, attrs ...any) {
	if at, ok := a.flagged[sessionID]; ok && now.Sub(at) < a.windowDuration() {
		return
	}
	a.flagged[sessionID] = now
	a.logger.Warn(msg, append([]any{slog.String("session_id", sessionID)}, attrs...)...)
}

func (a *AnomalyDetector) getOrCreateWindow(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.windowDuration()}
		m[key] = w
	}
	return w
}

// add appends a value and prunes expired entries.
func (w *slidingWindow) add(value float64, now time.Time) {
	w.entries = append(w.entries, windowEntry{timestamp: now, value: value})
	w.prune(now)
}

// sum returns the total value within the window.
func (w *slidingWindow) sum(now time.Time) float64 {
	w.prune(now)
	var total float64
	for _, e := range w.entries {
		total += e.value
	}
	return total
}

// prune removes entries older than the window duration.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
