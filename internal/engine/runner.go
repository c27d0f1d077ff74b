package engine

import (
	"context"
	"sync"
	"time"

	"github.com/inocsim/server/internal/platform/logger"
	"github.com/inocsim/server/internal/platform/metrics"
)

// DefaultFrameInterval is how often the runner samples wall time (20 frames/s).
const DefaultFrameInterval = 50 * time.Millisecond

// TickHandler observes the result of every frame. Handlers run on the runner
// goroutine after the engine lock is released.
type TickHandler func(res TickResult, err error)

// Runner drives an Engine from real elapsed time.
// It does not know about hosts or inoculations, only frames and wall deltas.
type Runner struct {
	engine   *Engine
	logger   *logger.Logger
	metrics  *metrics.Collector
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	handlers []TickHandler
	frames   int64

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a runner for eng. A non-positive interval falls back to
// DefaultFrameInterval.
func NewRunner(eng *Engine, log *logger.Logger, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Runner{
		engine:   eng,
		logger:   log,
		metrics:  metrics.Get(),
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// WithMetrics swaps the collector the runner reports to.
func (r *Runner) WithMetrics(c *metrics.Collector) *Runner {
	r.metrics = c
	return r
}

// OnTick registers a handler called after every frame.
func (r *Runner) OnTick(fn TickHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Frames returns how many frames have been stepped.
func (r *Runner) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Start begins the frame loop. Call in a goroutine.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("simulation runner started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := r.now()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("simulation runner stopped by context")
			return
		case <-r.stopChan:
			r.logger.Info("simulation runner stopped manually")
			return
		case <-ticker.C:
			now := r.now()
			delta := now.Sub(last).Seconds()
			last = now
			r.Step(delta)
		}
	}
}

// Stop gracefully stops the frame loop. Safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Step runs a single frame of wallDelta seconds and notifies handlers.
func (r *Runner) Step(wallDelta float64) (TickResult, error) {
	start := time.Now()
	res, err := r.engine.Tick(wallDelta)
	r.metrics.RecordTick(time.Since(start), err)
	r.metrics.RecordSimulation(int(res.DaysCrossed), res.Spawned, len(res.TreatmentRequests), res.TreatmentsApplied)

	if err != nil {
		r.logger.Error("tick failed", "day", res.Day, "err", err)
	}

	if res.DaysCrossed > 0 {
		sum := r.engine.Summary()
		counts := make(map[string]int, len(sum.StatusCounts))
		for s, n := range sum.StatusCounts {
			counts[string(s)] = n
		}
		r.metrics.ObservePopulation(sum.Day, counts, sum.MeanInoculations)
	}

	r.mu.Lock()
	r.frames++
	handlers := make([]TickHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(res, err)
	}
	return res, err
}

// RunFor steps n frames of wallDelta seconds back to back, without waiting on
// wall time. It stops at the first error.
func (r *Runner) RunFor(n int, wallDelta float64) (TickResult, error) {
	var total TickResult
	for i := 0; i < n; i++ {
		res, err := r.Step(wallDelta)
		total.Day = res.Day
		total.DaysCrossed += res.DaysCrossed
		total.TreatmentRequests = append(total.TreatmentRequests, res.TreatmentRequests...)
		total.TreatmentsApplied += res.TreatmentsApplied
		total.Spawned += res.Spawned
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
