package engine

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/pkg/distlock"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
)

// WorkerStore records scheduler instances for operational visibility.
type WorkerStore interface {
	RegisterWorker(ctx context.Context, id uuid.UUID, hostname string, now time.Time) error
	Heartbeat(ctx context.Context, id uuid.UUID, now time.Time, processed int64) error
	DeregisterWorker(ctx context.Context, id uuid.UUID) error
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	TicksRun     int64     `json:"ticks_run"`
	TicksSkipped int64     `json:"ticks_skipped"`
	Processed    int64     `json:"processed"`
	Errors       int64     `json:"errors"`
	LastTickAt   time.Time `json:"last_tick_at"`
}

// Scheduler drives the engine on a fixed cadence. Multiple scheduler
// instances may run across hosts; a distributed lock keeps each tick
// single-flight so the same batch is never claimed twice concurrently.
type Scheduler struct {
	engine   *Engine
	workers  WorkerStore
	lock     distlock.DistLock
	interval time.Duration

	workerID uuid.UUID
	hostname string

	ticksRun     atomic.Int64
	ticksSkipped atomic.Int64
	processed    atomic.Int64
	errors       atomic.Int64
	lastTick     atomic.Int64 // unix nanos

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler. workers and lock may be nil; the loop
// then runs without registration or cross-host exclusion.
func NewScheduler(eng *Engine, workers WorkerStore, lock distlock.DistLock, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	hostname, _ := os.Hostname()
	return &Scheduler{
		engine:   eng,
		workers:  workers,
		lock:     lock,
		interval: interval,
		workerID: uuid.New(),
		hostname: hostname,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start registers the worker and launches the tick loop. Returns
// immediately; the loop runs until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.workers != nil {
		if err := s.workers.RegisterWorker(ctx, s.workerID, s.hostname, time.Now().UTC()); err != nil {
			return err
		}
	}
	logger.Info("scheduler started",
		"worker_id", s.workerID, "hostname", s.hostname, "interval", s.interval)

	go s.run(ctx)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First pass immediately rather than waiting a full interval.
	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx)
		if err != nil {
			logger.Warn("scheduler lock error", "error", err)
			s.errors.Add(1)
			return
		}
		if !acquired {
			// Another instance holds this tick.
			s.ticksSkipped.Add(1)
			return
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				logger.Warn("scheduler lock release failed", "error", err)
			}
		}()
	}

	n, err := s.engine.ProcessAutomations(ctx)
	s.ticksRun.Add(1)
	s.lastTick.Store(time.Now().UnixNano())
	if err != nil {
		// Database trouble: skip the cycle, never crash the host process.
		logger.Error("scheduler pass failed", "error", err)
		s.errors.Add(1)
	} else {
		s.processed.Add(int64(n))
	}

	if s.workers != nil {
		if err := s.workers.Heartbeat(ctx, s.workerID, time.Now().UTC(), s.processed.Load()); err != nil {
			logger.Warn("worker heartbeat failed", "worker_id", s.workerID, "error", err)
		}
	}
}

// Stop halts the loop and deregisters the worker, waiting up to 30s for an
// in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.done:
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler stop timed out", "worker_id", s.workerID)
	}

	if s.workers != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.workers.DeregisterWorker(ctx, s.workerID); err != nil {
			logger.Warn("worker deregister failed", "worker_id", s.workerID, "error", err)
		}
	}
	logger.Info("scheduler stopped", "worker_id", s.workerID, "processed", s.processed.Load())
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		TicksRun:     s.ticksRun.Load(),
		TicksSkipped: s.ticksSkipped.Load(),
		Processed:    s.processed.Load(),
		Errors:       s.errors.Load(),
		LastTickAt:   time.Unix(0, s.lastTick.Load()).UTC(),
	}
}
