package actor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type scheduleFunc func()

// Scheduler runs message handlers as independent goroutines, bounded by a
// semaphore, with panic containment. The dispatch loop never waits on a
// handler; shutdown waits for all in-flight handlers via Wait.
type Scheduler interface {
	Schedule(f scheduleFunc)
	// Wait blocks until all in-flight tasks complete.
	Wait()
}

type scheduler struct {
	ctx      context.Context
	log      *slog.Logger
	inflight atomic.Int32
	sem      chan struct{}
	max      int
	onPanic  func(recovered any)

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler that limits the number of concurrently
// running tasks to max. If max <= 0, concurrency is unlimited. No new task
// starts after ctx is cancelled.
func NewScheduler(ctx context.Context, max int, log *slog.Logger, onPanic func(recovered any)) Scheduler {
	var sem chan struct{}
	if max > 0 {
		sem = make(chan struct{}, max)
	}
	if log == nil {
		log = slog.Default()
	}
	return &scheduler{
		ctx:     ctx,
		sem:     sem,
		max:     max,
		log:     log,
		onPanic: onPanic,
	}
}

func (s *scheduler) Schedule(f scheduleFunc) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}

	s.wg.Add(1)

	if s.max <= 0 {
		go func() {
			defer s.wg.Done()
			s.inflight.Add(1)
			defer s.inflight.Add(-1)
			s.runTask(f)
		}()
		return
	}

	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			return
		case s.sem <- struct{}{}:
		}

		s.inflight.Add(1)
		defer func() {
			<-s.sem
			s.inflight.Add(-1)
		}()

		s.runTask(f)
	}()
}

func (s *scheduler) runTask(f scheduleFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler task panicked", slog.Any("recovered", r))
			if s.onPanic != nil {
				s.onPanic(r)
			}
		}
	}()
	f()
}

func (s *scheduler) Wait() {
	s.wg.Wait()
}
