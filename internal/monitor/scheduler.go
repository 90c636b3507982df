package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sitewatch/internal/logger"
)

// ErrSchedulerStopped is returned by Trigger after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Cycler runs one monitoring cycle.
type Cycler interface {
	RunCycle(ctx context.Context, now time.Time, force bool) (Report, error)
}

// CertChecker runs an out-of-band certificate pass.
type CertChecker interface {
	CheckCertificates(ctx context.Context, now time.Time) (Report, error)
}

var errNoCertChecker = errors.New("engine does not check certificates")

// Scheduler runs cycles on a fixed interval and on demand. Cycles never
// overlap within one process.
type Scheduler struct {
	engine   Cycler
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex // serializes cycles
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler creates a Scheduler. timeout bounds a single cycle; zero
// means the interval.
func NewScheduler(engine Cycler, interval, timeout time.Duration, log *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = interval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine:   engine,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		log:      logger.OrDefault(log).With("component", "scheduler"),
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the periodic loop. The first cycle runs immediately.
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler", "interval", s.interval.String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick()
		for {
			select {
			case <-ticker.C:
				s.tick()
			case <-s.stopChan:
				s.log.Info("stopping scheduler")
				return
			}
		}
	}()
}

func (s *Scheduler) tick() {
	_, err := s.Trigger(s.ctx, false)
	if err != nil && !errors.Is(err, ErrSchedulerStopped) && s.ctx.Err() == nil {
		s.log.Error("cycle failed", "error", err)
	}
}

// Trigger runs a cycle now, waiting for any cycle in progress to finish
// first.
func (s *Scheduler) Trigger(ctx context.Context, force bool) (Report, error) {
	return s.exclusive(ctx, func(ctx context.Context, now time.Time) (Report, error) {
		return s.engine.RunCycle(ctx, now, force)
	})
}

// CheckCertificates runs a certificate pass, serialized with cycles.
func (s *Scheduler) CheckCertificates(ctx context.Context) (Report, error) {
	cc, ok := s.engine.(CertChecker)
	if !ok {
		return Report{}, errNoCertChecker
	}
	return s.exclusive(ctx, cc.CheckCertificates)
}

func (s *Scheduler) exclusive(ctx context.Context, fn func(context.Context, time.Time) (Report, error)) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopChan:
		return Report{}, ErrSchedulerStopped
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	return fn(ctx, s.now())
}

// Stop ends the loop, cancels a running cycle, and waits for it to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.cancel()
	})
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("scheduler stopped")
}
