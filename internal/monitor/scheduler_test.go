package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sitewatch/internal/logger"
)

type fakeCycler struct {
	running atomic.Int32
	overlap atomic.Bool
	calls   atomic.Int32
	forced  atomic.Int32
	delay   time.Duration
	ran     chan struct{}
}

func (f *fakeCycler) RunCycle(ctx context.Context, now time.Time, force bool) (Report, error) {
	if f.running.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.running.Add(-1)
	f.calls.Add(1)
	if force {
		f.forced.Add(1)
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
	if f.ran != nil {
		select {
		case f.ran <- struct{}{}:
		default:
		}
	}
	return Report{Forced: force}, nil
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	c := &fakeCycler{ran: make(chan struct{}, 1)}
	s := NewScheduler(c, time.Hour, 0, logger.Discard())
	s.Start()

	select {
	case <-c.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not run on start")
	}
	s.Stop()

	if _, err := s.Trigger(context.Background(), true); !errors.Is(err, ErrSchedulerStopped) {
		t.Errorf("trigger after stop: got %v", err)
	}
}

func TestSchedulerSerializesTriggers(t *testing.T) {
	c := &fakeCycler{delay: 50 * time.Millisecond}
	s := NewScheduler(c, time.Hour, time.Second, logger.Discard())
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Trigger(context.Background(), true); err != nil {
				t.Errorf("trigger: %v", err)
			}
		}()
	}
	wg.Wait()

	if c.overlap.Load() {
		t.Error("cycles overlapped")
	}
	if c.calls.Load() != 4 || c.forced.Load() != 4 {
		t.Errorf("calls=%d forced=%d", c.calls.Load(), c.forced.Load())
	}
}

func TestSchedulerStopCancelsRunningCycle(t *testing.T) {
	c := &fakeCycler{delay: time.Minute}
	s := NewScheduler(c, time.Hour, time.Hour, logger.Discard())

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background(), false)
		done <- err
	}()
	for c.running.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not cancel the running cycle")
	}
}

type certCycler struct {
	fakeCycler
	certRuns atomic.Int32
}

func (c *certCycler) CheckCertificates(ctx context.Context, now time.Time) (Report, error) {
	if c.running.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.running.Add(-1)
	c.certRuns.Add(1)
	return Report{Forced: true, Written: true}, nil
}

func TestSchedulerCertificatePass(t *testing.T) {
	plain := NewScheduler(&fakeCycler{}, time.Hour, 0, logger.Discard())
	if _, err := plain.CheckCertificates(context.Background()); err == nil {
		t.Error("expected error for engine without certificate support")
	}

	c := &certCycler{fakeCycler: fakeCycler{delay: 20 * time.Millisecond}}
	s := NewScheduler(c, time.Hour, 0, logger.Discard())
	defer s.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Trigger(context.Background(), false)
	}()
	r, err := s.CheckCertificates(context.Background())
	<-done
	if err != nil || !r.Written {
		t.Fatalf("cert pass: %+v %v", r, err)
	}
	if c.certRuns.Load() != 1 || c.overlap.Load() {
		t.Errorf("runs=%d overlap=%v", c.certRuns.Load(), c.overlap.Load())
	}
}
