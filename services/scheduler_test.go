package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"car-sniper/models"
	"car-sniper/utils"
)

type blockingRunner struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Tick(ctx context.Context) (*models.TickReport, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &models.TickReport{}, nil
}

func TestSchedulerNonPositiveInterval(t *testing.T) {
	tests := []struct {
		interval, firstDelay time.Duration
	}{
		{0, 0},
		{-time.Second, -time.Second},
	}
	for _, tt := range tests {
		r := &blockingRunner{started: make(chan struct{}, 10), release: make(chan struct{})}
		close(r.release)
		s := NewScheduler(r, tt.interval, tt.firstDelay, utils.NewDiscardLogger())
		if s.interval != defaultScanInterval || s.firstDelay != 0 {
			t.Errorf("NewScheduler(%v, %v): interval=%v firstDelay=%v", tt.interval, tt.firstDelay, s.interval, s.firstDelay)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()
		select {
		case <-r.started:
		case <-time.After(2 * time.Second):
			t.Fatal("first tick never started")
		}
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func TestSchedulerSkipsWhileRunning(t *testing.T) {
	r := &blockingRunner{started: make(chan struct{}, 10), release: make(chan struct{})}
	s := NewScheduler(r, time.Hour, 0, utils.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-r.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never started")
	}

	if !s.Running() {
		t.Error("Running should report the in-flight tick")
	}
	if s.TriggerNow() {
		t.Error("TriggerNow should refuse while a tick is running")
	}

	close(r.release)
	deadline := time.Now().Add(2 * time.Second)
	for s.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !s.TriggerNow() {
		t.Error("TriggerNow should start a tick once idle")
	}
	<-r.started

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if got := r.calls.Load(); got != 2 {
		t.Errorf("expected 2 ticks, got %d", got)
	}
}

func TestSchedulerTriggerBeforeRun(t *testing.T) {
	s := NewScheduler(&blockingRunner{}, time.Hour, time.Hour, nil)
	if s.TriggerNow() {
		t.Error("TriggerNow should fail before Run")
	}
}
