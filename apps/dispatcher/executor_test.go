// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorBoundsConcurrency(t *testing.T) {
	const size, tasks = 2, 20
	e := NewExecutor("test", size)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		err := e.Submit(func(ctx context.Context) {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		}, func(err error) {
			defer wg.Done()
			t.Errorf("TestExecutorBoundsConcurrency: task rejected: %s", err)
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	if p := peak.Load(); p > size {
		t.Errorf("TestExecutorBoundsConcurrency: %d tasks ran at once, limit is %d", p, size)
	}
}

func TestExecutorShutdownDrains(t *testing.T) {
	e := NewExecutor("test", 1)
	var ran, rejected atomic.Int32
	for i := 0; i < 3; i++ {
		if err := e.Submit(func(ctx context.Context) { ran.Add(1) }, func(error) { rejected.Add(1) }); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.Shutdown(ctx)

	if ran.Load() != 3 || rejected.Load() != 0 {
		t.Errorf("TestExecutorShutdownDrains: got %d run and %d rejected, want 3 and 0", ran.Load(), rejected.Load())
	}
	if !e.Stopped() {
		t.Errorf("TestExecutorShutdownDrains: executor not stopped")
	}
	if err := e.Submit(func(context.Context) {}, func(error) {}); err != ErrRejected {
		t.Errorf("TestExecutorShutdownDrains: submit after shutdown got %v", err)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	def := DefaultSchedulerConfig()
	if s.Silent().Size() != def.SilentPoolSize || s.Interactive().Size() != 1 || s.DeviceCode().Size() != def.DeviceCodePoolSize {
		t.Errorf("TestSchedulerLifecycle: got pool sizes %d, %d, %d", s.Silent().Size(), s.Interactive().Size(), s.DeviceCode().Size())
	}

	silent := s.Silent()
	s.ResetSilent()
	if s.Silent() != silent {
		t.Errorf("TestSchedulerLifecycle: ResetSilent replaced a running pool")
	}

	s.Stop(context.Background())
	for _, e := range []*Executor{s.Silent(), s.Interactive(), s.DeviceCode()} {
		if !e.Stopped() {
			t.Errorf("TestSchedulerLifecycle: %s pool running after Stop", e.Name())
		}
	}
	s.Start()
	for _, e := range []*Executor{s.Silent(), s.Interactive(), s.DeviceCode()} {
		if e.Stopped() {
			t.Errorf("TestSchedulerLifecycle: %s pool stopped after Start", e.Name())
		}
	}
}
