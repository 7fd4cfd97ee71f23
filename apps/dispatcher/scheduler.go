// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package dispatcher

import (
	"context"
	"sync"
	"time"
)

// Pool names.
const (
	SilentPool      = "silent"
	InteractivePool = "interactive"
	DeviceCodePool  = "device_code"
)

// SchedulerConfig sizes the scheduler's pools.
type SchedulerConfig struct {
	SilentPoolSize     int
	DeviceCodePoolSize int
	// ShutdownGrace is how long a stop waits for submitted work before cancelling it.
	ShutdownGrace time.Duration
}

// DefaultSchedulerConfig returns the default pool sizes.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{SilentPoolSize: 5, DeviceCodePoolSize: 5, ShutdownGrace: time.Second}
}

// Scheduler owns the executors commands run on: a pool for silent requests, a single slot pool
// for interactive requests and a pool for device code polling.
type Scheduler struct {
	cfg SchedulerConfig

	mu          sync.Mutex
	silent      *Executor
	interactive *Executor
	deviceCode  *Executor
}

// NewScheduler returns a Scheduler with running pools. Sizes below 1 take the default.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.SilentPoolSize < 1 {
		cfg.SilentPoolSize = def.SilentPoolSize
	}
	if cfg.DeviceCodePoolSize < 1 {
		cfg.DeviceCodePoolSize = def.DeviceCodePoolSize
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = def.ShutdownGrace
	}
	s := &Scheduler{cfg: cfg}
	s.Start()
	return s
}

// Start replaces every stopped pool with a new one.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.silent == nil || s.silent.Stopped() {
		s.silent = NewExecutor(SilentPool, s.cfg.SilentPoolSize)
	}
	if s.interactive == nil || s.interactive.Stopped() {
		s.interactive = NewExecutor(InteractivePool, 1)
	}
	if s.deviceCode == nil || s.deviceCode.Stopped() {
		s.deviceCode = NewExecutor(DeviceCodePool, s.cfg.DeviceCodePoolSize)
	}
}

func (s *Scheduler) Silent() *Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silent
}

func (s *Scheduler) Interactive() *Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interactive
}

func (s *Scheduler) DeviceCode() *Executor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceCode
}

// StopSilent shuts the silent pool down, waiting up to the shutdown grace, or until ctx is
// done, for submitted work. Silent submissions are rejected until ResetSilent.
func (s *Scheduler) StopSilent(ctx context.Context) {
	s.shutdown(ctx, s.Silent())
}

// ResetSilent replaces a stopped silent pool with a new one. A running pool is kept.
func (s *Scheduler) ResetSilent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.silent.Stopped() {
		s.silent = NewExecutor(SilentPool, s.cfg.SilentPoolSize)
	}
}

// Stop shuts every pool down. Start brings them back.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	pools := []*Executor{s.silent, s.interactive, s.deviceCode}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range pools {
		wg.Add(1)
		go func(p *Executor) {
			defer wg.Done()
			s.shutdown(ctx, p)
		}(p)
	}
	wg.Wait()
}

func (s *Scheduler) shutdown(ctx context.Context, e *Executor) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	defer cancel()
	e.Shutdown(ctx)
}
