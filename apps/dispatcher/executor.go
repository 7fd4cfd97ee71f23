// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package dispatcher

import (
	"context"
	"sync"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/errors"
	"golang.org/x/sync/semaphore"
)

// ErrRejected is reported for work an executor will not run, either because the executor was
// shut down before the work was submitted or because the work was still queued at shutdown.
var ErrRejected = errors.NewClientError(errors.ExecutorRejected, "the executor is not accepting work", nil)

// Executor runs submitted work on at most size goroutines at a time. Work beyond that waits
// in submission order for a free slot.
type Executor struct {
	name string
	size int
	sem  *semaphore.Weighted

	// accept is cancelled when queued work must be rejected, run when running work must stop.
	accept     context.Context
	stopAccept context.CancelFunc
	run        context.Context
	stopRun    context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewExecutor returns a running Executor. size is raised to 1 if lower.
func NewExecutor(name string, size int) *Executor {
	if size < 1 {
		size = 1
	}
	e := &Executor{name: name, size: size, sem: semaphore.NewWeighted(int64(size))}
	e.accept, e.stopAccept = context.WithCancel(context.Background())
	e.run, e.stopRun = context.WithCancel(context.Background())
	return e
}

func (e *Executor) Name() string { return e.name }
func (e *Executor) Size() int    { return e.size }

// Stopped reports whether Shutdown was called.
func (e *Executor) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Submit schedules run. It returns ErrRejected without scheduling anything once the executor
// is stopped. Work that was queued when the executor stops is not run; reject is called with
// ErrRejected instead. Exactly one of run and reject is called for accepted work.
func (e *Executor) Submit(run func(ctx context.Context), reject func(err error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrRejected
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(e.accept, 1); err != nil {
			reject(ErrRejected)
			return
		}
		defer e.sem.Release(1)
		if e.accept.Err() != nil {
			reject(ErrRejected)
			return
		}
		run(e.run)
	}()
	return nil
}

// Shutdown stops accepting work and waits until the submitted work is done or ctx is done.
// In the latter case queued work is rejected and the context of running work is cancelled;
// Shutdown returns without waiting for running work to observe it. Shutdown is idempotent.
func (e *Executor) Shutdown(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	e.stopAccept()
	e.stopRun()
}
