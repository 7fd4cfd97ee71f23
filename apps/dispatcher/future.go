// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package dispatcher

import (
	"context"
	"sync"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/command"
)

// Future is the pending result of a command. It completes once; every caller attached to it
// observes the same *command.Result.
type Future struct {
	done chan struct{}

	mu        sync.Mutex
	result    *command.Result
	callbacks []func(*command.Result)
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Done is closed when the future completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result. The error is ctx.Err() when ctx is done first.
func (f *Future) Get(ctx context.Context) (*command.Result, error) {
	select {
	case <-f.done:
		return f.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the result, or nil when the future has not completed.
func (f *Future) Result() *command.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// WhenComplete calls fn with the result once the future completes. fn is called at once, on
// the calling goroutine, if it already has.
func (f *Future) WhenComplete(fn func(*command.Result)) {
	f.mu.Lock()
	if r := f.result; r != nil {
		f.mu.Unlock()
		fn(r)
		return
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// complete sets the result and runs the callbacks. Only the first call has an effect.
func (f *Future) complete(r *command.Result) bool {
	f.mu.Lock()
	if f.result != nil {
		f.mu.Unlock()
		return false
	}
	f.result = r
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn(r)
	}
	return true
}
