// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package dispatcher runs commands on the scheduler's pools and deduplicates equal silent
commands while they are in flight.

A cacheable command whose dedup key matches an in-flight command is not executed; its callback
is attached to the in-flight command's Future and receives the same *command.Result. The
dedup key is computed once at submission, so a command whose fields change while it runs is
still found and removed when it completes.

	d := dispatcher.New(dispatcher.NewScheduler(dispatcher.DefaultSchedulerConfig()))
	f, err := d.SubmitSilentReturningFuture(cmd)
	if err != nil {
		// the silent pool is stopped
	}
	result, err := f.Get(ctx)
*/
package dispatcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-identity-common-for-go/apps/command"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/errors"
	"github.com/AzureAD/microsoft-identity-common-for-go/apps/internal/logger"
	"github.com/google/uuid"
)

// DefaultSilentTimeout bounds SubmitAcquireTokenSilentSync.
const DefaultSilentTimeout = 30 * time.Second

// errSuperseded cancels an interactive command when a newer one begins.
var errSuperseded = stderrors.New("superseded by a newer interactive request")

type inflight struct {
	owner  command.Command
	future *Future
}

// Dispatcher submits commands to a Scheduler. It is safe for concurrent use.
type Dispatcher struct {
	scheduler     *Scheduler
	logger        logger.LoggerInterface
	silentTimeout time.Duration

	// mapAccessLock guards every read-modify-write of inflight.
	mapAccessLock sync.Mutex
	inflight      map[string]*inflight

	interactiveMu     sync.Mutex
	cancelInteractive context.CancelCauseFunc
}

// Option is an optional argument to New.
type Option func(d *Dispatcher)

// WithLogger sets the logger. The default discards.
func WithLogger(l logger.LoggerInterface) Option {
	return func(d *Dispatcher) {
		d.logger = logger.OrDiscard(l)
	}
}

// WithSilentTimeout sets how long SubmitAcquireTokenSilentSync waits for a result.
func WithSilentTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.silentTimeout = timeout
		}
	}
}

// New is the constructor for Dispatcher.
func New(s *Scheduler, options ...Option) *Dispatcher {
	d := &Dispatcher{
		scheduler:     s,
		logger:        logger.Discard(),
		silentTimeout: DefaultSilentTimeout,
		inflight:      map[string]*inflight{},
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Scheduler returns the scheduler the dispatcher submits to.
func (d *Dispatcher) Scheduler() *Scheduler {
	return d.scheduler
}

// SubmitSilentReturningFuture executes cmd on the silent pool, or the device code pool for a
// command.DeviceCodeFlow, and returns the Future of its result. cmd's callback is notified
// when the Future completes.
//
// If cmd is eligible for caching and an equal command is in flight, cmd is not executed and
// the in-flight command's Future is returned. When the pool rejects cmd the Future completes
// with an ErrRejected error and ErrRejected is also returned.
func (d *Dispatcher) SubmitSilentReturningFuture(cmd command.Command) (*Future, error) {
	ex := d.scheduler.Silent()
	if _, ok := cmd.(command.DeviceCodeFlow); ok {
		ex = d.scheduler.DeviceCode()
	}
	if !cmd.EligibleForCaching() {
		return d.submit(ex, cmd, "", nil)
	}

	key := cmd.DedupKey()
	d.mapAccessLock.Lock()
	if e, ok := d.inflight[key]; ok {
		d.mapAccessLock.Unlock()
		d.logger.Log(context.Background(), logger.Debug, "attaching to in-flight command", logger.Field("pool", ex.Name()))
		e.future.WhenComplete(deliverTo(cmd.Callback()))
		return e.future, nil
	}
	f := newFuture()
	d.inflight[key] = &inflight{owner: cmd, future: f}
	d.mapAccessLock.Unlock()

	return d.start(ex, cmd, key, f, nil)
}

// SubmitSilent is SubmitSilentReturningFuture for callers that only use the callback. A
// rejection is delivered to the callback's OnError.
func (d *Dispatcher) SubmitSilent(cmd command.Command) {
	_, _ = d.SubmitSilentReturningFuture(cmd)
}

// SubmitAndForget executes cmd on the silent pool without deduplication.
func (d *Dispatcher) SubmitAndForget(cmd command.Command) {
	_, _ = d.submit(d.scheduler.Silent(), cmd, "", nil)
}

// SubmitAcquireTokenSilentSync executes cmd like SubmitSilentReturningFuture and waits for its
// value, for at most the silent timeout. Errors are adapted with errors.Adapt; a timeout is a
// timed_out ClientError and a cancelled command an errors.UserCancelError. Timing out does not
// stop the execution.
func (d *Dispatcher) SubmitAcquireTokenSilentSync(ctx context.Context, cmd command.Command) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.silentTimeout)
	defer cancel()

	f, err := d.SubmitSilentReturningFuture(cmd)
	if err != nil {
		return nil, errors.Adapt(err)
	}
	r, err := f.Get(ctx)
	if err != nil {
		return nil, errors.Adapt(err)
	}
	switch r.Status() {
	case command.StatusError:
		return nil, errors.Adapt(r.Err())
	case command.StatusCancel:
		return nil, errors.UserCancelError{}
	}
	return r.Value(), nil
}

// BeginInteractive executes cmd on the interactive pool. An interactive command that has not
// completed is cancelled: its context is cancelled and, unless it completes regardless, its
// callback receives OnCancel.
func (d *Dispatcher) BeginInteractive(cmd command.Command) (*Future, error) {
	interrupt, cancel := context.WithCancelCause(context.Background())
	d.interactiveMu.Lock()
	if d.cancelInteractive != nil {
		d.cancelInteractive(errSuperseded)
	}
	d.cancelInteractive = cancel
	d.interactiveMu.Unlock()

	return d.submit(d.scheduler.Interactive(), cmd, "", interrupt)
}

// IsCommandOutstanding reports whether cmd, or a command equal to it, is in flight.
func (d *Dispatcher) IsCommandOutstanding(cmd command.Command) bool {
	key := cmd.DedupKey()
	d.mapAccessLock.Lock()
	defer d.mapAccessLock.Unlock()
	if _, ok := d.inflight[key]; ok {
		return true
	}
	for _, e := range d.inflight {
		if sameCommand(e.owner, cmd) {
			return true
		}
	}
	return false
}

// OutstandingCommands is the number of deduplicated commands in flight.
func (d *Dispatcher) OutstandingCommands() int {
	d.mapAccessLock.Lock()
	defer d.mapAccessLock.Unlock()
	return len(d.inflight)
}

// StopSilentRequestExecutor stops the silent pool. Work still queued or running after the
// shutdown grace completes with an error; new silent submissions are rejected.
func (d *Dispatcher) StopSilentRequestExecutor(ctx context.Context) {
	d.scheduler.StopSilent(ctx)
}

// ResetSilentRequestExecutor replaces a stopped silent pool so silent submissions run again.
func (d *Dispatcher) ResetSilentRequestExecutor() {
	d.scheduler.ResetSilent()
}

func (d *Dispatcher) submit(ex *Executor, cmd command.Command, key string, interrupt context.Context) (*Future, error) {
	return d.start(ex, cmd, key, newFuture(), interrupt)
}

// start attaches cmd's callback to f and runs cmd on ex. key is the in-flight map key, or ""
// for commands that are not deduplicated.
func (d *Dispatcher) start(ex *Executor, cmd command.Command, key string, f *Future, interrupt context.Context) (*Future, error) {
	f.WhenComplete(deliverTo(cmd.Callback()))
	correlationID := cmd.CorrelationID()
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	run := func(ctx context.Context) {
		ctx, cancel := context.WithCancelCause(command.WithCorrelationID(ctx, correlationID))
		defer cancel(nil)
		if interrupt != nil {
			stop := context.AfterFunc(interrupt, func() { cancel(context.Cause(interrupt)) })
			defer stop()
		}
		d.finish(key, f, d.execute(ctx, cmd, correlationID))
	}
	reject := func(err error) {
		d.logger.Log(context.Background(), logger.Warn, "command rejected", logger.Field("pool", ex.Name()), logger.Field("correlation_id", correlationID))
		d.finish(key, f, command.Failed(err, correlationID))
	}
	if err := ex.Submit(run, reject); err != nil {
		reject(err)
		return f, err
	}
	return f, nil
}

// execute runs cmd, converting its outcome, or a panic, into a result.
func (d *Dispatcher) execute(ctx context.Context, cmd command.Command, correlationID string) (result *command.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Log(ctx, logger.Err, "command panicked", logger.Field("panic", fmt.Sprint(r)), logger.Field("correlation_id", correlationID))
			result = command.Failed(fmt.Errorf("command panicked: %v", r), correlationID)
		}
	}()

	if stderrors.Is(context.Cause(ctx), errSuperseded) {
		return command.Cancelled(correlationID)
	}
	value, err := cmd.Execute(ctx)
	switch {
	case errors.IsUserCancel(err):
		return command.Cancelled(correlationID)
	case err != nil && stderrors.Is(context.Cause(ctx), errSuperseded):
		return command.Cancelled(correlationID)
	case err != nil:
		return command.Failed(err, correlationID)
	case value == nil:
		return command.Void(correlationID)
	}
	return command.Completed(value, correlationID)
}

// finish removes the in-flight entry of f, if any, then completes f. The entry is looked up by
// key and, should that miss, by identity.
func (d *Dispatcher) finish(key string, f *Future, result *command.Result) {
	if key != "" {
		d.mapAccessLock.Lock()
		if e, ok := d.inflight[key]; ok && e.future == f {
			delete(d.inflight, key)
		} else {
			d.logger.Log(context.Background(), logger.Warn, "command in the map has mutated")
			for k, e := range d.inflight {
				if e.future == f {
					delete(d.inflight, k)
					break
				}
			}
		}
		d.mapAccessLock.Unlock()
	}
	f.complete(result)
}

func deliverTo(cb command.Callback) func(*command.Result) {
	return func(r *command.Result) {
		if cb == nil {
			return
		}
		switch r.Status() {
		case command.StatusError:
			cb.OnError(errors.Adapt(r.Err()))
		case command.StatusCancel:
			cb.OnCancel()
		default:
			cb.OnTaskCompleted(r.Value())
		}
	}
}

// sameCommand reports reference identity for pointer commands and equality for other
// comparable ones.
func sameCommand(a, b command.Command) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta.Comparable() && a == b
}
