// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package command defines the units of work run by the dispatcher and the results they produce.

A Command carries its parameters, the Callback its caller is notified on and a dedup key.
Commands that are eligible for caching and share a dedup key while in flight are executed once,
and every caller receives the same *Result.
*/
package command

import (
	"context"
	"fmt"
)

// Status is the kind of outcome of a command.
type Status int

const (
	// StatusCompleted means the command produced a value.
	StatusCompleted Status = iota
	// StatusError means the command failed.
	StatusError
	// StatusCancel means the command was cancelled, by the user or by a newer command.
	StatusCancel
	// StatusVoid means the command completed without a value.
	StatusVoid
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "COMPLETED"
	case StatusError:
		return "ERROR"
	case StatusCancel:
		return "CANCEL"
	case StatusVoid:
		return "VOID"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of one command execution. It is not modified after construction and is
// shared by every caller attached to the execution.
type Result struct {
	status        Status
	value         any
	err           error
	correlationID string
}

// Completed returns a StatusCompleted result.
func Completed(value any, correlationID string) *Result {
	return &Result{status: StatusCompleted, value: value, correlationID: correlationID}
}

// Failed returns a StatusError result.
func Failed(err error, correlationID string) *Result {
	return &Result{status: StatusError, err: err, correlationID: correlationID}
}

// Cancelled returns a StatusCancel result.
func Cancelled(correlationID string) *Result {
	return &Result{status: StatusCancel, correlationID: correlationID}
}

// Void returns a StatusVoid result.
func Void(correlationID string) *Result {
	return &Result{status: StatusVoid, correlationID: correlationID}
}

func (r *Result) Status() Status { return r.status }

// Value is the value of a StatusCompleted result.
func (r *Result) Value() any { return r.value }

// Err is the error of a StatusError result.
func (r *Result) Err() error { return r.err }

func (r *Result) CorrelationID() string { return r.correlationID }

// Callback receives the result of a command. Exactly one method is called, once.
type Callback interface {
	OnTaskCompleted(value any)
	OnError(err error)
	OnCancel()
}

// CallbackFuncs adapts functions to Callback. Nil fields ignore the notification.
type CallbackFuncs struct {
	Completed func(value any)
	Error     func(err error)
	Cancel    func()
}

func (c CallbackFuncs) OnTaskCompleted(value any) {
	if c.Completed != nil {
		c.Completed(value)
	}
}

func (c CallbackFuncs) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

func (c CallbackFuncs) OnCancel() {
	if c.Cancel != nil {
		c.Cancel()
	}
}

// Command is a unit of work for the dispatcher.
type Command interface {
	// Execute does the work. A nil value with a nil error is a void result. Returning an
	// errors.UserCancelError cancels the command.
	Execute(ctx context.Context) (any, error)
	// Callback is notified of the result. It may be nil.
	Callback() Callback
	// EligibleForCaching reports whether equal in-flight commands may share one execution.
	EligibleForCaching() bool
	// DedupKey identifies the request. Commands with equal keys are equal.
	DedupKey() string
	// CorrelationID is the caller supplied correlation id. The dispatcher assigns one when
	// it is empty.
	CorrelationID() string
}

// DeviceCodeFlow marks commands that poll a device code grant. They run on their own pool so
// long polls cannot starve silent requests.
type DeviceCodeFlow interface {
	Command
	DeviceCodeFlow()
}

type correlationKey struct{}

// WithCorrelationID returns a context carrying id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom returns the correlation id in ctx, or "".
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Func is a Command built from a function. An empty Key makes it ineligible for caching.
type Func struct {
	Key         string
	Run         func(ctx context.Context) (any, error)
	Notify      Callback
	Correlation string
}

func (f *Func) Execute(ctx context.Context) (any, error) { return f.Run(ctx) }
func (f *Func) Callback() Callback                       { return f.Notify }
func (f *Func) EligibleForCaching() bool                 { return f.Key != "" }
func (f *Func) DedupKey() string                         { return f.Key }
func (f *Func) CorrelationID() string                    { return f.Correlation }

// DeviceCodeFunc is a Func that polls a device code grant.
type DeviceCodeFunc struct {
	Func
}

func (*DeviceCodeFunc) DeviceCodeFlow() {}
