// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package errors holds the error types surfaced to callers of the cache and the command
// dispatcher, and Adapt, which folds arbitrary failures into those types.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/kylelemons/godebug/pretty"
)

var prettyConf = &pretty.Config{IncludeUnexported: false, SkipZeroFields: true, TrackCycles: true}

// Client error codes.
const (
	UnknownError         = "unknown_error"
	IOError              = "io_error"
	InterruptedOperation = "interrupted_operation"
	TimedOut             = "timed_out"
	NullObject           = "null_object"
	ExecutorRejected     = "executor_rejected"
	InvalidParameter     = "invalid_parameter"
	MalformedCacheRecord = "malformed_cache_record"
	SchemaNoncompliant   = "schema_noncompliant"
	NoTokensFound        = "no_tokens_found"
)

// Service error codes with special handling.
const (
	InvalidGrant           = "invalid_grant"
	BadToken               = "bad_token"
	TemporarilyUnavailable = "temporarily_unavailable"
	ServiceUnavailable     = "service_unavailable"
)

type verboser interface {
	Verbose() string
}

// Verbose prints the most verbose error that the error message has.
func Verbose(err error) string {
	if v, ok := err.(verboser); ok {
		return v.Verbose()
	}
	return err.Error()
}

// New is equivalent to errors.New().
func New(text string) error {
	return errors.New(text)
}

// CallErr represents an HTTP call error. Has a Verbose() method that allows getting the
// http.Request and Response objects. Implements error.
type CallErr struct {
	Req  *http.Request
	Resp *http.Response
	Err  error
}

// Errors implements error.Error().
func (e CallErr) Error() string {
	return e.Err.Error()
}

func (e CallErr) Unwrap() error {
	return e.Err
}

// Verbose prints a versbose error message with the request or response.
func (e CallErr) Verbose() string {
	return fmt.Sprintf("%s:\n\tRequest:\n%s\n\tResponse:\n%s", e.Err, prettyConf.Sprint(e.Req), prettyConf.Sprint(e.Resp))
}

// ClientError is a failure raised on the device, with a stable code.
type ClientError struct {
	Code    string
	Message string
	Err     error
}

// NewClientError creates a ClientError.
func NewClientError(code, message string, cause error) *ClientError {
	return &ClientError{Code: code, Message: message, Err: cause}
}

func (e *ClientError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

func (e *ClientError) Verbose() string {
	return fmt.Sprintf("%s\n\tCause:\n%s", e.Error(), prettyConf.Sprint(e.Err))
}

// ServiceError is an error returned by the token service.
type ServiceError struct {
	Code       string
	SubCode    string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.SubCode != "" {
		b.WriteString("/" + e.SubCode)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Verbose() string {
	if v, ok := e.Err.(verboser); ok {
		return e.Error() + "\n" + v.Verbose()
	}
	return e.Error()
}

// UserCancelError reports that the user cancelled the operation.
type UserCancelError struct{}

func (UserCancelError) Error() string {
	return "user cancelled the flow"
}

// TerminalError is a non-recoverable failure whose code is reported to callers verbatim.
type TerminalError struct {
	Code string
	Err  error
}

func (e *TerminalError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Adapt converts err into one of the package's error types. Errors that already are one
// are returned unchanged, except TerminalError, which becomes a ClientError carrying its code.
func Adapt(err error) error {
	if err == nil {
		return nil
	}

	var terminal *TerminalError
	if errors.As(err, &terminal) {
		msg := "An unhandled exception occurred with message: "
		if terminal.Err != nil {
			msg += terminal.Err.Error()
		}
		return &ClientError{Code: terminal.Code, Message: msg, Err: err}
	}

	var (
		client  *ClientError
		service *ServiceError
		cancel  UserCancelError
		cancelP *UserCancelError
	)
	switch {
	case errors.As(err, &client), errors.As(err, &service), errors.As(err, &cancel), errors.As(err, &cancelP):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Code: TimedOut, Message: "Request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &ClientError{Code: InterruptedOperation, Message: "The operation was interrupted", Err: err}
	case isIO(err):
		return &ClientError{Code: IOError, Message: "An IO error occurred with message: " + err.Error(), Err: err}
	}
	return &ClientError{Code: UnknownError, Message: err.Error(), Err: err}
}

func isIO(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, fs.ErrPermission)
}

// IsServiceUnavailable reports whether err means the token service could not serve the
// request right now. Callers may keep using a cached access token that is not hard-expired.
func IsServiceUnavailable(err error) bool {
	var service *ServiceError
	if !errors.As(err, &service) {
		return false
	}
	switch service.StatusCode {
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return strings.EqualFold(service.Code, TemporarilyUnavailable) || strings.EqualFold(service.Code, ServiceUnavailable)
}

// IsUserCancel reports whether err is, or wraps, a UserCancelError.
func IsUserCancel(err error) bool {
	var (
		cancel  UserCancelError
		cancelP *UserCancelError
	)
	return errors.As(err, &cancel) || errors.As(err, &cancelP)
}

// IsInvalidGrant reports whether err means the refresh token used is no longer usable.
func IsInvalidGrant(err error) bool {
	var service *ServiceError
	if !errors.As(err, &service) {
		return false
	}
	for _, c := range []string{service.Code, service.SubCode} {
		if strings.EqualFold(c, InvalidGrant) || strings.EqualFold(c, BadToken) {
			return true
		}
	}
	return false
}

// Code returns the stable code of err, or UnknownError.
func Code(err error) string {
	var (
		client   *ClientError
		service  *ServiceError
		terminal *TerminalError
	)
	switch {
	case errors.As(err, &client):
		return client.Code
	case errors.As(err, &service):
		return service.Code
	case errors.As(err, &terminal):
		return terminal.Code
	}
	return UnknownError
}
