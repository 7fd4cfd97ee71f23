// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"testing"
)

func TestAdapt(t *testing.T) {
	client := NewClientError(InvalidParameter, "bad", nil)
	service := &ServiceError{Code: InvalidGrant, StatusCode: http.StatusBadRequest}

	tests := []struct {
		desc     string
		in       error
		wantCode string
		same     bool
	}{
		{desc: "client passes through", in: client, wantCode: InvalidParameter, same: true},
		{desc: "service passes through", in: service, wantCode: InvalidGrant, same: true},
		{desc: "wrapped client passes through", in: fmt.Errorf("execute: %w", client), wantCode: InvalidParameter, same: true},
		{desc: "terminal keeps its code", in: &TerminalError{Code: "device_needs_reboot", Err: errors.New("boom")}, wantCode: "device_needs_reboot"},
		{desc: "deadline", in: context.DeadlineExceeded, wantCode: TimedOut},
		{desc: "canceled", in: fmt.Errorf("wait: %w", context.Canceled), wantCode: InterruptedOperation},
		{desc: "io", in: &fs.PathError{Op: "open", Path: "/cache", Err: fs.ErrNotExist}, wantCode: IOError},
		{desc: "anything else", in: errors.New("nil pointer somewhere"), wantCode: UnknownError},
	}

	for _, test := range tests {
		got := Adapt(test.in)
		if code := Code(got); code != test.wantCode {
			t.Errorf("TestAdapt(%s): got code %q, want %q", test.desc, code, test.wantCode)
		}
		if test.same && got != test.in {
			t.Errorf("TestAdapt(%s): error should pass through unchanged", test.desc)
		}
		if !test.same && !errors.Is(got, test.in) {
			t.Errorf("TestAdapt(%s): cause chain lost", test.desc)
		}
	}

	if Adapt(nil) != nil {
		t.Errorf("TestAdapt(nil): want nil")
	}
	var cancel UserCancelError
	if !errors.As(Adapt(UserCancelError{}), &cancel) {
		t.Errorf("TestAdapt(cancel): UserCancelError should pass through")
	}
}

func TestAdaptTerminalMessage(t *testing.T) {
	got := Adapt(&TerminalError{Code: "x", Err: errors.New("disk gone")})
	if !strings.Contains(got.Error(), "An unhandled exception occurred with message: disk gone") {
		t.Errorf("TestAdaptTerminalMessage: got %q", got.Error())
	}
}

func TestIsServiceUnavailable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&ServiceError{StatusCode: http.StatusServiceUnavailable}, true},
		{&ServiceError{StatusCode: http.StatusGatewayTimeout}, true},
		{&ServiceError{Code: TemporarilyUnavailable, StatusCode: http.StatusBadRequest}, true},
		{&ServiceError{Code: InvalidGrant, StatusCode: http.StatusBadRequest}, false},
		{errors.New("503"), false},
	}
	for _, test := range tests {
		if got := IsServiceUnavailable(test.err); got != test.want {
			t.Errorf("TestIsServiceUnavailable(%v): got %v, want %v", test.err, got, test.want)
		}
	}
}

func TestIsInvalidGrant(t *testing.T) {
	if !IsInvalidGrant(&ServiceError{Code: InvalidGrant}) {
		t.Errorf("invalid_grant code should match")
	}
	if !IsInvalidGrant(fmt.Errorf("refresh: %w", &ServiceError{Code: "interaction_required", SubCode: BadToken})) {
		t.Errorf("bad_token sub code should match")
	}
	if IsInvalidGrant(&ServiceError{Code: "interaction_required"}) {
		t.Errorf("interaction_required should not match")
	}
}

func TestIsUserCancel(t *testing.T) {
	for _, err := range []error{UserCancelError{}, &UserCancelError{}, fmt.Errorf("flow: %w", UserCancelError{})} {
		if !IsUserCancel(err) {
			t.Errorf("IsUserCancel(%v): got false", err)
		}
	}
	if IsUserCancel(context.Canceled) {
		t.Errorf("IsUserCancel(context.Canceled): got true")
	}
}

func TestVerbose(t *testing.T) {
	err := &ServiceError{Code: InvalidGrant, Err: CallErr{Err: errors.New("400")}}
	if !strings.Contains(Verbose(err), "Response") {
		t.Errorf("TestVerbose: expected response dump, got %q", Verbose(err))
	}
	if Verbose(errors.New("plain")) != "plain" {
		t.Errorf("TestVerbose: plain errors print their message")
	}
}
