// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"context"
	"fmt"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// 🏷️ ErrorKind classifies a failure for reporting and retry decisions
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindAuth             ErrorKind = "AuthError"
	KindNotFound         ErrorKind = "NotFound"
	KindAccessDenied     ErrorKind = "AccessDenied"
	KindLocked           ErrorKind = "Locked"
	KindConflict         ErrorKind = "ConflictError"
	KindActivation       ErrorKind = "ActivationError"
	KindEngineTimeout    ErrorKind = "EngineTimeout"
	KindEngineCrash      ErrorKind = "EngineCrash"
	KindEngineOutput     ErrorKind = "EngineOutputError"
	KindIO               ErrorKind = "IOError"
	KindNetwork          ErrorKind = "NetworkError"
	KindRemote           ErrorKind = "RemoteError"
	KindInvalidTransport ErrorKind = "InvalidTransport"
	KindConfig           ErrorKind = "ConfigError"
	KindCancelled        ErrorKind = "Cancelled"
	KindUnknown          ErrorKind = "Unknown"
)

// Transient reports whether a failure of this kind may go away on retry.
// Only network-level failures qualify; everything else is final for the run.
func (k ErrorKind) Transient() bool {
	return k == KindNetwork
}

// 🚨 Error is the typed error carried through every component
type Error struct {
	Kind        ErrorKind
	Op          string   // operation that failed, e.g. "lock"
	Msg         string   // human readable message
	Diagnostics []string // compiler or engine diagnostics, if any
	LockedIn    string   // transport that holds a conflicting lock
	Err         error    // underlying cause
}

// 🏭 NewError creates a typed error
func NewError(kind ErrorKind, op string, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// 🏭 WrapError creates a typed error around a cause
func WrapError(kind ErrorKind, op string, err error) *Error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.LockedIn != "" {
		fmt.Fprintf(&b, " (locked in request %s)", e.LockedIn)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// 🔍 KindOf extracts the kind of any error, looking through wrapping
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// 🔍 AsError returns the typed error inside err, or nil
func AsError(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return KindOf(err).Transient()
}
