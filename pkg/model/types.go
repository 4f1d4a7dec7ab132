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
	"net/url"
	"strings"
	"time"

	"gitlab.com/tozd/go/errors"
)

// 🎛️ Mode selects what happens to cleaned source
type Mode string

const (
	ModeTest           Mode = "test"
	ModeWriteback      Mode = "writeback"
	ModeWritebackNoAct Mode = "writeback_noact"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.TrimSpace(s)); m {
	case ModeTest, ModeWriteback, ModeWritebackNoAct:
		return m, nil
	default:
		return "", errors.Errorf("invalid mode %q (expected test, writeback or writeback_noact)", s)
	}
}

// WritesBack reports whether the mode commits to the remote system
func (m Mode) WritesBack() bool {
	return m == ModeWriteback || m == ModeWritebackNoAct
}

// Activates reports whether committed objects are activated
func (m Mode) Activates() bool {
	return m == ModeWriteback
}

// 🧭 Stage names the step of the object pipeline where an outcome was decided
type Stage string

const (
	StagePending  Stage = "pending"
	StageFetch    Stage = "fetch"
	StageLock     Stage = "lock"
	StageClean    Stage = "clean"
	StageDiff     Stage = "diff"
	StageRecord   Stage = "record"
	StageCommit   Stage = "commit"
	StageActivate Stage = "activate"
)

// 📍 ObjectReference identifies one remote code object
type ObjectReference struct {
	Index int    // position in the input list
	Raw   string // the reference as written in the input
	URL   string // absolute source endpoint
	Label string // object name, e.g. ZCL_FOO
	Stem  string // unique, filesystem-safe name for output files
}

// ObjectURI returns the object root: the URL without query and without the /source/... suffix.
func (r ObjectReference) ObjectURI() string {
	u := r.URL
	if i := strings.IndexByte(u, '?'); i >= 0 {
		u = u[:i]
	}
	if i := strings.Index(u, "/source/"); i >= 0 {
		u = u[:i]
	}
	return u
}

// Path returns the URL path of the reference
func (r ObjectReference) Path() string {
	p, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	return p.Path
}

func (r ObjectReference) String() string {
	if r.Label != "" {
		return r.Label
	}
	return r.URL
}

// 📄 SourceSnapshot is the source text of an object as fetched
type SourceSnapshot struct {
	Ref        ObjectReference
	Text       string // LF line endings
	ETag       string // concurrency token, empty if the server sent none
	LineEnding string // line ending style the server used
	FetchedAt  time.Time
}

// 🔒 LockHandle proves exclusive edit rights for one session
type LockHandle struct {
	Handle string
	CorrNr string
}

// ✨ CleanupResult is what the cleanup engine produced
type CleanupResult struct {
	Text         string
	AppliedRules []string
	Duration     time.Duration
}

// 🩺 Diagnostic is one activation or engine message
type Diagnostic struct {
	Severity string // E, W, I
	Text     string
	Object   string
	Href     string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Severity != "" {
		b.WriteString("[")
		b.WriteString(d.Severity)
		b.WriteString("] ")
	}
	if d.Object != "" {
		b.WriteString(d.Object)
		b.WriteString(": ")
	}
	b.WriteString(d.Text)
	return b.String()
}

// 📋 ActivationReport collects the messages returned by an activation
type ActivationReport struct {
	Warnings []Diagnostic
	Errors   []Diagnostic
}

// 🚚 TransportContext is the transport request commits are filed under
type TransportContext struct {
	CorrNr string
	Client string
}
