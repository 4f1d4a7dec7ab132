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
	"time"
)

// 📊 OutcomeKind is the variant tag of an ObjectOutcome
type OutcomeKind int

const (
	OutcomeUnchanged        OutcomeKind = iota // cleaning produced no diff
	OutcomeCleanedDryRun                       // diff recorded locally
	OutcomeCleanedCommitted                    // diff written to the remote system
	OutcomeFailed                              // something went wrong, see Stage and ErrorKind
)

// String returns a string representation of OutcomeKind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeCleanedDryRun:
		return "cleaned-dry-run"
	case OutcomeCleanedCommitted:
		return "cleaned-committed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// 🎯 ObjectOutcome is the single result recorded for one reference
type ObjectOutcome struct {
	Ref          ObjectReference `json:"-"`
	Kind         OutcomeKind     `json:"kind"`
	AppliedRules []string        `json:"applied_rules,omitempty"`
	Duration     time.Duration   `json:"duration_ns"`

	// CleanedDryRun
	Diff string `json:"-"`

	// CleanedCommitted
	Transport string   `json:"transport,omitempty"`
	Activated bool     `json:"activated,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`

	// Failed
	Stage       Stage     `json:"stage,omitempty"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	Diagnostics []string  `json:"diagnostics,omitempty"`
	LockedIn    string    `json:"locked_in,omitempty"`

	// WriteAttempted is set once an update was sent, Written once it was accepted
	WriteAttempted bool `json:"write_attempted,omitempty"`
	Written        bool `json:"written,omitempty"`
}

// 🏭 Unchanged creates an unchanged outcome
func Unchanged(ref ObjectReference) ObjectOutcome {
	return ObjectOutcome{Ref: ref, Kind: OutcomeUnchanged}
}

// 🏭 CleanedDryRun creates a dry run outcome
func CleanedDryRun(ref ObjectReference, diff string, rules []string) ObjectOutcome {
	return ObjectOutcome{Ref: ref, Kind: OutcomeCleanedDryRun, Diff: diff, AppliedRules: rules}
}

// 🏭 CleanedCommitted creates a committed outcome
func CleanedCommitted(ref ObjectReference, transport string, activated bool, warnings []string) ObjectOutcome {
	return ObjectOutcome{
		Ref:            ref,
		Kind:           OutcomeCleanedCommitted,
		Transport:      transport,
		Activated:      activated,
		Warnings:       warnings,
		WriteAttempted: true,
		Written:        true,
	}
}

// 🏭 Failed creates a failed outcome from an error
func Failed(ref ObjectReference, stage Stage, err error) ObjectOutcome {
	out := ObjectOutcome{
		Ref:       ref,
		Kind:      OutcomeFailed,
		Stage:     stage,
		ErrorKind: KindOf(err),
	}
	if typed := AsError(err); typed != nil {
		out.Message = typed.Msg
		out.Diagnostics = typed.Diagnostics
		out.LockedIn = typed.LockedIn
	} else if err != nil {
		out.Message = err.Error()
	}
	return out
}

// IsFailed reports whether the outcome is a failure
func (o ObjectOutcome) IsFailed() bool {
	return o.Kind == OutcomeFailed
}

// 📈 Counts tallies outcomes per kind
type Counts struct {
	Total            int `json:"total"`
	Unchanged        int `json:"unchanged"`
	CleanedDryRun    int `json:"cleaned_dry_run"`
	CleanedCommitted int `json:"cleaned_committed"`
	Failed           int `json:"failed"`
}

// 📚 RunSummary is the aggregate of one batch invocation
type RunSummary struct {
	RunID      string          `json:"run_id"`
	Mode       Mode            `json:"mode"`
	Transport  string          `json:"transport,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Outcomes   []ObjectOutcome `json:"-"`
}

// Counts tallies the outcomes of the run
func (s *RunSummary) Counts() Counts {
	c := Counts{Total: len(s.Outcomes)}
	for _, o := range s.Outcomes {
		switch o.Kind {
		case OutcomeUnchanged:
			c.Unchanged++
		case OutcomeCleanedDryRun:
			c.CleanedDryRun++
		case OutcomeCleanedCommitted:
			c.CleanedCommitted++
		case OutcomeFailed:
			c.Failed++
		}
	}
	return c
}

// Failed reports whether any object failed
func (s *RunSummary) Failed() bool {
	for _, o := range s.Outcomes {
		if o.IsFailed() {
			return true
		}
	}
	return false
}

// FailedOutcomes returns the failures in input order
func (s *RunSummary) FailedOutcomes() []ObjectOutcome {
	var out []ObjectOutcome
	for _, o := range s.Outcomes {
		if o.IsFailed() {
			out = append(out, o)
		}
	}
	return out
}
