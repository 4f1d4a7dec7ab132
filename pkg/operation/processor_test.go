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

package operation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/walteh/adtclean/pkg/engine"
	"github.com/walteh/adtclean/pkg/model"
)

const (
	dirtySource = "CLASS zcl_demo IMPLEMENTATION.\n  method run.\n  endmethod.\nENDCLASS.\n"
	cleanSource = "CLASS zcl_demo IMPLEMENTATION.\n  METHOD run.\n  ENDMETHOD.\nENDCLASS.\n"
	transportNr = "DEVK900001"
)

var (
	testRules = engine.RuleConfig{Profile: "team.cfj", Release: "757"}
	refDemo   = testRef(0, "ZCL_DEMO")
	snapDemo  = model.SourceSnapshot{Ref: refDemo, Text: dirtySource, ETag: "etag-1", LineEnding: "\n"}
	cleaned   = model.CleanupResult{Text: cleanSource, AppliedRules: []string{"Upper and lower case"}}
	unchanged = model.CleanupResult{Text: dirtySource}
	lockDemo  = model.LockHandle{Handle: "LOCK-1"}
	lockCorr  = model.LockHandle{Handle: "LOCK-1", CorrNr: transportNr}
	netErr    = model.NewError(model.KindNetwork, "fetch", "HTTP 503: service unavailable")
)

type processorMocks struct {
	session  *MockSession
	cleaner  *MockCleaner
	recorder *MockRecorder
}

func TestProcess(t *testing.T) {
	tests := []struct {
		name  string
		mode  model.Mode
		setup func(m processorMocks)
		check func(t *testing.T, out model.ObjectOutcome, m processorMocks)
	}{
		{
			name: "test_mode_records_diff_without_touching_the_object",
			mode: model.ModeTest,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(cleaned, nil).Once()
				m.recorder.On("Record", mock.Anything, refDemo, cleanSource, mock.AnythingOfType("string")).Return(nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeCleanedDryRun, out.Kind)
				assert.Contains(t, out.Diff, "-  method run.")
				assert.Contains(t, out.Diff, "+  METHOD run.")
				assert.Equal(t, []string{"Upper and lower case"}, out.AppliedRules)
				m.session.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
				m.session.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				m.session.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
				m.session.AssertNotCalled(t, "Unlock", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "test_mode_unchanged_records_nothing",
			mode: model.ModeTest,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(unchanged, nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeUnchanged, out.Kind)
				assert.Empty(t, out.Diff)
				m.recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "writeback_commits_and_activates",
			mode: model.ModeWriteback,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(cleaned, nil).Once()
				m.session.On("Update", mock.Anything, refDemo, lockCorr, snapDemo, cleanSource).Return(nil).Once()
				m.session.On("Activate", mock.Anything, refDemo, model.TransportContext{CorrNr: transportNr}).
					Return(model.ActivationReport{Warnings: []model.Diagnostic{{Severity: "W", Text: "unused variable"}}}, nil).Once()
				m.session.On("Unlock", mock.Anything, refDemo, lockDemo).Return(nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeCleanedCommitted, out.Kind)
				assert.True(t, out.Activated)
				assert.True(t, out.Written)
				assert.Equal(t, transportNr, out.Transport)
				require.Len(t, out.Warnings, 1)
				assert.Contains(t, out.Warnings[0], "unused variable")
				m.recorder.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "writeback_keeps_transport_from_lock",
			mode: model.ModeWriteback,
			setup: func(m processorMocks) {
				held := model.LockHandle{Handle: "LOCK-1", CorrNr: "DEVK900777"}
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(held, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(cleaned, nil).Once()
				m.session.On("Update", mock.Anything, refDemo, held, snapDemo, cleanSource).Return(nil).Once()
				m.session.On("Activate", mock.Anything, refDemo, model.TransportContext{CorrNr: "DEVK900777"}).
					Return(model.ActivationReport{}, nil).Once()
				m.session.On("Unlock", mock.Anything, refDemo, held).Return(nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeCleanedCommitted, out.Kind)
				assert.Equal(t, "DEVK900777", out.Transport)
			},
		},
		{
			name: "writeback_noact_skips_activation",
			mode: model.ModeWritebackNoAct,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(cleaned, nil).Once()
				m.session.On("Update", mock.Anything, refDemo, lockCorr, snapDemo, cleanSource).Return(nil).Once()
				m.session.On("Unlock", mock.Anything, refDemo, lockDemo).Return(nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeCleanedCommitted, out.Kind)
				assert.False(t, out.Activated)
				m.session.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "writeback_unchanged_only_unlocks",
			mode: model.ModeWriteback,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(unchanged, nil).Once()
				m.session.On("Unlock", mock.Anything, refDemo, lockDemo).Return(nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeUnchanged, out.Kind)
				m.session.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "locked_by_another_transport",
			mode: model.ModeWriteback,
			setup: func(m processorMocks) {
				locked := &model.Error{Kind: model.KindLocked, Op: "lock", Msg: "object is locked", LockedIn: "DEVK900123"}
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(model.LockHandle{}, locked).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeFailed, out.Kind)
				assert.Equal(t, model.StageLock, out.Stage)
				assert.Equal(t, model.KindLocked, out.ErrorKind)
				assert.Equal(t, "DEVK900123", out.LockedIn)
				m.cleaner.AssertNotCalled(t, "Clean", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				m.session.AssertNotCalled(t, "Unlock", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "conflict_on_update_is_not_retried",
			mode: model.ModeWriteback,
			setup: func(m processorMocks) {
				conflict := model.NewError(model.KindConflict, "commit", "HTTP 412: precondition failed")
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(cleaned, nil).Once()
				m.session.On("Update", mock.Anything, refDemo, lockCorr, snapDemo, cleanSource).Return(conflict).Once()
				m.session.On("Unlock", mock.Anything, refDemo, lockDemo).Return(nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeFailed, out.Kind)
				assert.Equal(t, model.StageCommit, out.Stage)
				assert.Equal(t, model.KindConflict, out.ErrorKind)
				assert.True(t, out.WriteAttempted)
				assert.False(t, out.Written)
				m.session.AssertNumberOfCalls(t, "Update", 1)
				m.session.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "engine_crash_still_unlocks_once",
			mode: model.ModeWriteback,
			setup: func(m processorMocks) {
				crash := &model.Error{Kind: model.KindEngineCrash, Op: "clean", Msg: "exit status 3", Diagnostics: []string{"parse error in line 2"}}
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(model.CleanupResult{}, crash).Once()
				m.session.On("Unlock", mock.Anything, refDemo, lockDemo).Return(nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.StageClean, out.Stage)
				assert.Equal(t, model.KindEngineCrash, out.ErrorKind)
				assert.Equal(t, []string{"parse error in line 2"}, out.Diagnostics)
				m.session.AssertNumberOfCalls(t, "Unlock", 1)
				m.session.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			},
		},
		{
			name: "activation_error_keeps_write",
			mode: model.ModeWriteback,
			setup: func(m processorMocks) {
				actErr := &model.Error{Kind: model.KindActivation, Op: "activate", Msg: "activation failed", Diagnostics: []string{"[E] ZCL_DEMO: syntax error"}}
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(cleaned, nil).Once()
				m.session.On("Update", mock.Anything, refDemo, lockCorr, snapDemo, cleanSource).Return(nil).Once()
				m.session.On("Activate", mock.Anything, refDemo, model.TransportContext{CorrNr: transportNr}).
					Return(model.ActivationReport{Errors: []model.Diagnostic{{Severity: "E", Text: "syntax error"}}}, actErr).Once()
				m.session.On("Unlock", mock.Anything, refDemo, lockDemo).Return(nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeFailed, out.Kind)
				assert.Equal(t, model.StageActivate, out.Stage)
				assert.Equal(t, model.KindActivation, out.ErrorKind)
				assert.True(t, out.WriteAttempted)
				assert.True(t, out.Written)
				assert.Equal(t, transportNr, out.Transport)
				assert.Equal(t, []string{"[E] ZCL_DEMO: syntax error"}, out.Diagnostics)
			},
		},
		{
			name: "unlock_failure_is_a_warning",
			mode: model.ModeWritebackNoAct,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(cleaned, nil).Once()
				m.session.On("Update", mock.Anything, refDemo, lockCorr, snapDemo, cleanSource).Return(nil).Once()
				m.session.On("Unlock", mock.Anything, refDemo, lockDemo).Return(model.NewError(model.KindRemote, "unlock", "HTTP 500: boom")).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeCleanedCommitted, out.Kind)
				require.Len(t, out.Warnings, 1)
				assert.Contains(t, out.Warnings[0], "unlock failed")
			},
		},
		{
			name: "transient_fetch_is_retried",
			mode: model.ModeTest,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(model.SourceSnapshot{}, netErr).Twice()
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(unchanged, nil).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.OutcomeUnchanged, out.Kind)
				m.session.AssertNumberOfCalls(t, "Fetch", 3)
			},
		},
		{
			name: "transient_fetch_gives_up",
			mode: model.ModeTest,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(model.SourceSnapshot{}, netErr)
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.StageFetch, out.Stage)
				assert.Equal(t, model.KindNetwork, out.ErrorKind)
				m.session.AssertNumberOfCalls(t, "Fetch", 3)
			},
		},
		{
			name: "not_found_is_not_retried",
			mode: model.ModeWriteback,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(model.SourceSnapshot{}, model.NewError(model.KindNotFound, "fetch", "HTTP 404: not found")).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.StageFetch, out.Stage)
				assert.Equal(t, model.KindNotFound, out.ErrorKind)
				m.session.AssertNumberOfCalls(t, "Fetch", 1)
				m.session.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
			},
		},
		{
			name: "record_failure_is_io_error",
			mode: model.ModeTest,
			setup: func(m processorMocks) {
				m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
				m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).Return(cleaned, nil).Once()
				m.recorder.On("Record", mock.Anything, refDemo, cleanSource, mock.AnythingOfType("string")).
					Return(context.DeadlineExceeded).Once()
			},
			check: func(t *testing.T, out model.ObjectOutcome, m processorMocks) {
				assert.Equal(t, model.StageRecord, out.Stage)
				assert.Equal(t, model.KindIO, out.ErrorKind)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := processorMocks{session: &MockSession{}, cleaner: &MockCleaner{}, recorder: &MockRecorder{}}
			tt.setup(m)

			p := &Processor{
				Session:   m.session,
				Cleaner:   m.cleaner,
				Rules:     testRules,
				Recorder:  m.recorder,
				Mode:      tt.mode,
				Transport: model.TransportContext{CorrNr: transportNr},
				Policy:    testPolicy(),
			}

			out := p.Process(testContext(t), refDemo)
			assert.Equal(t, refDemo, out.Ref)
			tt.check(t, out, m)

			m.session.AssertExpectations(t)
			m.cleaner.AssertExpectations(t)
			m.recorder.AssertExpectations(t)
		})
	}
}

func TestProcessCancellation(t *testing.T) {
	t.Run("cancelled_before_start", func(t *testing.T) {
		m := processorMocks{session: &MockSession{}, cleaner: &MockCleaner{}, recorder: &MockRecorder{}}
		p := &Processor{Session: m.session, Cleaner: m.cleaner, Recorder: m.recorder, Mode: model.ModeWriteback, Policy: testPolicy()}

		ctx, cancel := context.WithCancel(testContext(t))
		cancel()

		out := p.Process(ctx, refDemo)
		assert.Equal(t, model.OutcomeFailed, out.Kind)
		assert.Equal(t, model.StageFetch, out.Stage)
		assert.Equal(t, model.KindCancelled, out.ErrorKind)
		assert.Empty(t, m.session.Calls)
	})

	t.Run("cancelled_while_cleaning_releases_lock", func(t *testing.T) {
		m := processorMocks{session: &MockSession{}, cleaner: &MockCleaner{}, recorder: &MockRecorder{}}
		ctx, cancel := context.WithCancel(testContext(t))
		defer cancel()

		m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
		m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
		m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(cleaned, nil).Once()
		m.session.On("Unlock", mock.Anything, refDemo, lockDemo).
			Run(func(args mock.Arguments) {
				// unlock must not inherit the cancellation
				assert.NoError(t, args.Get(0).(context.Context).Err())
			}).
			Return(nil).Once()

		p := &Processor{
			Session: m.session, Cleaner: m.cleaner, Rules: testRules, Recorder: m.recorder,
			Mode: model.ModeWriteback, Transport: model.TransportContext{CorrNr: transportNr}, Policy: testPolicy(),
		}

		out := p.Process(ctx, refDemo)
		assert.Equal(t, model.StageDiff, out.Stage)
		assert.Equal(t, model.KindCancelled, out.ErrorKind)
		m.session.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.session.AssertExpectations(t)
	})
}

func TestStateStage(t *testing.T) {
	assert.Equal(t, model.StageFetch, stateFetching.stage())
	assert.Equal(t, model.StageLock, stateLocked.stage())
	assert.Equal(t, model.StageClean, stateCleaning.stage())
	assert.Equal(t, model.StageDiff, stateDeciding.stage())
	assert.Equal(t, model.StageCommit, stateCommitting.stage())
	assert.Equal(t, model.StageRecord, stateRecording.stage())
	assert.Equal(t, "releasing", stateReleasing.String())
}

func TestProcessPanicReleasesLock(t *testing.T) {
	m := processorMocks{session: &MockSession{}, cleaner: &MockCleaner{}, recorder: &MockRecorder{}}
	m.session.On("Fetch", mock.Anything, refDemo).Return(snapDemo, nil).Once()
	m.session.On("Lock", mock.Anything, refDemo).Return(lockDemo, nil).Once()
	m.cleaner.On("Clean", mock.Anything, dirtySource, testRules, mock.Anything).
		Run(func(mock.Arguments) { panic("nil profile") }).
		Return(cleaned, nil).Once()
	m.session.On("Unlock", mock.Anything, refDemo, lockDemo).Return(nil).Once()

	p := &Processor{
		Session: m.session, Cleaner: m.cleaner, Rules: testRules, Recorder: m.recorder,
		Mode: model.ModeWriteback, Transport: model.TransportContext{CorrNr: transportNr}, Policy: testPolicy(),
	}

	var out model.ObjectOutcome
	require.NotPanics(t, func() { out = p.Process(testContext(t), refDemo) })
	assert.Equal(t, model.OutcomeFailed, out.Kind)
	assert.Equal(t, model.StageClean, out.Stage)
	assert.Equal(t, model.KindUnknown, out.ErrorKind)
	assert.Contains(t, out.Message, "nil profile")
	m.session.AssertNumberOfCalls(t, "Unlock", 1)
	m.session.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.session.AssertExpectations(t)
}
