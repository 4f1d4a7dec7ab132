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
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/walteh/adtclean/pkg/diff"
	"github.com/walteh/adtclean/pkg/engine"
	"github.com/walteh/adtclean/pkg/model"
	"github.com/walteh/adtclean/pkg/remote"
)

const (
	defaultRetryBase = 500 * time.Millisecond
	maxRetryWait     = 10 * time.Second
)

// 📝 Recorder persists the result of a dry run
type Recorder interface {
	Record(ctx context.Context, ref model.ObjectReference, cleaned string, diff string) error
}

// ⏱️ Policy bounds every remote and engine call
type Policy struct {
	RequestTimeout time.Duration
	EngineTimeout  time.Duration
	Retries        uint64        // extra attempts for transient failures
	RetryBase      time.Duration // first backoff step
}

// 🧩 Processor drives one object at a time through the cleanup pipeline.
// It is bound to a single session and must not be shared between goroutines.
type Processor struct {
	Session   remote.Session
	Cleaner   engine.Cleaner
	Rules     engine.RuleConfig
	Recorder  Recorder
	Mode      model.Mode
	Transport model.TransportContext
	Policy    Policy
}

type state int

const (
	stateFetching state = iota
	stateLocked
	stateCleaning
	stateDeciding
	stateCommitting
	stateRecording
	stateReleasing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateFetching:
		return "fetching"
	case stateLocked:
		return "locked"
	case stateCleaning:
		return "cleaning"
	case stateDeciding:
		return "deciding"
	case stateCommitting:
		return "committing"
	case stateRecording:
		return "recording"
	case stateReleasing:
		return "releasing"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// stage is where an outcome is attributed when the pipeline stops before s
func (s state) stage() model.Stage {
	switch s {
	case stateFetching:
		return model.StageFetch
	case stateLocked:
		return model.StageLock
	case stateCleaning:
		return model.StageClean
	case stateDeciding:
		return model.StageDiff
	case stateCommitting:
		return model.StageCommit
	case stateRecording:
		return model.StageRecord
	default:
		return model.StagePending
	}
}

// objectRun is the working state of one object
type objectRun struct {
	ref      model.ObjectReference
	snapshot model.SourceSnapshot
	lock     *model.LockHandle
	result   model.CleanupResult
	diff     string
	outcome  model.ObjectOutcome
}

func (r *objectRun) finish(o model.ObjectOutcome) {
	if o.AppliedRules == nil {
		o.AppliedRules = r.result.AppliedRules
	}
	r.outcome = o
}

func (r *objectRun) fail(stage model.Stage, err error) {
	r.finish(model.Failed(r.ref, stage, err))
}

// 🎯 Process runs one object to completion and always returns exactly one outcome.
// Cancellation of ctx is honoured between transitions only; a held lock is
// always released, even when a step panics.
func (p *Processor) Process(ctx context.Context, ref model.ObjectReference) (out model.ObjectOutcome) {
	logger := zerolog.Ctx(ctx).With().Str("object", ref.String()).Logger()
	ctx = logger.WithContext(ctx)

	start := time.Now()
	r := &objectRun{ref: ref}
	st := stateFetching

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Str("state", st.String()).Msg("object processing panicked")
			r.fail(st.stage(), model.NewError(model.KindUnknown, string(st.stage()), fmt.Sprintf("panic: %v", rec)))
			p.release(ctx, r)
			r.outcome.Duration = time.Since(start)
			out = r.outcome
		}
	}()

	for st != stateDone {
		if st != stateReleasing && ctx.Err() != nil {
			logger.Debug().Str("state", st.String()).Msg("cancelled before transition")
			r.fail(st.stage(), model.WrapError(model.KindCancelled, string(st.stage()), ctx.Err()))
			st = stateReleasing
			continue
		}
		logger.Debug().Str("state", st.String()).Msg("transition")
		st = p.step(ctx, st, r)
	}

	r.outcome.Duration = time.Since(start)
	return r.outcome
}

func (p *Processor) step(ctx context.Context, st state, r *objectRun) state {
	switch st {
	case stateFetching:
		err := p.withRetry(ctx, "fetch", func(ctx context.Context) error {
			snap, err := p.Session.Fetch(ctx, r.ref)
			if err != nil {
				return err
			}
			r.snapshot = snap
			return nil
		})
		if err != nil {
			r.fail(model.StageFetch, err)
			return stateReleasing
		}
		if p.Mode.WritesBack() {
			return stateLocked
		}
		return stateCleaning

	case stateLocked:
		err := p.withRetry(ctx, "lock", func(ctx context.Context) error {
			lock, err := p.Session.Lock(ctx, r.ref)
			if err != nil {
				return err
			}
			r.lock = &lock
			return nil
		})
		if err != nil {
			r.fail(model.StageLock, err)
			return stateReleasing
		}
		return stateCleaning

	case stateCleaning:
		res, err := p.Cleaner.Clean(detached(ctx), r.snapshot.Text, p.Rules, p.Policy.EngineTimeout)
		if err != nil {
			r.fail(model.StageClean, err)
			return stateReleasing
		}
		r.result = res
		return stateDeciding

	case stateDeciding:
		name := r.ref.Stem
		if name == "" {
			name = r.ref.Label
		}
		r.diff = diff.Unified(name, r.snapshot.Text, r.result.Text)
		if r.diff == "" {
			r.finish(model.Unchanged(r.ref))
			return stateReleasing
		}
		if p.Mode.WritesBack() {
			return stateCommitting
		}
		return stateRecording

	case stateRecording:
		callCtx, cancel := p.callContext(ctx, p.Policy.RequestTimeout)
		defer cancel()
		if err := p.Recorder.Record(callCtx, r.ref, r.result.Text, r.diff); err != nil {
			if model.KindOf(err) != model.KindIO {
				err = model.WrapError(model.KindIO, "record", err)
			}
			r.fail(model.StageRecord, err)
			return stateReleasing
		}
		r.finish(model.CleanedDryRun(r.ref, r.diff, r.result.AppliedRules))
		return stateReleasing

	case stateCommitting:
		p.commit(ctx, r)
		return stateReleasing

	case stateReleasing:
		p.release(ctx, r)
		return stateDone
	}
	return stateDone
}

// commit writes the cleaned source and activates it. A failed activation
// leaves the written source in place.
func (p *Processor) commit(ctx context.Context, r *objectRun) {
	logger := zerolog.Ctx(ctx)

	lock := *r.lock
	if lock.CorrNr == "" {
		lock.CorrNr = p.Transport.CorrNr
	}

	err := p.withRetry(ctx, "commit", func(ctx context.Context) error {
		return p.Session.Update(ctx, r.ref, lock, r.snapshot, r.result.Text)
	})
	if err != nil {
		r.fail(model.StageCommit, err)
		r.outcome.WriteAttempted = true
		return
	}
	logger.Debug().Str("transport", lock.CorrNr).Msg("source written")

	if !p.Mode.Activates() {
		r.finish(model.CleanedCommitted(r.ref, lock.CorrNr, false, nil))
		return
	}

	var report model.ActivationReport
	err = p.withRetry(ctx, "activate", func(ctx context.Context) error {
		var err error
		report, err = p.Session.Activate(ctx, r.ref, model.TransportContext{CorrNr: lock.CorrNr, Client: p.Transport.Client})
		return err
	})
	warnings := diagnosticStrings(report.Warnings)
	if err != nil {
		r.fail(model.StageActivate, err)
		r.outcome.WriteAttempted = true
		r.outcome.Written = true
		r.outcome.Transport = lock.CorrNr
		r.outcome.Warnings = warnings
		return
	}
	r.finish(model.CleanedCommitted(r.ref, lock.CorrNr, true, warnings))
}

// release unlocks a held lock exactly once; failures only produce a warning
func (p *Processor) release(ctx context.Context, r *objectRun) {
	if r.lock == nil {
		return
	}
	lock := *r.lock
	r.lock = nil

	callCtx, cancel := p.callContext(ctx, p.Policy.RequestTimeout)
	defer cancel()
	if err := p.Session.Unlock(callCtx, r.ref, lock); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("unlock failed")
		r.outcome.Warnings = append(r.outcome.Warnings, "unlock failed: "+err.Error())
	}
}

// withRetry runs fn with a per attempt timeout, retrying transient failures
// with exponential backoff. It ignores cancellation of ctx.
func (p *Processor) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	base := p.Policy.RetryBase
	if base <= 0 {
		base = defaultRetryBase
	}
	backoff := retry.NewExponential(base)
	backoff = retry.WithCappedDuration(maxRetryWait, backoff)
	backoff = retry.WithJitter(base/2, backoff)
	backoff = retry.WithMaxRetries(p.Policy.Retries, backoff)

	attempt := 0
	return retry.Do(detached(ctx), backoff, func(rctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(rctx, p.timeout())
		defer cancel()
		err := fn(callCtx)
		if err != nil && model.IsTransient(err) {
			zerolog.Ctx(ctx).Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient failure, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

func (p *Processor) timeout() time.Duration {
	if p.Policy.RequestTimeout > 0 {
		return p.Policy.RequestTimeout
	}
	return time.Minute
}

func (p *Processor) callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = p.timeout()
	}
	return context.WithTimeout(detached(ctx), timeout)
}

// detached keeps ctx values (the logger) but not its cancellation
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func diagnosticStrings(ds []model.Diagnostic) []string {
	if len(ds) == 0 {
		return nil
	}
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.String())
	}
	return out
}
