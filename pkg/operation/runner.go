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

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/adtclean/pkg/model"
)

// 🏃 Runner fans references out over a fixed set of processors and
// returns outcomes in input order. Processor i is only ever used by worker i.
type Runner struct {
	Processors []*Processor

	// OnOutcome, when set, sees every outcome in input order as soon as
	// all earlier outcomes are known. It runs on the caller's goroutine.
	OnOutcome func(model.ObjectOutcome)
}

type job struct {
	pos int
	ref model.ObjectReference
}

type result struct {
	pos     int
	outcome model.ObjectOutcome
}

// 🎯 Run processes every reference and returns one outcome per reference.
// References not started before ctx is cancelled are reported as
// Failed{pending, Cancelled}.
func (r *Runner) Run(ctx context.Context, refs []model.ObjectReference) []model.ObjectOutcome {
	logger := zerolog.Ctx(ctx)
	if len(refs) == 0 {
		return nil
	}
	if len(r.Processors) == 0 {
		panic("operation: runner has no processors")
	}

	workers := min(len(r.Processors), len(refs))
	logger.Debug().Int("workers", workers).Int("objects", len(refs)).Msg("starting runner")

	jobs := make(chan job)
	results := make(chan result, len(refs))

	var g errgroup.Group

	g.Go(func() error {
		defer close(jobs)
		for i, ref := range refs {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case jobs <- job{pos: i, ref: ref}:
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		proc := r.Processors[w]
		wlog := logger.With().Int("worker", w).Logger()
		wctx := wlog.WithContext(ctx)
		g.Go(func() error {
			for j := range jobs {
				results <- result{pos: j.pos, outcome: runOne(wctx, proc, j.ref)}
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	outcomes := make([]model.ObjectOutcome, len(refs))
	done := make([]bool, len(refs))
	next := 0
	for res := range results {
		outcomes[res.pos] = res.outcome
		done[res.pos] = true
		for next < len(refs) && done[next] {
			r.emit(outcomes[next])
			next++
		}
	}

	for ; next < len(refs); next++ {
		if !done[next] {
			outcomes[next] = model.Failed(refs[next], model.StagePending,
				model.WrapError(model.KindCancelled, string(model.StagePending), context.Cause(ctx)))
		}
		r.emit(outcomes[next])
	}

	return outcomes
}

func (r *Runner) emit(o model.ObjectOutcome) {
	if r.OnOutcome != nil {
		r.OnOutcome(o)
	}
}

// runOne keeps a panic that escapes Process from taking down the batch
func runOne(ctx context.Context, proc *Processor, ref model.ObjectReference) (out model.ObjectOutcome) {
	if err := ctx.Err(); err != nil {
		return model.Failed(ref, model.StagePending, model.WrapError(model.KindCancelled, string(model.StagePending), err))
	}
	defer func() {
		if rec := recover(); rec != nil {
			zerolog.Ctx(ctx).Error().Interface("panic", rec).Str("object", ref.String()).Msg("object processing panicked")
			out = model.Failed(ref, model.StagePending, model.NewError(model.KindUnknown, "process", fmt.Sprintf("panic: %v", rec)))
		}
	}()
	return proc.Process(ctx, ref)
}
