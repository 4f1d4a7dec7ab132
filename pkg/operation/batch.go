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
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/walteh/adtclean/pkg/engine"
	"github.com/walteh/adtclean/pkg/model"
	"github.com/walteh/adtclean/pkg/remote"
)

// 🧹 Resetter clears what a previous run left in the output
type Resetter interface {
	Reset(ctx context.Context) error
}

// 📦 Batch describes one cleanup run
type Batch struct {
	RunID     string
	Mode      model.Mode
	Transport model.TransportContext
	Sessions  []remote.Session // one per worker
	Cleaner   engine.Cleaner
	Rules     engine.RuleConfig
	Recorder  Recorder
	Output    Resetter // optional, reset once startup checks pass
	Policy    Policy
	OnOutcome func(model.ObjectOutcome)
}

// 🚀 Run validates the batch, processes every reference and returns the summary.
// An error means the batch never started; per object failures are only
// reported through the summary.
func (b *Batch) Run(ctx context.Context, refs []model.ObjectReference) (*model.RunSummary, error) {
	logger := zerolog.Ctx(ctx)

	if len(b.Sessions) == 0 {
		return nil, model.NewError(model.KindConfig, "run", "no sessions")
	}
	if b.Cleaner == nil {
		return nil, model.NewError(model.KindConfig, "run", "no cleaner")
	}
	if !b.Mode.WritesBack() && b.Recorder == nil {
		return nil, model.NewError(model.KindConfig, "run", "test mode needs a recorder")
	}

	if b.Mode.WritesBack() {
		if b.Transport.CorrNr == "" {
			return nil, model.NewError(model.KindInvalidTransport, "run", "mode "+string(b.Mode)+" requires a transport request")
		}
		if err := b.Sessions[0].ValidateTransport(ctx, b.Transport); err != nil {
			return nil, err
		}
		logger.Info().Str("transport", b.Transport.CorrNr).Msg("transport validated")
	}

	if b.Output != nil {
		if err := b.Output.Reset(ctx); err != nil {
			return nil, err
		}
	}

	runID := b.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	summary := &model.RunSummary{
		RunID:     runID,
		Mode:      b.Mode,
		Transport: b.Transport.CorrNr,
		StartedAt: time.Now(),
	}

	procs := make([]*Processor, len(b.Sessions))
	for i, s := range b.Sessions {
		procs[i] = &Processor{
			Session:   s,
			Cleaner:   b.Cleaner,
			Rules:     b.Rules,
			Recorder:  b.Recorder,
			Mode:      b.Mode,
			Transport: b.Transport,
			Policy:    b.Policy,
		}
	}

	runner := &Runner{Processors: procs, OnOutcome: b.OnOutcome}
	summary.Outcomes = runner.Run(logger.With().Str("run", runID).Logger().WithContext(ctx), refs)
	summary.FinishedAt = time.Now()

	c := summary.Counts()
	logger.Info().
		Int("total", c.Total).
		Int("unchanged", c.Unchanged).
		Int("cleaned", c.CleanedDryRun+c.CleanedCommitted).
		Int("failed", c.Failed).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("run finished")

	return summary, nil
}
