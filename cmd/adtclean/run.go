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

package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/adtclean/pkg/config"
	"github.com/walteh/adtclean/pkg/engine"
	"github.com/walteh/adtclean/pkg/log"
	"github.com/walteh/adtclean/pkg/model"
	"github.com/walteh/adtclean/pkg/operation"
	"github.com/walteh/adtclean/pkg/refs"
	"github.com/walteh/adtclean/pkg/remote"
	"github.com/walteh/adtclean/pkg/status"
)

// run wires configuration, the remote system, the engine and the output
// directory together and executes one batch
func (o *rootOpts) run(ctx context.Context, cmd *cobra.Command) error {
	cfg := o.cfg

	if o.configFile != "" {
		file, err := config.LoadFile(ctx, o.configFile)
		if err != nil {
			return startupError(model.WrapError(model.KindConfig, "config", err))
		}
		if err := cfg.ApplyFile(file, cmd.Flags().Changed); err != nil {
			return startupError(err)
		}
	}

	zlog := newZerolog(o, cfg.Debug)
	ctx = zlog.WithContext(ctx)
	o.logger = log.New(o.stdout, zlog)
	ctx = log.NewContext(ctx, o.logger)

	if err := cfg.Validate(); err != nil {
		return startupError(err)
	}
	mode := cfg.RunMode()

	creds, err := remote.CredentialsFromEnv()
	if err != nil {
		return startupError(err)
	}

	rules := engine.RuleConfig{Profile: cfg.Profile, Release: cfg.Release}
	cleaner, err := engine.New(cfg.Cleaner, rules)
	if err != nil {
		return startupError(err)
	}

	objects, err := refs.Load(ctx, refs.Options{
		Base:    cfg.Base,
		URLs:    cfg.URLs,
		File:    cfg.URLsFile,
		Include: cfg.Include,
		Exclude: cfg.Exclude,
	})
	if err != nil {
		return startupError(err)
	}

	store := status.New(cfg.OutDir, &zlog)
	if err := store.Prepare(ctx); err != nil {
		return startupError(model.WrapError(model.KindIO, "outdir", err))
	}

	workers := min(cfg.Workers, len(objects))
	sessions, err := o.connect(ctx, creds, workers)
	if err != nil {
		return startupError(err)
	}
	defer func() {
		for _, s := range sessions {
			if err := s.Close(); err != nil {
				zlog.Debug().Err(err).Msg("closing session")
			}
		}
	}()

	runID := uuid.NewString()
	o.logger.StartRun(log.RunInfo{
		RunID:   runID,
		Mode:    mode,
		Base:    cfg.Base,
		Objects: len(objects),
		Workers: workers,
	})

	batch := &operation.Batch{
		RunID:     runID,
		Mode:      mode,
		Transport: model.TransportContext{CorrNr: cfg.CorrNr, Client: cfg.Client},
		Sessions:  sessions,
		Cleaner:   cleaner,
		Rules:     rules,
		Recorder:  store,
		Output:    store,
		Policy: operation.Policy{
			RequestTimeout: cfg.RequestTimeout,
			EngineTimeout:  cfg.EngineTimeout,
			Retries:        uint64(cfg.Retries),
		},
		OnOutcome: o.logger.LogOutcome,
	}

	summary, err := batch.Run(ctx, objects)
	if err != nil {
		return startupError(err)
	}

	writeErr := store.WriteSummary(ctx, summary)
	if err := o.logger.PrintSummary(summary); err != nil {
		zlog.Warn().Err(err).Msg("rendering summary")
	}
	if writeErr != nil {
		return &exitError{code: exitFailed, err: errors.Errorf("writing summary: %w", writeErr)}
	}
	if summary.Failed() {
		return &exitError{code: exitFailed}
	}
	o.logger.Successf("all %d objects processed", len(summary.Outcomes))
	return nil
}

// connect opens one authenticated session per worker
func (o *rootOpts) connect(ctx context.Context, creds remote.Credentials, workers int) ([]remote.Session, error) {
	conn, err := remote.Get(o.connector)
	if err != nil {
		return nil, model.WrapError(model.KindConfig, "connect", err)
	}

	cfg := o.cfg
	target := remote.Target{
		BaseURL:  cfg.Base,
		Client:   cfg.Client,
		Insecure: cfg.Insecure,
		Timeout:  cfg.RequestTimeout,
	}

	sessions := make([]remote.Session, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range sessions {
		g.Go(func() error {
			s, err := conn.Authenticate(gctx, creds, target)
			if err != nil {
				return err
			}
			sessions[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range sessions {
			if s != nil {
				_ = s.Close()
			}
		}
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Int("sessions", workers).Str("user", creds.User).Msg("authenticated")
	return sessions, nil
}

func newZerolog(o *rootOpts, debug bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: o.stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().
		Logger()
}
