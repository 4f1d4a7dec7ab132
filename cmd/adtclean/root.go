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
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/config"
	"github.com/walteh/adtclean/pkg/log"
)

// 🚦 Process exit codes
const (
	exitOK      = 0 // every object succeeded or was unchanged
	exitFailed  = 1 // at least one object failed
	exitStartup = 2 // the run never started
)

// exitError carries the exit code out of cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func startupError(err error) error {
	return &exitError{code: exitStartup, err: err}
}

// rootOpts holds everything the root command needs
type rootOpts struct {
	cfg        *config.Config
	configFile string
	connector  string

	stdout io.Writer
	stderr io.Writer
	logger *log.Logger
}

func newRootOpts(stdout, stderr io.Writer) *rootOpts {
	return &rootOpts{
		cfg:       config.Defaults(),
		connector: "adt",
		stdout:    stdout,
		stderr:    stderr,
	}
}

// console returns the user facing logger, even before the run set one up
func (o *rootOpts) console() *log.Logger {
	if o.logger != nil {
		return o.logger
	}
	return log.New(o.stderr, zerolog.Nop())
}

func newRootCmd(o *rootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adtclean",
		Short: "Batch-clean ABAP objects with abap-cleaner",
		Long: `adtclean fetches ABAP sources over ADT, runs abap-cleaner on each one and
either writes the cleaned source and diff to disk (test mode) or writes it back
to the system under a transport request (writeback, writeback_noact).

Credentials are read from SAP_USER and SAP_PASS.`,
		Example: `  adtclean --base https://sap.example.com:44300 --client 100 --mode test --urls-file objects.txt
  adtclean --base https://sap.example.com:44300 --client 100 --mode writeback --corrnr DEVK900123 \
      --url /sap/bc/adt/oo/classes/zcl_demo/source/main`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), cmd)
		},
	}

	cfg := o.cfg
	f := cmd.Flags()
	f.StringVar(&cfg.Base, "base", cfg.Base, "base URL of the ADT endpoint")
	f.StringVar(&cfg.Client, "client", cfg.Client, "SAP client")
	f.BoolVar(&cfg.Insecure, "insecure", cfg.Insecure, "skip TLS certificate verification")
	f.StringVar(&cfg.Mode, "mode", cfg.Mode, "test, writeback or writeback_noact")
	f.StringVar(&cfg.CorrNr, "corrnr", cfg.CorrNr, "transport request, required when writing back")
	f.StringVar(&cfg.URLsFile, "urls-file", cfg.URLsFile, "file with one object reference per line")
	f.StringArrayVar(&cfg.URLs, "url", cfg.URLs, "object reference, may be repeated")
	f.StringSliceVar(&cfg.Include, "include", cfg.Include, "only process objects whose path matches one of these globs")
	f.StringSliceVar(&cfg.Exclude, "exclude", cfg.Exclude, "skip objects whose path matches one of these globs")
	f.StringVar(&cfg.OutDir, "outdir", cfg.OutDir, "directory for cleaned sources, diffs and summaries")
	f.StringVar(&cfg.Cleaner, "cleaner", cfg.Cleaner, "abap-cleaner command line executable")
	f.StringVar(&cfg.Profile, "profile", cfg.Profile, "abap-cleaner profile (.cfj)")
	f.StringVar(&cfg.Release, "release", cfg.Release, "ABAP release to restrict syntax to")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of objects processed in parallel")
	f.IntVar(&cfg.Retries, "retries", cfg.Retries, "retries for transient network failures")
	f.DurationVar(&cfg.EngineTimeout, "engine-timeout", cfg.EngineTimeout, "timeout for one abap-cleaner run")
	f.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "timeout for one ADT request")
	f.BoolVarP(&cfg.Debug, "debug", "d", cfg.Debug, "enable debug logging")
	f.StringVarP(&o.configFile, "config", "c", "", "YAML, JSON or HCL file with defaults for these flags")

	cmd.AddCommand(newVersionCmd(o))
	return cmd
}

// execute runs the command line and maps the result to an exit code
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o := newRootOpts(stdout, stderr)
	cmd := newRootCmd(o)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			o.console().Fatal(ee.err)
		}
		return ee.code
	}

	// flag parsing and usage errors
	o.console().Fatal(err)
	return exitStartup
}
