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

// Package log prints run progress for humans and mirrors it into zerolog.
package log

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"github.com/walteh/adtclean/pkg/model"
)

// 🎨 Display configuration
const (
	objectIndent = 4  // spaces to indent object entries
	nameWidth    = 35 // width for the object label
	statusWidth  = 18 // width for the outcome text
)

// 📦 RunInfo describes a run for the header line
type RunInfo struct {
	RunID   string
	Mode    model.Mode
	Base    string
	Objects int
	Workers int
}

// 🎯 Logger handles structured logging with console output
type Logger struct {
	zlog    zerolog.Logger
	console io.Writer
	mu      sync.Mutex
}

// 🏭 New creates a new logger
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{
		zlog:    zlog,
		console: console,
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the logger from context
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		panic("logger not found in context")
	}
	return logger
}

// 🎯 NewContext adds the logger to context
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

func outcomeStyle(o model.ObjectOutcome) (rune, color.Attribute, string) {
	switch o.Kind {
	case model.OutcomeUnchanged:
		return '•', color.FgCyan, "unchanged"
	case model.OutcomeCleanedDryRun:
		return '⟳', color.FgBlue, "cleaned (dry run)"
	case model.OutcomeCleanedCommitted:
		if o.Activated {
			return '✓', color.FgGreen, "committed"
		}
		return '✓', color.FgGreen, "committed (inactive)"
	default:
		return '✗', color.FgRed, "failed"
	}
}

func outcomeDetail(o model.ObjectOutcome) string {
	switch o.Kind {
	case model.OutcomeCleanedDryRun:
		return pluralize(len(o.AppliedRules), "rule")
	case model.OutcomeCleanedCommitted:
		detail := "transport " + o.Transport
		if len(o.Warnings) > 0 {
			detail += ", " + pluralize(len(o.Warnings), "warning")
		}
		return detail
	case model.OutcomeFailed:
		detail := fmt.Sprintf("%s/%s", o.Stage, o.ErrorKind)
		if o.Message != "" {
			detail += ": " + o.Message
		}
		if o.LockedIn != "" {
			detail += " (locked in " + o.LockedIn + ")"
		}
		return detail
	}
	return ""
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return strconv.Itoa(n) + " " + word + "s"
}

// 📝 formatOutcome formats one object outcome for display
func formatOutcome(o model.ObjectOutcome) string {
	symbol, symbolColor, status := outcomeStyle(o)
	return strings.TrimRight(fmt.Sprintf("%s%s %s %s %s",
		strings.Repeat(" ", objectIndent),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", nameWidth, o.Ref.String()),
		color.New(symbolColor).Sprint(fmt.Sprintf("%-*s", statusWidth, status)),
		outcomeDetail(o)), " ")
}

// 📝 LogOutcome prints the outcome of one object
func (l *Logger) LogOutcome(o model.ObjectOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintln(l.console, formatOutcome(o))

	ev := l.zlog.Info()
	if o.IsFailed() {
		ev = l.zlog.Warn()
	}
	ev.Str("object", o.Ref.String()).
		Str("url", o.Ref.URL).
		Str("outcome", o.Kind.String()).
		Str("stage", string(o.Stage)).
		Str("error_kind", string(o.ErrorKind)).
		Int("rules", len(o.AppliedRules)).
		Bool("written", o.Written).
		Dur("took", o.Duration).
		Msg("object processed")
}

// 📝 StartRun prints the run header
func (l *Logger) StartRun(info RunInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.console, "[cleaning %s on %s]\n",
		pluralize(info.Objects, "object"),
		color.New(color.FgCyan).Sprint(info.Base))

	fmt.Fprintf(l.console, "%s %s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprint(string(info.Mode)),
		color.New(color.Faint).Sprint("•"),
		color.New(color.FgYellow).Sprint(info.RunID))

	l.zlog.Info().
		Str("run_id", info.RunID).
		Str("mode", string(info.Mode)).
		Str("base", info.Base).
		Int("objects", info.Objects).
		Int("workers", info.Workers).
		Msg("starting run")
}

// 📊 PrintSummary renders the outcome counts and the failures of a run
func (l *Logger) PrintSummary(s *model.RunSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := s.Counts()
	data := pterm.TableData{
		{"outcome", "objects"},
		{"unchanged", strconv.Itoa(c.Unchanged)},
		{"cleaned (dry run)", strconv.Itoa(c.CleanedDryRun)},
		{"committed", strconv.Itoa(c.CleanedCommitted)},
		{"failed", strconv.Itoa(c.Failed)},
		{"total", strconv.Itoa(c.Total)},
	}

	fmt.Fprintln(l.console)
	if err := pterm.DefaultTable.WithHasHeader().WithWriter(l.console).WithData(data).Render(); err != nil {
		return err
	}

	for _, o := range s.FailedOutcomes() {
		pterm.Error.WithPrefix(pterm.Prefix{Text: "❌"}).WithWriter(l.console).
			Printfln("%s: %s", o.Ref.String(), outcomeDetail(o))
	}

	l.zlog.Info().
		Str("run_id", s.RunID).
		Int("total", c.Total).
		Int("unchanged", c.Unchanged).
		Int("cleaned_dry_run", c.CleanedDryRun).
		Int("cleaned_committed", c.CleanedCommitted).
		Int("failed", c.Failed).
		Dur("took", s.FinishedAt.Sub(s.StartedAt)).
		Msg("run complete")
	return nil
}

// 📝 Fatal prints an error that stopped the run before it started
func (l *Logger) Fatal(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pterm.Error.WithPrefix(pterm.Prefix{Text: "❌"}).WithWriter(l.console).Println(err.Error())
	l.zlog.Error().Err(err).Msg("run failed to start")
}

// 📝 LogNewline logs a newline
func (l *Logger) LogNewline() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.console)
}

// 📝 Header logs a header
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("adtclean")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Success logs a success message
func (l *Logger) Success(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Warning logs a warning message
func (l *Logger) Warning(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	l.zlog.Warn().Msg(msg)
}

// 📝 Error logs an error message
func (l *Logger) Error(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	l.zlog.Error().Msg(msg)
}

// 📝 Info logs an info message
func (l *Logger) Info(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	l.zlog.Info().Msg(msg)
}

// 📝 Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf logs a formatted warning message
func (l *Logger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf logs a formatted success message
func (l *Logger) Successf(format string, args ...interface{}) {
	l.Success(fmt.Sprintf(format, args...))
}
