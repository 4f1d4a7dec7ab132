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

package engine

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/model"
	"github.com/walteh/adtclean/pkg/text"
)

const op = "clean"

// 🧹 Cleaner turns source text into cleaned source text
type Cleaner interface {
	Clean(ctx context.Context, source string, rules RuleConfig, timeout time.Duration) (model.CleanupResult, error)
}

// ⚙️ RuleConfig selects the cleanup profile and the target ABAP release
type RuleConfig struct {
	Profile string // path to a .cfj profile, empty for the engine default
	Release string // e.g. 757
}

// 🔧 Command runs the cleaner executable in a private temp dir per call
type Command struct {
	Executable string
	TempDir    string // parent for per-call dirs, os.TempDir() when empty
}

var _ Cleaner = (*Command)(nil)

// 🏭 New verifies the executable and the profile exist
func New(executable string, rules RuleConfig) (*Command, error) {
	if executable == "" {
		return nil, model.NewError(model.KindConfig, "engine", "no cleaner executable configured")
	}
	path, err := exec.LookPath(executable)
	if err != nil {
		return nil, model.WrapError(model.KindConfig, "engine", errors.Errorf("cleaner not found: %w", err))
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Command{Executable: path}, nil
}

// Validate checks the profile file exists when one is set
func (r RuleConfig) Validate() error {
	if r.Profile == "" {
		return nil
	}
	fi, err := os.Stat(r.Profile)
	if err != nil {
		return model.WrapError(model.KindConfig, "engine", errors.Errorf("profile not found: %w", err))
	}
	if fi.IsDir() {
		return model.NewError(model.KindConfig, "engine", "profile is a directory: "+r.Profile)
	}
	return nil
}

func (r RuleConfig) args(src, dst string) []string {
	args := []string{"--sourcefile", src, "--targetfile", dst, "--overwrite"}
	if r.Profile != "" {
		args = append(args, "--profile", r.Profile)
	}
	if r.Release != "" {
		args = append(args, "--release", r.Release)
	}
	return append(args, "--usedrules")
}

// ✨ Clean runs the engine once. A non-zero exit is a crash and any partial output is discarded.
func (c *Command) Clean(ctx context.Context, source string, rules RuleConfig, timeout time.Duration) (model.CleanupResult, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	dir, err := os.MkdirTemp(c.TempDir, "adtclean-*")
	if err != nil {
		return model.CleanupResult{}, model.WrapError(model.KindIO, op, errors.Errorf("creating temp dir: %w", err))
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "in.abap")
	dst := filepath.Join(dir, "out.abap")
	if err := os.WriteFile(src, []byte(text.NormalizeNewlines(source)), 0o600); err != nil {
		return model.CleanupResult{}, model.WrapError(model.KindIO, op, errors.Errorf("writing engine input: %w", err))
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.Executable, rules.args(src, dst)...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	logger.Debug().Str("exe", c.Executable).Strs("args", cmd.Args[1:]).Msg("running cleanup engine")

	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			return model.CleanupResult{}, model.NewError(model.KindEngineTimeout, op, "engine did not finish within "+timeout.String())
		case ctx.Err() != nil:
			return model.CleanupResult{}, model.WrapError(model.KindCancelled, op, ctx.Err())
		}
		e := model.WrapError(model.KindEngineCrash, op, errors.Errorf("running %s: %w", filepath.Base(c.Executable), runErr))
		e.Diagnostics = outputLines(stderr.Bytes(), stdout.Bytes())
		return model.CleanupResult{}, e
	}

	raw, err := os.ReadFile(dst)
	if err != nil {
		e := model.WrapError(model.KindEngineOutput, op, errors.Errorf("reading engine output: %w", err))
		e.Diagnostics = outputLines(stderr.Bytes(), stdout.Bytes())
		return model.CleanupResult{}, e
	}

	cleaned, err := text.Sanitize(raw)
	if err != nil {
		return model.CleanupResult{}, model.WrapError(model.KindEngineOutput, op, err)
	}
	if strings.TrimSpace(cleaned) == "" && strings.TrimSpace(source) != "" {
		e := model.NewError(model.KindEngineOutput, op, "engine returned empty output")
		e.Diagnostics = outputLines(stderr.Bytes(), stdout.Bytes())
		return model.CleanupResult{}, e
	}
	if !text.IsText(cleaned) {
		return model.CleanupResult{}, model.NewError(model.KindEngineOutput, op, "engine output is not text")
	}

	rulesOut, _ := text.Decode(stdout.Bytes())
	res := model.CleanupResult{
		Text:         cleaned,
		AppliedRules: ParseUsedRules(rulesOut),
		Duration:     elapsed,
	}

	logger.Debug().Dur("took", elapsed).Int("rules", len(res.AppliedRules)).Msg("cleanup engine finished")

	return res, nil
}

// 📝 ParseUsedRules reads the rule names the engine prints with --usedrules.
// Heading lines end in a colon and are skipped; duplicates keep the first position.
func ParseUsedRules(out string) []string {
	var rules []string
	seen := map[string]bool{}
	for _, line := range strings.Split(text.NormalizeNewlines(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "- "))
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		rules = append(rules, line)
	}
	return rules
}

// outputLines keeps the first lines of the engine's output for diagnostics
func outputLines(streams ...[]byte) []string {
	const limit = 20
	var lines []string
	for _, s := range streams {
		decoded, _ := text.Decode(s)
		for _, line := range strings.Split(text.NormalizeNewlines(decoded), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				lines = append(lines, line)
			}
			if len(lines) == limit {
				return lines
			}
		}
	}
	return lines
}
