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
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/adtclean/pkg/diff"
	"github.com/walteh/adtclean/pkg/model"
)

const argLoop = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --sourcefile) src="$2"; shift 2 ;;
    --targetfile) dst="$2"; shift 2 ;;
    *) shift ;;
  esac
done
`

// upper case everything, which is idempotent
const upperScript = argLoop + `tr '[:lower:]' '[:upper:]' < "$src" > "$dst"
echo "Used rules:"
echo "- Convert keywords to upper case"
echo "- Convert keywords to upper case"
echo "- Align declarations"
`

const crashScript = argLoop + `echo "partial" > "$dst"
echo "java.lang.NullPointerException" >&2
exit 3
`

const slowScript = argLoop + `exec sleep 5
`

const emptyScript = argLoop + `: > "$dst"
`

const noOutputScript = argLoop + `exit 0
`

const binaryScript = argLoop + `printf 'A\000B' > "$dst"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stand-ins need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "abap-cleanerc")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755), "writing stand-in engine")
	return path
}

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).WithContext(context.Background())
}

func TestCleanSuccess(t *testing.T) {
	ctx := testContext(t)
	cmd, err := New(writeScript(t, upperScript), RuleConfig{Release: "757"})
	require.NoError(t, err)

	res, err := cmd.Clean(ctx, "report ztest.\r\nwrite 'x'.\r\n", RuleConfig{Release: "757"}, 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "REPORT ZTEST.\nWRITE 'X'.\n", res.Text, "output should be normalized to LF")
	assert.Equal(t, []string{"Convert keywords to upper case", "Align declarations"}, res.AppliedRules)
	assert.Positive(t, res.Duration)
}

func TestCleanFailures(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		timeout  time.Duration
		wantKind model.ErrorKind
		wantDiag string
	}{
		{name: "crash", script: crashScript, timeout: 10 * time.Second, wantKind: model.KindEngineCrash, wantDiag: "java.lang.NullPointerException"},
		{name: "timeout", script: slowScript, timeout: 200 * time.Millisecond, wantKind: model.KindEngineTimeout},
		{name: "empty_output", script: emptyScript, timeout: 10 * time.Second, wantKind: model.KindEngineOutput},
		{name: "missing_output", script: noOutputScript, timeout: 10 * time.Second, wantKind: model.KindEngineOutput},
		{name: "binary_output", script: binaryScript, timeout: 10 * time.Second, wantKind: model.KindEngineOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			cmd, err := New(writeScript(t, tt.script), RuleConfig{})
			require.NoError(t, err)

			res, err := cmd.Clean(ctx, "report ztest.\n", RuleConfig{}, tt.timeout)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, model.KindOf(err), "error kind should match: %v", err)
			assert.Empty(t, res.Text, "no partial output should be returned")
			if tt.wantDiag != "" {
				assert.Contains(t, model.AsError(err).Diagnostics, tt.wantDiag)
			}
		})
	}
}

func TestNewValidation(t *testing.T) {
	exe := writeScript(t, upperScript)
	profile := filepath.Join(t.TempDir(), "team.cfj")
	require.NoError(t, os.WriteFile(profile, []byte("{}"), 0o600))

	_, err := New(exe, RuleConfig{Profile: profile})
	require.NoError(t, err, "existing executable and profile should pass")

	_, err = New(filepath.Join(t.TempDir(), "missing"), RuleConfig{})
	require.Error(t, err)
	assert.Equal(t, model.KindConfig, model.KindOf(err))

	_, err = New(exe, RuleConfig{Profile: filepath.Join(t.TempDir(), "missing.cfj")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile not found")

	_, err = New("", RuleConfig{})
	require.Error(t, err)
}

func TestArgs(t *testing.T) {
	got := RuleConfig{Profile: "p.cfj", Release: "757"}.args("in.abap", "out.abap")
	assert.Equal(t, []string{
		"--sourcefile", "in.abap", "--targetfile", "out.abap", "--overwrite",
		"--profile", "p.cfj", "--release", "757", "--usedrules",
	}, got)

	got = RuleConfig{}.args("in.abap", "out.abap")
	assert.Equal(t, []string{"--sourcefile", "in.abap", "--targetfile", "out.abap", "--overwrite", "--usedrules"}, got)
}

func TestParseUsedRules(t *testing.T) {
	out := "Used rules:\r\n  - Remove needless spaces\r\n  Align parameters\r\n\r\n- Remove needless spaces\r\n"
	assert.Equal(t, []string{"Remove needless spaces", "Align parameters"}, ParseUsedRules(out))
	assert.Empty(t, ParseUsedRules(""))
}

var sampleWords = []string{"data", "lv_x", "type", "i", "write", "if", "endif", "loop", "at", "into", "'text'", "method", "endmethod", "."}

func sampleSource(r *rand.Rand) string {
	var b strings.Builder
	lines := 1 + r.Intn(12)
	for i := 0; i < lines; i++ {
		words := 1 + r.Intn(6)
		for j := 0; j < words; j++ {
			if j > 0 {
				b.WriteString(strings.Repeat(" ", 1+r.Intn(2)))
			}
			b.WriteString(sampleWords[r.Intn(len(sampleWords))])
		}
		b.WriteString(".\n")
	}
	return b.String()
}

func TestCleanIsIdempotent(t *testing.T) {
	ctx := testContext(t)
	rules := RuleConfig{Release: "757"}
	cmd, err := New(writeScript(t, upperScript), rules)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 25; i++ {
		src := sampleSource(r)
		t.Run(fmt.Sprintf("sample_%02d", i), func(t *testing.T) {
			first, err := cmd.Clean(ctx, src, rules, 10*time.Second)
			require.NoError(t, err)
			second, err := cmd.Clean(ctx, first.Text, rules, 10*time.Second)
			require.NoError(t, err)

			assert.Empty(t, diff.Unified("sample", first.Text, second.Text), "cleaning cleaned source should change nothing")
		})
	}
}
