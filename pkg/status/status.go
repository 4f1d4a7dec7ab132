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

package status

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/model"
)

// objectArtifacts matches the per-object files written by Record
const objectArtifacts = "*.{abap,diff}"

const (
	SummaryText  = "summary.txt"
	SummaryJSON  = "summary.json"
	RetryURLs    = "retry_urls.txt"
	FailuresJSON = "failures.jsonl"
)

// 📁 FileInfo describes a file written during the run
type FileInfo struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	Checksum string `json:"sha256"`
}

// 🔧 Manager owns the output directory of a run
type Manager struct {
	baseDir string
	logger  *zerolog.Logger

	mu    sync.Mutex
	files map[string]FileInfo
}

// 🏭 New creates a new status manager
func New(baseDir string, logger *zerolog.Logger) *Manager {
	return &Manager{
		baseDir: filepath.Clean(baseDir),
		logger:  logger,
		files:   make(map[string]FileInfo),
	}
}

// Dir returns the output directory
func (m *Manager) Dir() string {
	return m.baseDir
}

// 📂 Prepare creates the output directory if it is missing
func (m *Manager) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return model.WrapError(model.KindIO, "report", errors.Errorf("creating output dir: %w", err))
	}
	return nil
}

// 🧹 Reset removes the per-object files of a previous run so the directory
// only ever describes the latest run
func (m *Manager) Reset(ctx context.Context) error {
	names, err := doublestar.Glob(os.DirFS(m.baseDir), objectArtifacts, doublestar.WithFilesOnly())
	if err != nil {
		return model.WrapError(model.KindIO, "report", errors.Errorf("listing previous results: %w", err))
	}
	for _, name := range names {
		if err := m.RemoveFile(ctx, name); err != nil {
			return model.WrapError(model.KindIO, "report", err)
		}
	}
	if len(names) > 0 {
		zerolog.Ctx(ctx).Debug().Int("files", len(names)).Str("dir", m.baseDir).Msg("removed previous results")
	}
	return nil
}

func calculateChecksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// 💾 WriteFileAtomic replaces name inside the output dir with content
func (m *Manager) WriteFileAtomic(ctx context.Context, name string, content []byte) error {
	target := filepath.Join(m.baseDir, name)

	tmp, err := os.CreateTemp(m.baseDir, "."+name+".*.tmp")
	if err != nil {
		return errors.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return errors.Errorf("renaming temp file: %w", err)
	}

	m.mu.Lock()
	m.files[name] = FileInfo{Name: name, Size: len(content), Checksum: calculateChecksum(content)}
	m.mu.Unlock()

	zerolog.Ctx(ctx).Debug().Str("file", target).Int("bytes", len(content)).Msg("wrote report file")
	return nil
}

// 🗑️ RemoveFile deletes name from the output dir; a missing file is not an error
func (m *Manager) RemoveFile(ctx context.Context, name string) error {
	err := os.Remove(filepath.Join(m.baseDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Errorf("removing %s: %w", name, err)
	}
	m.mu.Lock()
	delete(m.files, name)
	m.mu.Unlock()
	return nil
}

// ListFiles returns the files written so far, sorted by name
func (m *Manager) ListFiles() []FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FileInfo, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// 📝 Record persists the cleaned source and the diff of one object
func (m *Manager) Record(ctx context.Context, ref model.ObjectReference, cleaned string, diff string) error {
	stem := ref.Stem
	if stem == "" {
		stem = ref.Label
	}
	if err := m.WriteFileAtomic(ctx, stem+".abap", []byte(cleaned)); err != nil {
		return model.WrapError(model.KindIO, "record", err)
	}
	if err := m.WriteFileAtomic(ctx, stem+".diff", []byte(diff)); err != nil {
		return model.WrapError(model.KindIO, "record", err)
	}
	return nil
}

type objectJSON struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	URL   string `json:"url"`
	Stem  string `json:"stem"`
	model.ObjectOutcome
}

type summaryJSON struct {
	*model.RunSummary
	Counts  model.Counts `json:"counts"`
	Objects []objectJSON `json:"objects"`
	Files   []FileInfo   `json:"files"`
}

type failureJSON struct {
	Label     string          `json:"label"`
	URL       string          `json:"url"`
	Stage     model.Stage     `json:"stage"`
	ErrorKind model.ErrorKind `json:"error_kind"`
	Message   string          `json:"message"`
	LockedIn  string          `json:"locked_in,omitempty"`
}

// 📊 WriteSummary writes summary.txt, summary.json and the retry list.
// The retry list and failures.jsonl are removed when nothing failed.
func (m *Manager) WriteSummary(ctx context.Context, s *model.RunSummary) error {
	if err := m.WriteFileAtomic(ctx, SummaryText, []byte(FormatSummary(s))); err != nil {
		return model.WrapError(model.KindIO, "report", err)
	}

	failed := s.FailedOutcomes()
	if len(failed) == 0 {
		if err := m.RemoveFile(ctx, RetryURLs); err != nil {
			return model.WrapError(model.KindIO, "report", err)
		}
		if err := m.RemoveFile(ctx, FailuresJSON); err != nil {
			return model.WrapError(model.KindIO, "report", err)
		}
	} else {
		var urls, lines strings.Builder
		for _, o := range failed {
			urls.WriteString(o.Ref.URL)
			urls.WriteString("\n")
			line, err := json.Marshal(failureJSON{
				Label:     o.Ref.Label,
				URL:       o.Ref.URL,
				Stage:     o.Stage,
				ErrorKind: o.ErrorKind,
				Message:   o.Message,
				LockedIn:  o.LockedIn,
			})
			if err != nil {
				return model.WrapError(model.KindIO, "report", errors.Errorf("encoding failure: %w", err))
			}
			lines.Write(line)
			lines.WriteString("\n")
		}
		if err := m.WriteFileAtomic(ctx, RetryURLs, []byte(urls.String())); err != nil {
			return model.WrapError(model.KindIO, "report", err)
		}
		if err := m.WriteFileAtomic(ctx, FailuresJSON, []byte(lines.String())); err != nil {
			return model.WrapError(model.KindIO, "report", err)
		}
	}

	doc := summaryJSON{RunSummary: s, Counts: s.Counts(), Files: m.ListFiles()}
	for _, o := range s.Outcomes {
		doc.Objects = append(doc.Objects, objectJSON{
			Index:         o.Ref.Index,
			Label:         o.Ref.Label,
			URL:           o.Ref.URL,
			Stem:          o.Ref.Stem,
			ObjectOutcome: o,
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return model.WrapError(model.KindIO, "report", errors.Errorf("encoding summary: %w", err))
	}
	if err := m.WriteFileAtomic(ctx, SummaryJSON, append(data, '\n')); err != nil {
		return model.WrapError(model.KindIO, "report", err)
	}

	m.logger.Debug().Str("dir", m.baseDir).Int("failed", len(failed)).Msg("run report written")
	return nil
}
