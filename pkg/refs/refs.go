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

// Package refs turns --url flags and reference files into the ordered, de-duplicated
// list of objects a run works on.
package refs

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/model"
)

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// ADT path markers that are followed by the object name
var labelMarkers = [][]string{
	{"programs", "programs"},
	{"programs", "includes"},
	{"oo", "classes"},
	{"oo", "interfaces"},
	{"functions", "groups"},
	{"ddic", "tables"},
	{"ddic", "structures"},
	{"ddic", "dataelements"},
	{"ddic", "domains"},
	{"ddic", "ddl", "sources"},
}

// 📋 Options describe where references come from
type Options struct {
	Base    string   // base URL relative references are resolved against
	URLs    []string // single references, placed before the file's
	File    string   // newline delimited reference file
	Include []string // doublestar globs on the object path, all when empty
	Exclude []string // doublestar globs on the object path
}

// 📥 Load reads, resolves, filters and de-duplicates references in input order
func Load(ctx context.Context, opts Options) ([]model.ObjectReference, error) {
	logger := zerolog.Ctx(ctx)

	raw := append([]string(nil), opts.URLs...)
	if opts.File != "" {
		lines, err := ReadFile(opts.File)
		if err != nil {
			return nil, err
		}
		raw = append(raw, lines...)
	}

	if err := validatePatterns(opts.Include, opts.Exclude); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []model.ObjectReference
	for _, r := range raw {
		full, err := Resolve(opts.Base, r)
		if err != nil {
			return nil, model.WrapError(model.KindConfig, "refs", err)
		}
		if seen[full] {
			logger.Debug().Str("url", full).Msg("skipping duplicate reference")
			continue
		}
		seen[full] = true

		ref := model.ObjectReference{Raw: r, URL: full, Label: Label(full)}
		if !Selected(ref.Path(), opts.Include, opts.Exclude) {
			logger.Debug().Str("url", full).Msg("reference filtered out")
			continue
		}
		ref.Index = len(out)
		out = append(out, ref)
	}

	if len(out) == 0 {
		return nil, model.NewError(model.KindConfig, "refs", "no object references given (use --url or --urls-file)")
	}

	assignStems(out)
	return out, nil
}

// ReadFile reads a reference file
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.WrapError(model.KindConfig, "refs", errors.Errorf("opening reference file: %w", err))
	}
	defer f.Close()
	lines, err := Parse(f)
	if err != nil {
		return nil, model.WrapError(model.KindConfig, "refs", errors.Errorf("reading reference file %s: %w", path, err))
	}
	return lines, nil
}

// Parse returns one reference per line, skipping blank lines and # comments
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\uFEFF"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// 🔗 Resolve turns a reference into an absolute URL.
// Relative paths are appended to base; paths starting at /sap/ replace the base path.
func Resolve(base, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Errorf("parsing reference %q: %w", raw, err)
	}
	if u.Scheme != "" && u.Host != "" {
		return u.String(), nil
	}
	if base == "" {
		return "", errors.Errorf("relative reference %q needs a base url", raw)
	}
	b, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/") + "/")
	if err != nil {
		return "", errors.Errorf("parsing base url: %w", err)
	}
	if b.Scheme == "" || b.Host == "" {
		return "", errors.Errorf("base url %q must be absolute", base)
	}
	if strings.HasPrefix(raw, "/sap/") {
		return b.ResolveReference(u).String(), nil
	}
	rel, err := url.Parse(strings.TrimLeft(raw, "/"))
	if err != nil {
		return "", errors.Errorf("parsing reference %q: %w", raw, err)
	}
	return b.ResolveReference(rel).String(), nil
}

// 🏷️ Label derives a readable object name from an ADT URL
func Label(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return SafeFilename(raw)
	}
	var parts []string
	for _, p := range strings.Split(strings.Trim(u.EscapedPath(), "/"), "/") {
		if p == "" {
			continue
		}
		if dec, err := url.PathUnescape(p); err == nil {
			p = dec
		}
		parts = append(parts, p)
	}

	for _, marker := range labelMarkers {
		if name := after(parts, marker); name != "" {
			return SafeFilename(name)
		}
	}

	if len(parts) > 4 {
		parts = parts[len(parts)-4:]
	}
	return SafeFilename(strings.Join(parts, "_"))
}

func after(parts, marker []string) string {
	for i := 0; i+len(marker) < len(parts); i++ {
		match := true
		for j, m := range marker {
			if !strings.EqualFold(parts[i+j], m) {
				match = false
				break
			}
		}
		if match {
			return parts[i+len(marker)]
		}
	}
	return ""
}

// SafeFilename replaces characters that are not allowed in file names
func SafeFilename(s string) string {
	s = strings.Trim(unsafeChars.ReplaceAllString(s, "_"), " .")
	if s == "" {
		return "unnamed"
	}
	return s
}

// assignStems gives every reference a file stem unique within the batch
func assignStems(refs []model.ObjectReference) {
	count := map[string]int{}
	for _, r := range refs {
		count[strings.ToLower(r.Label)]++
	}
	for i := range refs {
		stem := refs[i].Label
		if count[strings.ToLower(stem)] > 1 {
			sum := sha256.Sum256([]byte(refs[i].URL))
			stem += "_" + hex.EncodeToString(sum[:4])
		}
		refs[i].Stem = stem
	}
}

// 🔍 Selected reports whether an object path passes the include and exclude globs
func Selected(path string, include, exclude []string) bool {
	if len(include) > 0 {
		ok := false
		for _, p := range include {
			if m, _ := doublestar.Match(p, path); m {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, p := range exclude {
		if m, _ := doublestar.Match(p, path); m {
			return false
		}
	}
	return true
}

func validatePatterns(groups ...[]string) error {
	for _, g := range groups {
		for _, p := range g {
			if !doublestar.ValidatePattern(p) {
				return model.NewError(model.KindConfig, "refs", "invalid glob pattern "+p)
			}
		}
	}
	return nil
}
