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

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/model"
)

// 📄 File is the on-disk form of a config; durations are strings like "90s"
type File struct {
	Base     string `json:"base,omitempty" yaml:"base,omitempty" hcl:"base,optional"`
	Client   string `json:"client,omitempty" yaml:"client,omitempty" hcl:"client,optional"`
	Insecure bool   `json:"insecure,omitempty" yaml:"insecure,omitempty" hcl:"insecure,optional"`
	Mode     string `json:"mode,omitempty" yaml:"mode,omitempty" hcl:"mode,optional"`
	CorrNr   string `json:"corrnr,omitempty" yaml:"corrnr,omitempty" hcl:"corrnr,optional"`

	URLsFile string   `json:"urls_file,omitempty" yaml:"urls_file,omitempty" hcl:"urls_file,optional"`
	URLs     []string `json:"urls,omitempty" yaml:"urls,omitempty" hcl:"urls,optional"`
	Include  []string `json:"include,omitempty" yaml:"include,omitempty" hcl:"include,optional"`
	Exclude  []string `json:"exclude,omitempty" yaml:"exclude,omitempty" hcl:"exclude,optional"`
	OutDir   string   `json:"outdir,omitempty" yaml:"outdir,omitempty" hcl:"outdir,optional"`

	Cleaner string `json:"cleaner,omitempty" yaml:"cleaner,omitempty" hcl:"cleaner,optional"`
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty" hcl:"profile,optional"`
	Release string `json:"release,omitempty" yaml:"release,omitempty" hcl:"release,optional"`

	Workers        *int   `json:"workers,omitempty" yaml:"workers,omitempty" hcl:"workers,optional"`
	Retries        *int   `json:"retries,omitempty" yaml:"retries,omitempty" hcl:"retries,optional"`
	EngineTimeout  string `json:"engine_timeout,omitempty" yaml:"engine_timeout,omitempty" hcl:"engine_timeout,optional"`
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty" hcl:"request_timeout,optional"`

	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty" hcl:"debug,optional"`
}

// 🔌 Parser is the interface for config file parsers
type Parser interface {
	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
	// 📝 Parse parses the config file contents
	Parse(ctx context.Context, filename string, data []byte) (*File, error)
}

var parsers []Parser

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 🎯 LoadFile reads and parses a config file, picking the format by extension
func LoadFile(ctx context.Context, path string) (*File, error) {
	zerolog.Ctx(ctx).Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapError(model.KindConfig, "config", errors.Errorf("reading config file: %w", err))
	}

	p := GetParser(path)
	if p == nil {
		return nil, model.NewError(model.KindConfig, "config", "unsupported config file extension "+strings.ToLower(filepath.Ext(path)))
	}

	f, err := p.Parse(ctx, path, data)
	if err != nil {
		return nil, model.WrapError(model.KindConfig, "config", err)
	}
	return f, nil
}

func hasExt(filename string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
