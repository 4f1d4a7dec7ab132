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
	"fmt"
	"net/url"
	"time"

	"github.com/walteh/adtclean/pkg/model"
)

const (
	DefaultOutDir         = "outputs"
	DefaultCleaner        = "abap-cleanerc"
	DefaultRelease        = "757"
	DefaultWorkers        = 4
	DefaultRetries        = 3
	DefaultEngineTimeout  = 2 * time.Minute
	DefaultRequestTimeout = 60 * time.Second
)

// 📚 Config is the complete, typed run configuration
type Config struct {
	Base     string
	Client   string
	Insecure bool
	Mode     string
	CorrNr   string

	URLsFile string
	URLs     []string
	Include  []string
	Exclude  []string
	OutDir   string

	Cleaner string
	Profile string
	Release string

	Workers        int
	Retries        int
	EngineTimeout  time.Duration
	RequestTimeout time.Duration

	Debug bool
}

// 🏭 Defaults returns a config with every default applied
func Defaults() *Config {
	return &Config{
		Mode:           string(model.ModeTest),
		OutDir:         DefaultOutDir,
		Cleaner:        DefaultCleaner,
		Release:        DefaultRelease,
		Workers:        DefaultWorkers,
		Retries:        DefaultRetries,
		EngineTimeout:  DefaultEngineTimeout,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// 🔍 Validate checks the configuration is complete and consistent
func (cfg *Config) Validate() error {
	if cfg.Base == "" {
		return configError("--base is required")
	}
	if u, err := url.Parse(cfg.Base); err != nil || u.Scheme == "" || u.Host == "" {
		return configError(fmt.Sprintf("--base %q must be an absolute url", cfg.Base))
	}
	if cfg.Client == "" {
		return configError("--client is required")
	}
	mode, err := model.ParseMode(cfg.Mode)
	if err != nil {
		return model.WrapError(model.KindConfig, "config", err)
	}
	if mode.WritesBack() && cfg.CorrNr == "" {
		return configError("--corrnr is required in " + string(mode) + " mode")
	}
	if cfg.URLsFile == "" && len(cfg.URLs) == 0 {
		return configError("at least one of --urls-file or --url is required")
	}
	if cfg.Cleaner == "" {
		return configError("--cleaner is required")
	}
	if cfg.OutDir == "" {
		return configError("--outdir must not be empty")
	}
	if cfg.Workers < 1 {
		return configError("--workers must be at least 1")
	}
	if cfg.Retries < 0 {
		return configError("--retries must not be negative")
	}
	if cfg.EngineTimeout <= 0 || cfg.RequestTimeout <= 0 {
		return configError("timeouts must be positive")
	}
	return nil
}

// RunMode returns the parsed mode, assuming Validate passed
func (cfg *Config) RunMode() model.Mode {
	m, _ := model.ParseMode(cfg.Mode)
	return m
}

// 🔀 ApplyFile copies values from a config file into fields whose flag was not set.
// changed reports whether a flag was set on the command line.
func (cfg *Config) ApplyFile(f *File, changed func(flag string) bool) error {
	str := func(flag string, dst *string, v string) {
		if v != "" && !changed(flag) {
			*dst = v
		}
	}
	list := func(flag string, dst *[]string, v []string) {
		if len(v) > 0 && !changed(flag) {
			*dst = v
		}
	}
	num := func(flag string, dst *int, v *int) {
		if v != nil && !changed(flag) {
			*dst = *v
		}
	}
	dur := func(flag string, dst *time.Duration, v string) error {
		if v == "" || changed(flag) {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return configError(fmt.Sprintf("%s: %v", flag, err))
		}
		*dst = d
		return nil
	}

	str("base", &cfg.Base, f.Base)
	str("client", &cfg.Client, f.Client)
	str("mode", &cfg.Mode, f.Mode)
	str("corrnr", &cfg.CorrNr, f.CorrNr)
	str("urls-file", &cfg.URLsFile, f.URLsFile)
	str("outdir", &cfg.OutDir, f.OutDir)
	str("cleaner", &cfg.Cleaner, f.Cleaner)
	str("profile", &cfg.Profile, f.Profile)
	str("release", &cfg.Release, f.Release)
	list("url", &cfg.URLs, f.URLs)
	list("include", &cfg.Include, f.Include)
	list("exclude", &cfg.Exclude, f.Exclude)
	num("workers", &cfg.Workers, f.Workers)
	num("retries", &cfg.Retries, f.Retries)
	if f.Insecure && !changed("insecure") {
		cfg.Insecure = true
	}
	if f.Debug && !changed("debug") {
		cfg.Debug = true
	}
	if err := dur("engine-timeout", &cfg.EngineTimeout, f.EngineTimeout); err != nil {
		return err
	}
	return dur("request-timeout", &cfg.RequestTimeout, f.RequestTimeout)
}

func configError(msg string) error {
	return model.NewError(model.KindConfig, "config", msg)
}
