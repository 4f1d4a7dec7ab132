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

package adt

import (
	"context"
	"crypto/tls"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/model"
	"github.com/walteh/adtclean/pkg/remote"
)

const (
	rootPath  = "/sap/bc/adt"
	userAgent = "adtclean"
)

func init() {
	remote.Register("adt", &Connector{})
}

// 🔌 Connector opens ADT sessions
type Connector struct {
	UserAgent string
}

var _ remote.Connector = (*Connector)(nil)

// 🔐 Authenticate creates a session and fetches its first CSRF token
func (c *Connector) Authenticate(ctx context.Context, creds remote.Credentials, target remote.Target) (remote.Session, error) {
	logger := zerolog.Ctx(ctx)

	root, err := Root(target.BaseURL)
	if err != nil {
		return nil, model.WrapError(model.KindConfig, "authenticate", err)
	}

	ua := c.UserAgent
	if ua == "" {
		ua = userAgent
	}

	client := resty.New().
		SetLogger(newRestyLogger(logger)).
		SetBasicAuth(creds.User, creds.Password).
		SetHeader("User-Agent", ua).
		SetHeader("Accept-Charset", "utf-8")
	if target.Client != "" {
		client.SetHeader("sap-client", target.Client)
	}
	if target.Timeout > 0 {
		client.SetTimeout(target.Timeout)
	}
	if target.Insecure {
		logger.Warn().Str("base", target.BaseURL).Msg("TLS certificate verification is disabled")
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in via --insecure
	}

	s := &Session{client: client, target: target, root: root}
	if err := s.refreshToken(ctx); err != nil {
		return nil, err
	}

	logger.Debug().Str("root", root).Str("user", creds.User).Msg("adt session authenticated")

	return s, nil
}

// 🧭 Root returns the absolute ADT root URL (…/sap/bc/adt) for a base URL.
// The base may be the bare host or already include the ADT path.
func Root(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", errors.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Errorf("base url %q must be absolute", base)
	}
	path := u.Path
	if i := strings.Index(path, rootPath); i >= 0 {
		path = path[:i+len(rootPath)]
	} else {
		path = strings.TrimRight(path, "/") + rootPath
	}
	return u.Scheme + "://" + u.Host + path, nil
}
