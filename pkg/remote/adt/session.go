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
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/model"
	"github.com/walteh/adtclean/pkg/remote"
	"github.com/walteh/adtclean/pkg/text"
)

const (
	headerCSRF        = "X-CSRF-Token"
	headerSessionType = "X-sap-adt-sessiontype"

	acceptSource     = "text/plain, */*"
	acceptLock       = "application/vnd.sap.as+xml;charset=UTF-8;dataname=com.sap.adt.lock.result"
	acceptActivation = "application/xml, application/vnd.sap.adt.errors+xml, */*"
	acceptTransport  = "application/vnd.sap.adt.transportorganizer.v1+xml, application/xml, */*"
)

var transportPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{2}K[0-9]{6}$`)

// 🛰️ Session is one stateful ADT conversation
type Session struct {
	client *resty.Client
	target remote.Target
	root   string

	mu   sync.Mutex
	csrf string
}

var _ remote.Session = (*Session)(nil)

func (s *Session) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf
}

// refreshToken fetches a fresh CSRF token from the discovery document
func (s *Session) refreshToken(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader(headerCSRF, "Fetch").
		SetHeader("Accept", "application/atomsvc+xml, */*").
		Get(s.root + "/discovery")
	if err != nil {
		return model.WrapError(model.KindAuth, "authenticate", errors.Errorf("remote system unreachable: %w", err))
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return model.NewError(model.KindAuth, "authenticate", "credentials rejected (HTTP 401)")
	}
	if resp.IsError() {
		return statusError("authenticate", resp)
	}
	tok := resp.Header().Get(headerCSRF)
	if tok == "" {
		return model.NewError(model.KindAuth, "authenticate", "no CSRF token in discovery response")
	}
	s.mu.Lock()
	s.csrf = tok
	s.mu.Unlock()
	return nil
}

// send executes one request. Mutating requests carry the CSRF token and are
// replayed once with a fresh token when the server reports it as required.
func (s *Session) send(ctx context.Context, op, method, target string, mutating bool, prepare func(*resty.Request)) (*resty.Response, error) {
	attempt := func() (*resty.Response, error) {
		req := s.client.R().SetContext(ctx)
		if mutating {
			req.SetHeader(headerCSRF, s.token())
		}
		prepare(req)
		resp, err := req.Execute(method, target)
		if err != nil {
			return nil, transportError(op, err)
		}
		zerolog.Ctx(ctx).Debug().
			Str("method", method).
			Str("url", target).
			Int("status", resp.StatusCode()).
			Dur("took", resp.Time()).
			Msg("adt request")
		return resp, nil
	}

	resp, err := attempt()
	if err != nil {
		return nil, err
	}
	if mutating && resp.StatusCode() == http.StatusForbidden && strings.EqualFold(resp.Header().Get(headerCSRF), "Required") {
		zerolog.Ctx(ctx).Debug().Str("op", op).Msg("csrf token expired, refreshing")
		if err := s.refreshToken(ctx); err != nil {
			return nil, err
		}
		return attempt()
	}
	return resp, nil
}

func transportError(op string, err error) *model.Error {
	if errors.Is(err, context.Canceled) {
		return model.WrapError(model.KindCancelled, op, err)
	}
	return model.WrapError(model.KindNetwork, op, err)
}

// 📥 Fetch downloads the object source and its ETag
func (s *Session) Fetch(ctx context.Context, ref model.ObjectReference) (model.SourceSnapshot, error) {
	resp, err := s.send(ctx, "fetch", http.MethodGet, ref.URL, false, func(r *resty.Request) {
		r.SetHeader("Accept", acceptSource)
	})
	if err != nil {
		return model.SourceSnapshot{}, err
	}
	if resp.IsError() {
		return model.SourceSnapshot{}, statusError("fetch", resp)
	}

	decoded, err := text.Decode(resp.Body())
	if err != nil {
		return model.SourceSnapshot{}, model.WrapError(model.KindRemote, "fetch", err)
	}

	return model.SourceSnapshot{
		Ref:        ref,
		Text:       text.NormalizeNewlines(decoded),
		ETag:       resp.Header().Get("ETag"),
		LineEnding: text.DetectLineEnding(decoded),
		FetchedAt:  time.Now(),
	}, nil
}

// 🔒 Lock acquires the modify lock for the object in this session
func (s *Session) Lock(ctx context.Context, ref model.ObjectReference) (model.LockHandle, error) {
	resp, err := s.send(ctx, "lock", http.MethodPost, ref.ObjectURI(), true, func(r *resty.Request) {
		r.SetHeader("Accept", acceptLock).
			SetHeader(headerSessionType, "stateful").
			SetQueryParam("_action", "LOCK").
			SetQueryParam("accessMode", "MODIFY")
	})
	if err != nil {
		return model.LockHandle{}, err
	}
	if isLockConflict(resp) {
		e := statusError("lock", resp)
		e.Kind = model.KindLocked
		return model.LockHandle{}, e
	}
	if resp.IsError() {
		return model.LockHandle{}, statusError("lock", resp)
	}

	lock, err := parseLockResult(resp.Body())
	if err != nil {
		return model.LockHandle{}, model.WrapError(model.KindRemote, "lock", err)
	}
	return lock, nil
}

// 📤 Update writes the new source guarded by the fetched ETag
func (s *Session) Update(ctx context.Context, ref model.ObjectReference, lock model.LockHandle, snapshot model.SourceSnapshot, newText string) error {
	ifMatch := snapshot.ETag
	if ifMatch == "" {
		ifMatch = "*"
	}
	body := text.ApplyLineEnding(newText, snapshot.LineEnding)

	resp, err := s.send(ctx, "commit", http.MethodPut, ref.URL, true, func(r *resty.Request) {
		r.SetHeader("Accept", acceptSource).
			SetHeader("Content-Type", "text/plain; charset=utf-8").
			SetHeader(headerSessionType, "stateful").
			SetHeader("If-Match", ifMatch).
			SetQueryParam("lockHandle", lock.Handle).
			SetBody([]byte(body))
		if lock.CorrNr != "" {
			r.SetQueryParam("corrNr", lock.CorrNr)
		}
	})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return statusError("commit", resp)
	}
	return nil
}

// ⚡ Activate activates the object through the central activation service
func (s *Session) Activate(ctx context.Context, ref model.ObjectReference, transport model.TransportContext) (model.ActivationReport, error) {
	objURI, err := url.Parse(ref.ObjectURI())
	if err != nil {
		return model.ActivationReport{}, model.WrapError(model.KindRemote, "activate", err)
	}
	body, err := activationBody(objURI.Path, ref.Label)
	if err != nil {
		return model.ActivationReport{}, model.WrapError(model.KindRemote, "activate", err)
	}

	resp, err := s.send(ctx, "activate", http.MethodPost, s.root+"/activation", true, func(r *resty.Request) {
		r.SetHeader("Accept", acceptActivation).
			SetHeader("Content-Type", "application/xml").
			SetQueryParam("method", "activate").
			SetQueryParam("preauditRequested", "true").
			SetBody(body)
		if transport.CorrNr != "" {
			r.SetQueryParam("corrNr", transport.CorrNr)
		}
	})
	if err != nil {
		return model.ActivationReport{}, err
	}
	if resp.IsError() {
		return model.ActivationReport{}, statusError("activate", resp)
	}

	report := parseActivation(resp.Body())
	if len(report.Errors) > 0 {
		e := model.NewError(model.KindActivation, "activate", "activation reported errors")
		for _, d := range report.Errors {
			e.Diagnostics = append(e.Diagnostics, d.String())
		}
		return report, e
	}
	return report, nil
}

// 🔓 Unlock releases the lock acquired in this session
func (s *Session) Unlock(ctx context.Context, ref model.ObjectReference, lock model.LockHandle) error {
	resp, err := s.send(ctx, "unlock", http.MethodPost, ref.ObjectURI(), true, func(r *resty.Request) {
		r.SetHeader(headerSessionType, "stateful").
			SetQueryParam("_action", "UNLOCK").
			SetQueryParam("lockHandle", lock.Handle)
	})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return statusError("unlock", resp)
	}
	return nil
}

// 🚚 ValidateTransport checks the request number format and that the request exists
func (s *Session) ValidateTransport(ctx context.Context, transport model.TransportContext) error {
	if !ValidTransportNumber(transport.CorrNr) {
		return model.NewError(model.KindInvalidTransport, "transport", "malformed transport request number "+strconv.Quote(transport.CorrNr))
	}
	resp, err := s.send(ctx, "transport", http.MethodGet, s.root+"/cts/transportrequests/"+url.PathEscape(transport.CorrNr), false, func(r *resty.Request) {
		r.SetHeader("Accept", acceptTransport)
	})
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return model.NewError(model.KindInvalidTransport, "transport", "transport request "+transport.CorrNr+" does not exist")
	}
	if resp.IsError() {
		return statusError("transport", resp)
	}
	return nil
}

// Close drops idle connections
func (s *Session) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}

// ValidTransportNumber reports whether nr looks like a transport request (e.g. DEVK900123)
func ValidTransportNumber(nr string) bool {
	return transportPattern.MatchString(nr)
}
