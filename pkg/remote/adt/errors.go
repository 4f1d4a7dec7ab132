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
	"encoding/xml"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/walteh/adtclean/pkg/model"
)

var (
	lockedInPattern = regexp.MustCompile(`locked in request\s+([A-Z0-9]{10})`)
	lockPattern     = regexp.MustCompile(`(?i)\blocked\b|enqueue|currently editing`)
)

// exception is the body ADT sends with most error statuses
type exception struct {
	XMLName xml.Name `xml:"exception"`
	Type    struct {
		ID string `xml:"id,attr"`
	} `xml:"type"`
	Message          string `xml:"message"`
	LocalizedMessage string `xml:"localizedMessage"`
}

func parseException(body []byte) (exception, bool) {
	var exc exception
	if err := xml.Unmarshal(body, &exc); err != nil {
		return exception{}, false
	}
	return exc, true
}

// responseMessage extracts the most useful human readable text from an error response
func responseMessage(resp *resty.Response) string {
	body := resp.Body()
	if exc, ok := parseException(body); ok {
		msg := strings.TrimSpace(exc.LocalizedMessage)
		if msg == "" {
			msg = strings.TrimSpace(exc.Message)
		}
		if msg != "" {
			if exc.Type.ID != "" {
				return exc.Type.ID + ": " + msg
			}
			return msg
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 400 {
		text = text[:400] + "…"
	}
	if text == "" {
		text = http.StatusText(resp.StatusCode())
	}
	return text
}

// kindForStatus maps an HTTP status to the error taxonomy
func kindForStatus(code int) model.ErrorKind {
	switch code {
	case http.StatusUnauthorized:
		return model.KindAuth
	case http.StatusForbidden:
		return model.KindAccessDenied
	case http.StatusNotFound:
		return model.KindNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return model.KindConflict
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return model.KindNetwork
	default:
		return model.KindRemote
	}
}

// statusError builds a typed error for a response with status >= 400
func statusError(op string, resp *resty.Response) *model.Error {
	msg := responseMessage(resp)
	return &model.Error{
		Kind:     kindForStatus(resp.StatusCode()),
		Op:       op,
		Msg:      fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), msg),
		LockedIn: LockedIn(msg),
	}
}

// LockedIn returns the transport request named in a "locked in request" message
func LockedIn(msg string) string {
	if m := lockedInPattern.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

func isLockConflict(resp *resty.Response) bool {
	return lockConflict(resp.StatusCode(), responseMessage(resp))
}

// lockConflict reports whether a response means another user holds the object
func lockConflict(status int, msg string) bool {
	switch status {
	case http.StatusForbidden, http.StatusConflict, http.StatusLocked:
		return lockPattern.MatchString(msg)
	}
	return false
}
