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

// Package text normalizes source text crossing the boundary between the remote
// system, the local disk and the cleanup engine.
package text

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/text/encoding/charmap"
)

const (
	LF   = "\n"
	CRLF = "\r\n"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// 🔤 Decode turns raw bytes into a string.
// UTF-8 is preferred (a leading BOM is dropped); anything that is not valid
// UTF-8 is read as Windows-1252, which is what the engine emits on Windows hosts.
func Decode(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", errors.Errorf("decoding windows-1252: %w", err)
	}
	return string(decoded), nil
}

// 🔍 IsText reports whether s looks like source text rather than binary output
func IsText(s string) bool {
	return !strings.ContainsRune(s, 0)
}

// 📏 DetectLineEnding returns CRLF when the text uses it, LF otherwise
func DetectLineEnding(s string) string {
	if strings.Contains(s, CRLF) {
		return CRLF
	}
	return LF
}

// 🔄 NormalizeNewlines converts CRLF and lone CR to LF
func NormalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, CRLF, LF)
	return strings.ReplaceAll(s, "\r", LF)
}

// 🔄 ApplyLineEnding converts LF text to the given line ending
func ApplyLineEnding(s string, ending string) string {
	if ending != CRLF {
		return s
	}
	return strings.ReplaceAll(NormalizeNewlines(s), LF, CRLF)
}

// ✨ Sanitize decodes raw bytes and normalizes line endings in one step
func Sanitize(raw []byte) (string, error) {
	s, err := Decode(raw)
	if err != nil {
		return "", err
	}
	return NormalizeNewlines(s), nil
}
