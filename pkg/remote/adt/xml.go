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
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/adtclean/pkg/model"
)

// lockResult is the asx:abap payload returned by _action=LOCK
type lockResult struct {
	XMLName xml.Name `xml:"abap"`
	Data    struct {
		LockHandle string `xml:"LOCK_HANDLE"`
		CorrNr     string `xml:"CORRNR"`
		CorrUser   string `xml:"CORRUSER"`
		CorrText   string `xml:"CORRTEXT"`
	} `xml:"values>DATA"`
}

func parseLockResult(body []byte) (model.LockHandle, error) {
	var res lockResult
	if err := xml.Unmarshal(body, &res); err != nil {
		return model.LockHandle{}, errors.Errorf("parsing lock result: %w", err)
	}
	handle := strings.TrimSpace(res.Data.LockHandle)
	if handle == "" {
		return model.LockHandle{}, errors.New("lock result has no LOCK_HANDLE")
	}
	return model.LockHandle{Handle: handle, CorrNr: strings.TrimSpace(res.Data.CorrNr)}, nil
}

type objectReferences struct {
	XMLName    xml.Name          `xml:"adtcore:objectReferences"`
	Namespace  string            `xml:"xmlns:adtcore,attr"`
	References []objectReference `xml:"adtcore:objectReference"`
}

type objectReference struct {
	URI  string `xml:"adtcore:uri,attr"`
	Name string `xml:"adtcore:name,attr,omitempty"`
}

func activationBody(uri, name string) ([]byte, error) {
	body, err := xml.Marshal(objectReferences{
		Namespace:  "http://www.sap.com/adt/core",
		References: []objectReference{{URI: uri, Name: name}},
	})
	if err != nil {
		return nil, errors.Errorf("encoding activation request: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

// checkMessages is the chkl:messages payload returned by the activation service
type checkMessages struct {
	XMLName  xml.Name       `xml:"messages"`
	Messages []checkMessage `xml:"msg"`
}

type checkMessage struct {
	Type      string   `xml:"type,attr"`
	ObjDescr  string   `xml:"objDescr,attr"`
	Href      string   `xml:"href,attr"`
	ShortText []string `xml:"shortText>txt"`
}

// parseActivation sorts activation messages into errors and warnings.
// Bodies that are empty or not a message list carry no diagnostics.
func parseActivation(body []byte) model.ActivationReport {
	var report model.ActivationReport
	if len(strings.TrimSpace(string(body))) == 0 {
		return report
	}
	var msgs checkMessages
	if err := xml.Unmarshal(body, &msgs); err != nil {
		return report
	}
	for _, m := range msgs.Messages {
		d := model.Diagnostic{
			Severity: strings.ToUpper(strings.TrimSpace(m.Type)),
			Text:     strings.TrimSpace(strings.Join(m.ShortText, " ")),
			Object:   m.ObjDescr,
			Href:     m.Href,
		}
		switch d.Severity {
		case "E", "A", "X":
			report.Errors = append(report.Errors, d)
		case "W":
			report.Warnings = append(report.Warnings, d)
		}
	}
	return report
}
