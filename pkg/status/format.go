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
	"fmt"
	"strings"
	"time"

	"github.com/walteh/adtclean/pkg/model"
)

// 📄 FormatSummary renders the human readable run report
func FormatSummary(s *model.RunSummary) string {
	var b strings.Builder
	c := s.Counts()

	fmt.Fprintf(&b, "run:       %s\n", s.RunID)
	fmt.Fprintf(&b, "mode:      %s\n", s.Mode)
	if s.Transport != "" {
		fmt.Fprintf(&b, "transport: %s\n", s.Transport)
	}
	fmt.Fprintf(&b, "started:   %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "finished:  %s\n", s.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "duration:  %s\n\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))

	fmt.Fprintf(&b, "total: %d  unchanged: %d  cleaned (dry run): %d  committed: %d  failed: %d\n\n",
		c.Total, c.Unchanged, c.CleanedDryRun, c.CleanedCommitted, c.Failed)

	for i, o := range s.Outcomes {
		fmt.Fprintf(&b, "[%d] %-30s %-18s %s\n", i+1, o.Ref.String(), statusText(o), o.Ref.URL)
		switch o.Kind {
		case model.OutcomeCleanedDryRun:
			if len(o.AppliedRules) > 0 {
				fmt.Fprintf(&b, "      rules: %s\n", strings.Join(o.AppliedRules, ", "))
			}
		case model.OutcomeCleanedCommitted:
			fmt.Fprintf(&b, "      transport: %s  activated: %t\n", o.Transport, o.Activated)
			for _, w := range o.Warnings {
				fmt.Fprintf(&b, "      warning: %s\n", w)
			}
		case model.OutcomeFailed:
			fmt.Fprintf(&b, "      stage: %s  kind: %s  written: %t\n", o.Stage, o.ErrorKind, o.Written)
			if o.Message != "" {
				fmt.Fprintf(&b, "      message: %s\n", o.Message)
			}
			if o.LockedIn != "" {
				fmt.Fprintf(&b, "      locked in: %s\n", o.LockedIn)
			}
			for _, d := range o.Diagnostics {
				fmt.Fprintf(&b, "      diagnostic: %s\n", d)
			}
			for _, w := range o.Warnings {
				fmt.Fprintf(&b, "      warning: %s\n", w)
			}
		}
	}
	return b.String()
}

func statusText(o model.ObjectOutcome) string {
	switch o.Kind {
	case model.OutcomeUnchanged:
		return "unchanged"
	case model.OutcomeCleanedDryRun:
		return "cleaned (dry run)"
	case model.OutcomeCleanedCommitted:
		if o.Activated {
			return "committed"
		}
		return "committed (inactive)"
	default:
		return "FAILED"
	}
}
