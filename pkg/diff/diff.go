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

// Package diff renders line based unified diffs between fetched and cleaned source.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// 🎨 number of unchanged lines shown around each change
const contextLines = 3

// 📋 Result is a rendered diff plus line statistics
type Result struct {
	Text    string
	Added   int
	Removed int
}

// Empty reports whether the two inputs were identical
func (r Result) Empty() bool {
	return r.Text == ""
}

type edit struct {
	op     diffmatchpatch.Operation
	text   string // line content including its newline, if any
	oldPos int    // old lines consumed before this edit
	newPos int    // new lines consumed before this edit
}

// 🔍 Compute diffs oldText against newText line by line.
// The result is empty exactly when the inputs are equal.
func Compute(name, oldText, newText string) Result {
	if oldText == newText {
		return Result{}
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	table := newLineTable()
	oldRunes, newRunes := table.encode(oldText), table.encode(newText)
	diffs := dmp.DiffMainRunes(oldRunes, newRunes, false)

	var edits []edit
	var res Result
	oldPos, newPos := 0, 0
	for _, d := range diffs {
		for _, line := range table.decode(d.Text) {
			edits = append(edits, edit{op: d.Type, text: line, oldPos: oldPos, newPos: newPos})
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldPos++
				newPos++
			case diffmatchpatch.DiffDelete:
				oldPos++
				res.Removed++
			case diffmatchpatch.DiffInsert:
				newPos++
				res.Added++
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", name, name)
	for _, h := range hunks(edits) {
		writeHunk(&b, edits[h[0]:h[1]])
	}
	res.Text = b.String()
	return res
}

// Unified is a shorthand for Compute(...).Text
func Unified(name, oldText, newText string) string {
	return Compute(name, oldText, newText).Text
}

// lineTable maps every distinct line to one rune so a rune diff is a line diff
type lineTable struct {
	index map[string]rune
	lines []string
}

func newLineTable() *lineTable {
	return &lineTable{index: map[string]rune{}}
}

func (t *lineTable) encode(s string) []rune {
	parts := splitLines(s)
	out := make([]rune, 0, len(parts))
	for _, line := range parts {
		r, ok := t.index[line]
		if !ok {
			r = lineRune(len(t.lines))
			t.index[line] = r
			t.lines = append(t.lines, line)
		}
		out = append(out, r)
	}
	return out
}

func (t *lineTable) decode(s string) []string {
	var out []string
	for _, r := range s {
		out = append(out, t.lines[runeLine(r)])
	}
	return out
}

// lineRune skips the surrogate range, which does not survive a string round trip
func lineRune(i int) rune {
	r := rune(i + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

func runeLine(r rune) int {
	if r >= 0xE000 {
		r -= 0x800
	}
	return int(r) - 1
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// hunks returns [start, end) ranges over edits, each covering a group of changes plus context
func hunks(edits []edit) [][2]int {
	var out [][2]int
	for i := 0; i < len(edits); i++ {
		if edits[i].op == diffmatchpatch.DiffEqual {
			continue
		}
		start := max(0, i-contextLines)
		end := i + 1
		for j := i + 1; j < len(edits); j++ {
			if edits[j].op == diffmatchpatch.DiffEqual {
				continue
			}
			if j-end > 2*contextLines {
				break
			}
			end = j + 1
		}
		end = min(len(edits), end+contextLines)
		if n := len(out); n > 0 && out[n-1][1] >= start {
			out[n-1][1] = end
		} else {
			out = append(out, [2]int{start, end})
		}
		i = end - 1
	}
	return out
}

func writeHunk(b *strings.Builder, edits []edit) {
	oldCount, newCount := 0, 0
	for _, e := range edits {
		if e.op != diffmatchpatch.DiffInsert {
			oldCount++
		}
		if e.op != diffmatchpatch.DiffDelete {
			newCount++
		}
	}
	oldStart, newStart := edits[0].oldPos, edits[0].newPos
	if oldCount > 0 {
		oldStart++
	}
	if newCount > 0 {
		newStart++
	}
	fmt.Fprintf(b, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)

	for _, e := range edits {
		prefix := " "
		switch e.op {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		b.WriteString(prefix)
		b.WriteString(e.text)
		if !strings.HasSuffix(e.text, "\n") {
			b.WriteString("\n\\ No newline at end of file\n")
		}
	}
}
