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

// Package engine runs the abap-cleaner command line tool against source text.
//
//	text ──► tmp/in.abap ──► abap-cleanerc --sourcefile in.abap --targetfile out.abap
//	                                              │
//	CleanupResult ◄── sanitize ◄── tmp/out.abap ◄─┘
//	                   (stdout: used rules)
package engine
