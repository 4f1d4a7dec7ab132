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

/*
Package status writes the report of a run into the output directory.

	            +-------------+
	            |   Manager   |
	            |  (outdir)   |
	            +------+------+
	                   |
	      +------------+------------+
	      |                         |
	+-----+------+          +-------+-------+
	| per object |          |  run summary  |
	| <stem>.abap|          |  summary.txt  |
	| <stem>.diff|          |  summary.json |
	+------------+          |  retry_urls   |
	                        |  failures     |
	                        +---------------+

Every file is written to a temp file in the same directory and renamed over
the target, so a re-run overwrites and a crash never leaves half a report.
retry_urls.txt and failures.jsonl only exist while the last run had failures.
*/
package status
