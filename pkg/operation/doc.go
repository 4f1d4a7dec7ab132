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
Package operation drives ABAP objects through the cleanup pipeline.

	                 +-----------+
	 refs  ------->  |  Runner   |  one worker per session
	                 +-----+-----+
	                       |
	        +--------------+--------------+
	        |              |              |
	  +-----+-----+  +-----+-----+  +-----+-----+
	  | Processor |  | Processor |  | Processor |
	  +-----+-----+  +-----+-----+  +-----+-----+
	        |
	 Fetching -> Locked -> Cleaning -> Deciding -+-> Committing -+
	   (locked only when writing back)           |               +-> Releasing
	                                             +-> Recording --+

🎯 Purpose:
- Process every object exactly once and report one outcome per object
- Keep failures local to the object that caused them
- Return outcomes in input order regardless of completion order

🔄 Flow:
1. Batch validates the transport request when writing back
2. Runner hands references to workers over an unbuffered channel
3. Each Processor fetches, locks, cleans, diffs and then records or commits
4. Locks are always released, even after failures or cancellation

⚡ Cancellation:
Remote and engine calls are never interrupted mid flight. Cancellation is
checked between transitions, so an in-flight object ends as Failed{Cancelled}
after releasing its lock and objects never started end as Failed{pending}.

🔁 Retries:
Only NetworkError is retried, with exponential backoff and jitter.

🔍 Example:

	batch := &operation.Batch{
		Mode:     model.ModeTest,
		Sessions: sessions,
		Cleaner:  cleaner,
		Rules:    rules,
		Recorder: statusManager,
		Policy:   operation.Policy{RequestTimeout: time.Minute, EngineTimeout: 2 * time.Minute, Retries: 3},
	}
	summary, err := batch.Run(ctx, refs)
*/
package operation
