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

// Package adt implements remote.Session on top of the SAP ABAP Development Tools REST API.
//
// Every session owns one resty client and therefore one cookie jar, which keeps the
// stateful ADT session (and the locks acquired in it) bound to a single worker.
//
//	Authenticate ── GET  /sap/bc/adt/discovery              (X-CSRF-Token: Fetch)
//	Fetch        ── GET  <object>/source/main               (ETag)
//	Lock         ── POST <object>?_action=LOCK              (stateful)
//	Update       ── PUT  <object>/source/main?lockHandle=   (If-Match)
//	Activate     ── POST /sap/bc/adt/activation?method=activate
//	Unlock       ── POST <object>?_action=UNLOCK            (stateful)
package adt
