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
Package config holds the settings of one batch run.

	+-----------+     +-----------+     +------------+
	|   flags   | --> |  Config   | <-- | --config   |
	| (cobra)   |     | Validate  |     | yaml/json/ |
	+-----------+     +-----------+     | hcl        |
	                                    +------------+

🎯 Purpose:
- Defaults for every setting
- Optional config file supplying values for flags the user did not set
- Validation before anything touches the remote system

🔄 Precedence:
 1. explicitly set flags
 2. config file values
 3. defaults

🔍 Example:

	cfg := config.Defaults()
	// cobra binds flags to cfg fields here
	if path != "" {
		file, err := config.LoadFile(ctx, path)
		if err != nil {
			return err
		}
		cfg.ApplyFile(file, cmd.Flags().Changed)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

HCL files can read the environment through the env object:

	base   = "https://${env.SAP_HOST}:44300"
	client = "100"
*/
package config
