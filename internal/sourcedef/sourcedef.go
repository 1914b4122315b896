/*
 * Copyright 2021 Giacomo Ferretti
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sourcedef parses the small set of optional flags the capture
// helper recognizes out of the capture-framework's source definition
// string. Framing of the full source definition belongs to the
// out-of-scope capture-framework collaborator (spec §1); this package only
// turns the delimited key=value tokens it hands us into typed fields,
// generalizing the teacher's comma-split parsing from a bare list of
// integers to named keys.
package sourcedef

import "strings"

// Definition holds the optional flags recognized from a source definition
// string (spec §3 SourceDefinition, §6 "Source definition string").
type Definition struct {
	VIF           string
	FCSFail       bool
	PLCPFail      bool
	IgnorePrimary bool
}

// Parse extracts the recognized keys from a raw key=value,key=value
// definition string. Unrecognized keys are ignored; this package does not
// own interface-name extraction, which is the capture-framework's job.
func Parse(raw string) Definition {
	var d Definition
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "vif":
			d.VIF = value
		case "fcsfail":
			d.FCSFail = isTrue(value)
		case "plcpfail":
			d.PLCPFail = isTrue(value)
		case "ignoreprimary":
			d.IgnorePrimary = isTrue(value)
		}
	}
	return d
}

func isTrue(s string) bool {
	return strings.EqualFold(s, "true")
}
