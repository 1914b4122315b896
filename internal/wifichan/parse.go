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

package wifichan

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse translates a human-readable channel string into a Descriptor.
// Accepted forms are documented in spec §4.1: bare "NN", "NNHT40+"/"NNHT40-",
// "NNW5"/"NNW10", "NNVHT80"/"NNVHT160", "NNVHT80-CC"/"NNVHT160-CC", and
// unrecognized numeric-prefixed suffixes (treated as bare "NN" with an
// informational diagnostic). Strings with no leading integer fail.
func Parse(s string) (Descriptor, []Diagnostic, error) {
	n, rest := splitLeadingInt(s)
	if n < 0 {
		return Descriptor{}, nil, &ParseError{Input: s, Msg: "no leading channel/frequency integer"}
	}

	if rest == "" {
		return Descriptor{ControlFreq: n}, nil, nil
	}

	upperRest := strings.ToUpper(rest)

	if mod, ok := ht40Suffix(upperRest); ok {
		d := Descriptor{ControlFreq: n}
		var diags []Diagnostic
		if mod == '-' {
			d.ChanType = ChanTypeHT40Minus
			if e, found := lookupHTEntry(n); !found || e.flags&htFlagHT40Minus == 0 {
				diags = append(diags, Diagnostic{
					Level: LevelInfo,
					Message: fmt.Sprintf("requested channel %d as a HT40- channel; this does "+
						"not appear to be a valid channel for 40MHz operation.", n),
				})
			}
		} else {
			d.ChanType = ChanTypeHT40Plus
			if e, found := lookupHTEntry(n); !found || e.flags&htFlagHT40Plus == 0 {
				diags = append(diags, Diagnostic{
					Level: LevelInfo,
					Message: fmt.Sprintf("requested channel %d as a HT40+ channel; this does "+
						"not appear to be a valid channel for 40MHz operation.", n),
				})
			}
		}
		return d, diags, nil
	}

	switch {
	case upperRest == "W5":
		return Descriptor{ControlFreq: n, ChanWidth: ChanWidth5MHz}, nil, nil
	case upperRest == "W10":
		return Descriptor{ControlFreq: n, ChanWidth: ChanWidth10MHz}, nil, nil
	}

	if typ, centerStr, ok := vhtSuffix(upperRest); ok {
		width := ChanWidth80MHz
		flag := htFlagVHT80
		widthName := "80"
		if typ == "VHT160" {
			width = ChanWidth160MHz
			flag = htFlagVHT160
			widthName = "160"
		}

		d := Descriptor{ControlFreq: n, ChanWidth: width}

		if centerStr != "" {
			c1, err := strconv.Atoi(centerStr)
			if err != nil {
				return Descriptor{}, nil, &ParseError{Input: s, Msg: "invalid explicit center frequency"}
			}
			d.CenterFreq1 = c1
			d.UnusualCenter1 = true
			return d, nil, nil
		}

		e, found := lookupHTEntry(n)
		if !found || e.flags&flag == 0 {
			return Descriptor{}, nil, &ParseError{
				Input: s,
				Msg: fmt.Sprintf("requested channel %d as a %s channel; this does not appear to be "+
					"a valid channel for %sMHz operation, skipping channel", n, typ, widthName),
			}
		}

		d.ControlFreq = e.freq
		if width == ChanWidth80MHz {
			d.CenterFreq1 = e.freq80
		} else {
			d.CenterFreq1 = e.freq160
		}
		return d, nil, nil
	}

	// Unrecognized suffix with a numeric prefix: succeed as bare NN with a
	// diagnostic, per spec §4.1.
	diags := []Diagnostic{{
		Level: LevelInfo,
		Message: fmt.Sprintf("unable to parse attributes on channel '%s', treating as "+
			"standard non-HT channel.", s),
	}}
	return Descriptor{ControlFreq: n}, diags, nil
}

// Serialize renders a Descriptor back into its canonical channel string.
// Precedence: chan_type (HT40±) dominates over a zero chan_width; otherwise
// chan_width selects the suffix; unusual_center1 adds the "-CC" suffix on
// VHT widths; chan_width=default with chan_type=none renders as the bare
// frequency.
func Serialize(d Descriptor) string {
	switch d.ChanType {
	case ChanTypeHT40Minus:
		return fmt.Sprintf("%dHT40-", d.ControlFreq)
	case ChanTypeHT40Plus:
		return fmt.Sprintf("%dHT40+", d.ControlFreq)
	}

	switch d.ChanWidth {
	case ChanWidth5MHz:
		return fmt.Sprintf("%dW5", d.ControlFreq)
	case ChanWidth10MHz:
		return fmt.Sprintf("%dW10", d.ControlFreq)
	case ChanWidth80MHz:
		if d.UnusualCenter1 {
			return fmt.Sprintf("%dVHT80-%d", d.ControlFreq, d.CenterFreq1)
		}
		return fmt.Sprintf("%dVHT80", d.ControlFreq)
	case ChanWidth160MHz:
		if d.UnusualCenter1 {
			return fmt.Sprintf("%dVHT160-%d", d.ControlFreq, d.CenterFreq1)
		}
		return fmt.Sprintf("%dVHT160", d.ControlFreq)
	default:
		return strconv.Itoa(d.ControlFreq)
	}
}

// splitLeadingInt reads the leading base-10 integer off s and returns it
// along with whatever follows. Returns n=-1 if s has no leading integer.
func splitLeadingInt(s string) (int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return -1, ""
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return -1, ""
	}
	return n, s[i:]
}

// ht40Suffix recognizes "HT40+" / "HT40-" (already upper-cased).
func ht40Suffix(rest string) (byte, bool) {
	if rest == "HT40+" {
		return '+', true
	}
	if rest == "HT40-" {
		return '-', true
	}
	return 0, false
}

// vhtSuffix recognizes "VHT80", "VHT160", "VHT80-CC", "VHT160-CC" (already
// upper-cased). Returns the matched type ("VHT80"/"VHT160") and the explicit
// center string, if any.
func vhtSuffix(rest string) (typ string, center string, ok bool) {
	for _, t := range []string{"VHT160", "VHT80"} {
		if rest == t {
			return t, "", true
		}
		if strings.HasPrefix(rest, t+"-") {
			return t, rest[len(t)+1:], true
		}
	}
	return "", "", false
}
