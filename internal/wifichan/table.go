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

// Package wifichan implements the channel string grammar used by the
// capture helper: parsing human-readable channel specifications (including
// HT40 and VHT80/160 variants) into a compact descriptor, serializing a
// descriptor back to its canonical string, and validating channels against
// a static table of Wi-Fi HT/VHT capabilities.
package wifichan

// htFlags marks which wide-channel modes a given Wi-Fi channel supports.
type htFlags uint8

const (
	htFlagHT40Minus htFlags = 1 << iota
	htFlagHT40Plus
	htFlagVHT80
	htFlagVHT160
)

// htEntry is one row of the static HT/VHT capability table.
type htEntry struct {
	chan_  int
	freq   int
	flags  htFlags
	freq80 int
	freq160 int
}

// htChannelTable is indexed by channel number. It is built once, at package
// init, from the literal table below, per DESIGN NOTES: "implementations
// should build it at compile time or at first use from a single data
// literal." Every lookup goes through this one map, which holds every row;
// the source discrepancy between a fixed constant bound and sizeof(table)/sizeof(entry)
// named in the spec's open question is not reproduced here.
var htChannelTable = buildHTChannelTable()

func buildHTChannelTable() map[int]htEntry {
	entries := []htEntry{
		// 2.4GHz: HT40 only, no VHT.
		{chan_: 1, freq: 2412, flags: htFlagHT40Plus},
		{chan_: 2, freq: 2417, flags: htFlagHT40Plus},
		{chan_: 3, freq: 2422, flags: htFlagHT40Plus},
		{chan_: 4, freq: 2427, flags: htFlagHT40Plus},
		{chan_: 5, freq: 2432, flags: htFlagHT40Plus | htFlagHT40Minus},
		{chan_: 6, freq: 2437, flags: htFlagHT40Plus | htFlagHT40Minus},
		{chan_: 7, freq: 2442, flags: htFlagHT40Plus | htFlagHT40Minus},
		{chan_: 8, freq: 2447, flags: htFlagHT40Plus | htFlagHT40Minus},
		{chan_: 9, freq: 2452, flags: htFlagHT40Minus},
		{chan_: 10, freq: 2457, flags: htFlagHT40Minus},
		{chan_: 11, freq: 2462, flags: htFlagHT40Minus},
		{chan_: 12, freq: 2467},
		{chan_: 13, freq: 2472},
		{chan_: 14, freq: 2484},

		// 5GHz UNII-1/2: HT40 + VHT80 + VHT160.
		{chan_: 36, freq: 5180, flags: htFlagHT40Plus | htFlagVHT80 | htFlagVHT160, freq80: 5210, freq160: 5250},
		{chan_: 40, freq: 5200, flags: htFlagHT40Minus | htFlagVHT80 | htFlagVHT160, freq80: 5210, freq160: 5250},
		{chan_: 44, freq: 5220, flags: htFlagHT40Plus | htFlagVHT80 | htFlagVHT160, freq80: 5210, freq160: 5250},
		{chan_: 48, freq: 5240, flags: htFlagHT40Minus | htFlagVHT80 | htFlagVHT160, freq80: 5210, freq160: 5250},
		{chan_: 52, freq: 5260, flags: htFlagHT40Plus | htFlagVHT80 | htFlagVHT160, freq80: 5290, freq160: 5250},
		{chan_: 56, freq: 5280, flags: htFlagHT40Minus | htFlagVHT80 | htFlagVHT160, freq80: 5290, freq160: 5250},
		{chan_: 60, freq: 5300, flags: htFlagHT40Plus | htFlagVHT80 | htFlagVHT160, freq80: 5290, freq160: 5250},
		{chan_: 64, freq: 5320, flags: htFlagHT40Minus | htFlagVHT80 | htFlagVHT160, freq80: 5290, freq160: 5250},

		// 5GHz UNII-2-Extended: HT40 + VHT80; VHT160 on 100-128 only.
		{chan_: 100, freq: 5500, flags: htFlagHT40Plus | htFlagVHT80 | htFlagVHT160, freq80: 5530, freq160: 5570},
		{chan_: 104, freq: 5520, flags: htFlagHT40Minus | htFlagVHT80 | htFlagVHT160, freq80: 5530, freq160: 5570},
		{chan_: 108, freq: 5540, flags: htFlagHT40Plus | htFlagVHT80 | htFlagVHT160, freq80: 5530, freq160: 5570},
		{chan_: 112, freq: 5560, flags: htFlagHT40Minus | htFlagVHT80 | htFlagVHT160, freq80: 5530, freq160: 5570},
		{chan_: 116, freq: 5580, flags: htFlagHT40Plus | htFlagVHT80 | htFlagVHT160, freq80: 5610, freq160: 5570},
		{chan_: 120, freq: 5600, flags: htFlagHT40Minus | htFlagVHT80 | htFlagVHT160, freq80: 5610, freq160: 5570},
		{chan_: 124, freq: 5620, flags: htFlagHT40Plus | htFlagVHT80 | htFlagVHT160, freq80: 5610, freq160: 5570},
		{chan_: 128, freq: 5640, flags: htFlagHT40Minus | htFlagVHT80 | htFlagVHT160, freq80: 5610, freq160: 5570},
		{chan_: 132, freq: 5660, flags: htFlagHT40Plus | htFlagVHT80, freq80: 5690},
		{chan_: 136, freq: 5680, flags: htFlagHT40Minus | htFlagVHT80, freq80: 5690},
		{chan_: 140, freq: 5700, flags: htFlagHT40Plus | htFlagVHT80, freq80: 5690},
		{chan_: 144, freq: 5720, flags: htFlagHT40Minus | htFlagVHT80, freq80: 5690},

		// 5GHz UNII-3: HT40 + VHT80 on 149-161, no VHT160; 165 has neither.
		{chan_: 149, freq: 5745, flags: htFlagHT40Plus | htFlagVHT80, freq80: 5775},
		{chan_: 153, freq: 5765, flags: htFlagHT40Minus | htFlagVHT80, freq80: 5775},
		{chan_: 157, freq: 5785, flags: htFlagHT40Plus | htFlagVHT80, freq80: 5775},
		{chan_: 161, freq: 5805, flags: htFlagHT40Minus | htFlagVHT80, freq80: 5775},
		{chan_: 165, freq: 5825},
	}

	table := make(map[int]htEntry, len(entries)*2)
	for _, e := range entries {
		table[e.chan_] = e
		table[e.freq] = e
	}
	return table
}

// lookupHTEntry finds a table row by channel number or control frequency.
// The table is keyed by both representations so every lookup covers the
// entire table uniformly, unlike the original C implementation's two
// differently-bounded scans over the same data.
func lookupHTEntry(chanOrFreq int) (htEntry, bool) {
	e, ok := htChannelTable[chanOrFreq]
	return e, ok
}
