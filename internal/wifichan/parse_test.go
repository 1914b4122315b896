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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBareChannel(t *testing.T) {
	d, diags, err := Parse("6")
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, Descriptor{ControlFreq: 6}, d)
	assert.Equal(t, "6", Serialize(d))
}

func TestParseHT40PlusKnownGood(t *testing.T) {
	d, diags, err := Parse("36HT40+")
	require.NoError(t, err)
	assert.Empty(t, diags, "channel 36 supports HT40+, no diagnostic expected")
	assert.Equal(t, Descriptor{ControlFreq: 36, ChanType: ChanTypeHT40Plus}, d)
	assert.Equal(t, "36HT40+", Serialize(d))
}

func TestParseHT40MinusUnsupportedEmitsDiagnostic(t *testing.T) {
	// Channel 36 does not support HT40-.
	d, diags, err := Parse("36HT40-")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, LevelInfo, diags[0].Level)
	assert.Equal(t, Descriptor{ControlFreq: 36, ChanType: ChanTypeHT40Minus}, d)
}

func TestParseVHT80TableDerived(t *testing.T) {
	d, diags, err := Parse("36VHT80")
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, 5180, d.ControlFreq)
	assert.Equal(t, ChanWidth80MHz, d.ChanWidth)
	assert.Equal(t, 5210, d.CenterFreq1)
	assert.False(t, d.UnusualCenter1)
}

func TestParseVHT160ExplicitCenter(t *testing.T) {
	d, diags, err := Parse("100VHT160-5250")
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, Descriptor{
		ControlFreq:    100,
		ChanWidth:      ChanWidth160MHz,
		CenterFreq1:    5250,
		UnusualCenter1: true,
	}, d)
	assert.Equal(t, "100VHT160-5250", Serialize(d))
}

func TestParseVHTUnsupportedChannelFails(t *testing.T) {
	// Channel 1 (2.4GHz) has no VHT80 entry.
	_, _, err := Parse("1VHT80")
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParseGarbageFails(t *testing.T) {
	_, _, err := Parse("garbage")
	require.Error(t, err)
}

func TestParseUnknownSuffixEmitsDiagnostic(t *testing.T) {
	d, diags, err := Parse("6Q")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, LevelInfo, diags[0].Level)
	assert.Equal(t, Descriptor{ControlFreq: 6}, d)
}

func TestParseW5W10(t *testing.T) {
	d5, _, err := Parse("36W5")
	require.NoError(t, err)
	assert.Equal(t, Descriptor{ControlFreq: 36, ChanWidth: ChanWidth5MHz}, d5)
	assert.Equal(t, "36W5", Serialize(d5))

	d10, _, err := Parse("36W10")
	require.NoError(t, err)
	assert.Equal(t, Descriptor{ControlFreq: 36, ChanWidth: ChanWidth10MHz}, d10)
	assert.Equal(t, "36W10", Serialize(d10))
}

func TestParseSerializeRoundTrip(t *testing.T) {
	inputs := []string{
		"6", "36HT40+", "40HT40-", "36VHT80", "100VHT160", "100VHT160-5250",
		"36VHT80-1234", "149W5", "149W10", "6Q",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			d, _, err := Parse(in)
			require.NoError(t, err)
			require.True(t, d.Valid(), "descriptor from %q violates invariants", in)

			out := Serialize(d)
			d2, _, err := Parse(out)
			require.NoError(t, err)

			assert.Equal(t, d, d2, "round trip via %q -> %q -> Parse", in, out)
		})
	}
}

func TestDescriptorInvariants(t *testing.T) {
	assert.True(t, Descriptor{ControlFreq: 6}.Valid())
	assert.True(t, Descriptor{ControlFreq: 36, ChanType: ChanTypeHT40Plus}.Valid())
	assert.False(t, Descriptor{ControlFreq: 36, ChanType: ChanTypeHT40Plus, ChanWidth: ChanWidth80MHz}.Valid())
	assert.True(t, Descriptor{ControlFreq: 5180, ChanWidth: ChanWidth80MHz, CenterFreq1: 5210}.Valid())
	assert.False(t, Descriptor{ControlFreq: 5180, ChanWidth: ChanWidth80MHz}.Valid())
	assert.True(t, Descriptor{ControlFreq: 36, ChanWidth: ChanWidth5MHz}.Valid())
	assert.False(t, Descriptor{ControlFreq: 36, ChanWidth: ChanWidth5MHz, CenterFreq1: 1}.Valid())
}
