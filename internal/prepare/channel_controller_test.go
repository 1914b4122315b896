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

package prepare

import (
	"context"
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/capture-linux-wifi/internal/protocol/protocoltest"
	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless/wirelesstest"
)

// fakeBreakSource is a capture.PacketSource that only records whether
// Breakloop was called, for asserting the Channel Controller's terminal
// escalation actually reaches the capture side.
type fakeBreakSource struct{ broken bool }

func (s *fakeBreakSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, nil
}
func (s *fakeBreakSource) Close()     {}
func (s *fakeBreakSource) Breakloop() { s.broken = true }

func newControllerState(backend *wirelesstest.Fake, ifname string) *State {
	adapter := wireless.NewAdapter(backend, backend)
	return &State{RequestedIfname: ifname, CaptureIfname: ifname, Adapter: adapter, Source: &fakeBreakSource{}}
}

func TestChannelControllerResetsFailureCountOnSuccess(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["mon0"] = &wirelesstest.Interface{}
	st := newControllerState(backend, "mon0")
	proto := protocoltest.New()
	ctrl := ChannelController{Proto: proto}

	err := ctrl.SetChannel(context.Background(), st, wifichan.Descriptor{ControlFreq: 6}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), st.SeqChannelFailureCount())
}

func TestChannelControllerToleratesNineHopFailuresThenSucceeds(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["mon0"] = &wirelesstest.Interface{}
	backend.FailSetChannel = 9
	st := newControllerState(backend, "mon0")
	proto := protocoltest.New()
	ctrl := ChannelController{Proto: proto}

	for i := 0; i < 9; i++ {
		err := ctrl.SetChannel(context.Background(), st, wifichan.Descriptor{ControlFreq: 6}, 0)
		require.NoError(t, err, "hop-context failures must not be terminal below the threshold")
	}
	assert.Equal(t, uint32(9), st.SeqChannelFailureCount())
	assert.Len(t, proto.Messages, 9)

	err := ctrl.SetChannel(context.Background(), st, wifichan.Descriptor{ControlFreq: 6}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), st.SeqChannelFailureCount(), "a success resets the counter")
}

func TestChannelControllerEscalatesAfterTenConsecutiveHopFailures(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["mon0"] = &wirelesstest.Interface{}
	backend.FailSetChannel = 10
	st := newControllerState(backend, "mon0")
	proto := protocoltest.New()
	ctrl := ChannelController{Proto: proto}

	var err error
	for i := 0; i < 10; i++ {
		err = ctrl.SetChannel(context.Background(), st, wifichan.Descriptor{ControlFreq: 6}, 0)
	}
	require.Error(t, err, "the tenth consecutive hop-context failure must be terminal")
	assert.ErrorIs(t, err, ErrTransientChannelSet)
	assert.NotEmpty(t, proto.Errors)

	assert.True(t, st.Source.(*fakeBreakSource).broken, "terminal escalation must break the capture goroutine's in-flight read")
	assert.True(t, proto.SpundDown, "terminal escalation must spin the protocol down")
}

func TestChannelControllerExplicitConfigureAlwaysTerminalOnFailure(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["mon0"] = &wirelesstest.Interface{}
	backend.FailSetChannel = 1
	st := newControllerState(backend, "mon0")
	proto := protocoltest.New()
	ctrl := ChannelController{Proto: proto}

	err := ctrl.SetChannel(context.Background(), st, wifichan.Descriptor{ControlFreq: 6}, 42)
	require.Error(t, err, "an explicit configure failure is always terminal, regardless of the hop counter")
	assert.NotEmpty(t, proto.Errors)
}

func TestChannelControllerExplicitConfigureEmitsConfigResponseOnSuccess(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["mon0"] = &wirelesstest.Interface{}
	st := newControllerState(backend, "mon0")
	proto := protocoltest.New()
	ctrl := ChannelController{Proto: proto}

	err := ctrl.SetChannel(context.Background(), st, wifichan.Descriptor{ControlFreq: 36, ChanType: wifichan.ChanTypeHT40Plus}, 7)
	require.NoError(t, err)
	require.Len(t, proto.ConfigResponses, 1)
	assert.Equal(t, "36HT40+", proto.ConfigResponses[0])
}

func TestChannelControllerMainThreadOnly(t *testing.T) {
	// Only the main goroutine ever calls SetChannel; this documents that
	// invariant with a -race-clean concurrent read of the failure counter
	// from a second goroutine simulating the capture side, which only ever
	// reads it (e.g. via SeqChannelFailureCount), never writes it.
	backend := wirelesstest.New()
	backend.Ifaces["mon0"] = &wirelesstest.Interface{}
	st := newControllerState(backend, "mon0")
	proto := protocoltest.New()
	ctrl := ChannelController{Proto: proto}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = st.SeqChannelFailureCount()
		}
	}()

	for i := 0; i < 50; i++ {
		_ = ctrl.SetChannel(context.Background(), st, wifichan.Descriptor{ControlFreq: 6}, 0)
	}
	<-done
}
