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

package capture

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/capture-linux-wifi/internal/protocol/protocoltest"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless/wirelesstest"
)

// fakeSource yields a fixed sequence of packets, then io.EOF.
type fakeSource struct {
	packets [][]byte
	idx     int
}

func (f *fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if f.idx >= len(f.packets) {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	data := f.packets[f.idx]
	f.idx++
	return data, gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(data)}, nil
}

func (f *fakeSource) Close() {}

func (f *fakeSource) Breakloop() {}

func newTestAdapter(ifname string) *wireless.Adapter {
	fake := wirelesstest.New()
	fake.Ifaces[ifname] = &wirelesstest.Interface{Up: true}
	return wireless.NewAdapter(nil, fake)
}

func TestRunDeliversEveryPacketExactlyOnce(t *testing.T) {
	src := &fakeSource{packets: [][]byte{[]byte("pkt1"), []byte("pkt2"), []byte("pkt3")}}
	proto := protocoltest.New()
	adapter := newTestAdapter("mon0")

	err := Run(context.Background(), src, 127, "mon0", adapter, proto)
	require.Error(t, err) // io.EOF surfaces as a read-loop error
	assert.True(t, errors.Is(err, ErrReadLoop))

	require.Len(t, proto.Data, 3)
	assert.Equal(t, "pkt1", string(proto.Data[0].Data))
	assert.Equal(t, "pkt2", string(proto.Data[1].Data))
	assert.Equal(t, "pkt3", string(proto.Data[2].Data))
	for _, f := range proto.Data {
		assert.Equal(t, 127, f.DatalinkType)
	}
}

func TestRunRetriesOnBufferFullWithoutDuplicating(t *testing.T) {
	src := &fakeSource{packets: [][]byte{[]byte("only-packet")}}
	proto := protocoltest.New()
	proto.BufferFullFor = 1
	adapter := newTestAdapter("mon0")

	err := Run(context.Background(), src, 1, "mon0", adapter, proto)
	require.Error(t, err)

	require.Len(t, proto.Data, 1, "packet must be delivered exactly once despite the retry")
	assert.Equal(t, "only-packet", string(proto.Data[0].Data))
	assert.Equal(t, 1, proto.Waits, "must suspend in the ring-buffer wait exactly once")
}

func TestRunBreaksLoopOnFatalSendError(t *testing.T) {
	src := &fakeSource{packets: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	proto := protocoltest.New()
	proto.SendFatalAfter = 2
	adapter := newTestAdapter("mon0")

	err := Run(context.Background(), src, 1, "mon0", adapter, proto)
	require.Error(t, err)

	assert.Len(t, proto.Data, 1, "loop must stop at the first fatal send, not read further packets")
	require.NotEmpty(t, proto.Errors)
	assert.True(t, proto.SpundDown)
}

func TestRunEmitsSecondDiagnosticWhenInterfaceNoLongerUp(t *testing.T) {
	src := &fakeSource{}
	proto := protocoltest.New()
	fake := wirelesstest.New()
	fake.Ifaces["mon0"] = &wirelesstest.Interface{Up: false}
	adapter := wireless.NewAdapter(nil, fake)

	err := Run(context.Background(), src, 1, "mon0", adapter, proto)
	require.Error(t, err)
	require.Len(t, proto.Errors, 2)
	assert.Contains(t, proto.Errors[1], "no longer appears to be up")
}
