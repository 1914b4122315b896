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

package lifecycle

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/capture-linux-wifi/internal/capture"
	"github.com/kismetwireless/capture-linux-wifi/internal/nmctl"
	"github.com/kismetwireless/capture-linux-wifi/internal/nmctl/nmctltest"
	"github.com/kismetwireless/capture-linux-wifi/internal/prepare"
	"github.com/kismetwireless/capture-linux-wifi/internal/protocol/protocoltest"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless/wirelesstest"
)

type fakeEnumerator struct{ names []string }

func (f *fakeEnumerator) InterfaceNames(ctx context.Context) ([]string, error) {
	return f.names, nil
}

// blockingSource models a live pcap handle: ReadPacketData blocks until
// Breakloop is called, exactly like *pcap.Handle's cgo read does until
// pcap_breakloop unblocks it.
type blockingSource struct {
	once   sync.Once
	broken chan struct{}
}

func newBlockingSource() *blockingSource { return &blockingSource{broken: make(chan struct{})} }

func (s *blockingSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	<-s.broken
	return nil, gopacket.CaptureInfo{}, context.Canceled
}
func (s *blockingSource) Close()     { s.Breakloop() }
func (s *blockingSource) Breakloop() { s.once.Do(func() { close(s.broken) }) }

func newHandler(t *testing.T, backend *wirelesstest.Fake) (*Handler, *protocoltest.Fake) {
	t.Helper()
	adapter := wireless.NewAdapter(backend, backend)
	proto := protocoltest.New()
	deps := prepare.Deps{
		Adapter:    adapter,
		Interfaces: &fakeEnumerator{names: []string{"wlan0"}},
		OpenCapture: func(ctx context.Context, ifname string) (capture.PacketSource, int, error) {
			return newBlockingSource(), 127, nil
		},
	}
	return NewHandler(proto, deps, nil), proto
}

func TestHandleOpenSendsResponseAndStartsCapture(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["wlan0"] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeMonitor,
	}
	h, proto := newHandler(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := h.HandleOpen(ctx, 1, "wlan0", "")
	require.NoError(t, err)

	require.Len(t, proto.OpenResponses, 1)
	require.NotNil(t, h.Result())
	assert.Equal(t, "wlan0", h.Result().State.CaptureIfname)
}

func TestHandleChanControlBeforeOpenFails(t *testing.T) {
	backend := wirelesstest.New()
	h, _ := newHandler(t, backend)

	err := h.HandleChanControl(context.Background(), 5, "6")
	require.Error(t, err)
}

func TestHandleChanControlAfterOpenDispatchesToController(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["wlan0"] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeMonitor,
	}
	h, proto := newHandler(t, backend)
	require.NoError(t, h.HandleOpen(context.Background(), 1, "wlan0", ""))

	err := h.HandleChanControl(context.Background(), 9, "36HT40+")
	require.NoError(t, err)
	require.Len(t, proto.ConfigResponses, 1)
	assert.Equal(t, "36HT40+", proto.ConfigResponses[0])
}

func TestHandleChanControlTerminalFailureUnblocksCaptureGoroutine(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["wlan0"] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeMonitor,
	}
	backend.FailSetChannel = 10
	adapter := wireless.NewAdapter(backend, backend)
	proto := protocoltest.New()
	src := newBlockingSource()

	deps := prepare.Deps{
		Adapter:    adapter,
		Interfaces: &fakeEnumerator{names: []string{"wlan0"}},
		OpenCapture: func(ctx context.Context, ifname string) (capture.PacketSource, int, error) {
			return src, 127, nil
		},
	}
	h := NewHandler(proto, deps, nil)
	require.NoError(t, h.HandleOpen(context.Background(), 1, "wlan0", ""))

	var err error
	for i := 0; i < 10; i++ {
		err = h.HandleChanControl(context.Background(), 0, "6")
	}
	require.Error(t, err, "the tenth consecutive hop-context failure must be terminal")

	select {
	case <-src.broken:
	default:
		t.Fatal("terminal channel-control failure must break the capture goroutine's blocked read")
	}
	assert.True(t, proto.SpundDown)
}

func TestShutdownRestoresNetworkManagerManagement(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["wlan0"] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeMonitor,
	}
	adapter := wireless.NewAdapter(backend, backend)
	proto := protocoltest.New()
	nm := nmctltest.New("wlan0")

	deps := prepare.Deps{
		Adapter:    adapter,
		Interfaces: &fakeEnumerator{names: []string{"wlan0"}},
		DialNM:     func() (nmctl.Client, error) { return nm, nil },
		OpenCapture: func(ctx context.Context, ifname string) (capture.PacketSource, int, error) {
			return newBlockingSource(), 127, nil
		},
	}
	h := NewHandler(proto, deps, func() (nmctl.Client, error) { return nmctltest.New(), nil })

	require.NoError(t, h.HandleOpen(context.Background(), 1, "wlan0", ""))
	h.result.State.RestoreNMOnExit = true

	restoreNM := nmctltest.New()
	restoreNM.ManagedIfaces["wlan0"] = false
	h.dialNM = func() (nmctl.Client, error) { return restoreNM, nil }

	h.Shutdown(context.Background())

	require.Len(t, restoreNM.SetManagedCalls, 1)
	assert.True(t, restoreNM.SetManagedCalls[0].Managed)
	assert.True(t, proto.SpundDown)
}
