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
	"net"
	"strconv"
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/capture-linux-wifi/internal/capture"
	"github.com/kismetwireless/capture-linux-wifi/internal/nmctl"
	"github.com/kismetwireless/capture-linux-wifi/internal/nmctl/nmctltest"
	"github.com/kismetwireless/capture-linux-wifi/internal/sourcedef"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless/wirelesstest"
)

// fakeEnumerator reports a fixed, mutable set of interface names.
type fakeEnumerator struct {
	names []string
}

func (f *fakeEnumerator) InterfaceNames(ctx context.Context) ([]string, error) {
	return f.names, nil
}

// fakeSource is a no-op capture.PacketSource for Prepare's OPEN_PCAP step.
type fakeSource struct{}

func (fakeSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, nil
}
func (fakeSource) Close()     {}
func (fakeSource) Breakloop() {}

func fakeOpener(ctx context.Context, ifname string) (capture.PacketSource, int, error) {
	return fakeSource{}, 127, nil
}

func TestPrepareAlreadyMonitorCreatesNoVIF(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["wlan0"] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeMonitor,
	}
	adapter := wireless.NewAdapter(backend, backend)

	deps := Deps{
		Adapter:     adapter,
		Interfaces:  &fakeEnumerator{names: []string{"wlan0"}},
		OpenCapture: fakeOpener,
	}

	result, _, err := Prepare(context.Background(), deps, "wlan0", sourcedef.Definition{})
	require.NoError(t, err)

	assert.Equal(t, "wlan0", result.State.CaptureIfname)
	assert.False(t, result.State.CreatedVIF())
	assert.False(t, result.State.RestoreNMOnExit)
	assert.Equal(t, 127, result.State.DatalinkType)
	assert.NotEmpty(t, result.UUID)
}

func TestPrepareManagedModeCreatesVIFAndBringsParentDown(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["wlan0"] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeManaged,
		Up:     true,
	}
	adapter := wireless.NewAdapter(backend, backend)

	deps := Deps{
		Adapter:     adapter,
		Interfaces:  &fakeEnumerator{names: []string{"wlan0"}},
		OpenCapture: fakeOpener,
	}

	result, _, err := Prepare(context.Background(), deps, "wlan0", sourcedef.Definition{})
	require.NoError(t, err)

	assert.Equal(t, "wlan0mon", result.State.CaptureIfname)
	assert.True(t, result.State.CreatedVIF())

	parent := backend.Ifaces["wlan0"]
	assert.False(t, parent.Up, "parent must be brought admin-down")

	child := backend.Ifaces["wlan0mon"]
	require.NotNil(t, child)
	assert.True(t, child.Up, "capture interface must be brought admin-up")
	assert.Equal(t, wireless.ModeMonitor, child.Mode)
}

func TestPrepareLongNameFallsBackToKismonN(t *testing.T) {
	backend := wirelesstest.New()
	longName := "wlan_very_long_name_here"
	backend.Ifaces[longName] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeManaged,
	}
	adapter := wireless.NewAdapter(backend, backend)

	deps := Deps{
		Adapter:     adapter,
		Interfaces:  &fakeEnumerator{names: []string{longName}},
		OpenCapture: fakeOpener,
	}

	result, _, err := Prepare(context.Background(), deps, longName, sourcedef.Definition{})
	require.NoError(t, err)
	assert.Equal(t, "kismon0", result.State.CaptureIfname)
}

func TestPrepareLongNameSkipsTakenKismonNames(t *testing.T) {
	backend := wirelesstest.New()
	longName := "wlan_very_long_name_here"
	backend.Ifaces[longName] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeManaged,
	}
	adapter := wireless.NewAdapter(backend, backend)

	deps := Deps{
		Adapter:     adapter,
		Interfaces:  &fakeEnumerator{names: []string{longName, "kismon0"}},
		OpenCapture: fakeOpener,
	}

	result, _, err := Prepare(context.Background(), deps, longName, sourcedef.Definition{})
	require.NoError(t, err)
	assert.Equal(t, "kismon1", result.State.CaptureIfname)
}

func TestPrepareLongNameExhaustsKismonNames(t *testing.T) {
	backend := wirelesstest.New()
	longName := "wlan_very_long_name_here"
	backend.Ifaces[longName] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeManaged,
	}
	names := []string{longName}
	for n := 0; n < 100; n++ {
		names = append(names, "kismon"+strconv.Itoa(n))
	}
	adapter := wireless.NewAdapter(backend, backend)

	deps := Deps{
		Adapter:     adapter,
		Interfaces:  &fakeEnumerator{names: names},
		OpenCapture: fakeOpener,
	}

	_, _, err := Prepare(context.Background(), deps, longName, sourcedef.Definition{})
	require.ErrorIs(t, err, ErrKismonExhausted)
}

func TestPrepareHardRFKillIsFatal(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["wlan0"] = &wirelesstest.Interface{
		HWAddr:     net.HardwareAddr{0, 1, 2, 3, 4, 5},
		HardRFKill: true,
	}
	adapter := wireless.NewAdapter(backend, backend)

	deps := Deps{
		Adapter:     adapter,
		Interfaces:  &fakeEnumerator{names: []string{"wlan0"}},
		OpenCapture: fakeOpener,
	}

	_, _, err := Prepare(context.Background(), deps, "wlan0", sourcedef.Definition{})
	require.Error(t, err)
}

func TestPrepareNMQuiesceSetsRestoreFlag(t *testing.T) {
	backend := wirelesstest.New()
	backend.Ifaces["wlan0"] = &wirelesstest.Interface{
		HWAddr: net.HardwareAddr{0, 1, 2, 3, 4, 5},
		Mode:   wireless.ModeMonitor,
	}
	adapter := wireless.NewAdapter(backend, backend)
	nm := nmctltest.New("wlan0")

	deps := Deps{
		Adapter:     adapter,
		Interfaces:  &fakeEnumerator{names: []string{"wlan0"}},
		DialNM:      func() (nmctl.Client, error) { return nm, nil },
		OpenCapture: fakeOpener,
	}

	result, _, err := Prepare(context.Background(), deps, "wlan0", sourcedef.Definition{})
	require.NoError(t, err)
	assert.True(t, result.State.RestoreNMOnExit)
	assert.True(t, nm.Closed, "the daemon connection must be released before continuing")
}
