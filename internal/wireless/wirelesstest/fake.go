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

// Package wirelesstest provides an in-memory wireless.Backend fake for
// exercising the Interface Preparer and Channel Controller without real
// netlink/ioctl access.
package wirelesstest

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
)

// Interface is one simulated network interface.
type Interface struct {
	HWAddr    net.HardwareAddr
	Mode      wireless.Mode
	Up        bool
	ChanList  []string
	HardRFKill bool
	SoftRFKill bool
}

// Fake is a scriptable wireless.Backend. Tests mutate Ifaces directly and
// set the Fail* hooks to simulate transient failures.
type Fake struct {
	mu     sync.Mutex
	Ifaces map[string]*Interface

	// FailCreateVIF, when non-nil, is returned by CreateMonitorVIF instead
	// of creating the interface.
	FailCreateVIF error

	// FailSetChannel, if set, is returned by SetChannel/SetFrequency the
	// next N calls (consumed one per call); used to simulate the
	// hop-tolerant transient failure scenarios from spec §8.
	FailSetChannel int

	SetChannelCalls int
}

var _ wireless.Backend = (*Fake)(nil)

// New returns an empty Fake backend.
func New() *Fake {
	return &Fake{Ifaces: make(map[string]*Interface)}
}

func (f *Fake) iface(ifname string) (*Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iface, ok := f.Ifaces[ifname]
	if !ok {
		return nil, wireless.ErrNoSuchInterface
	}
	return iface, nil
}

func (f *Fake) HWAddr(ctx context.Context, ifname string) (net.HardwareAddr, error) {
	iface, err := f.iface(ifname)
	if err != nil {
		return nil, err
	}
	return iface.HWAddr, nil
}

func (f *Fake) Mode(ctx context.Context, ifname string) (wireless.Mode, error) {
	iface, err := f.iface(ifname)
	if err != nil {
		return wireless.ModeUnknown, err
	}
	return iface.Mode, nil
}

func (f *Fake) SetMode(ctx context.Context, ifname string, mode wireless.Mode) error {
	iface, err := f.iface(ifname)
	if err != nil {
		return err
	}
	f.mu.Lock()
	iface.Mode = mode
	f.mu.Unlock()
	return nil
}

func (f *Fake) ChannelList(ctx context.Context, ifname string) ([]string, error) {
	iface, err := f.iface(ifname)
	if err != nil {
		return nil, err
	}
	return iface.ChanList, nil
}

func (f *Fake) consumeFailure() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetChannelCalls++
	if f.FailSetChannel > 0 {
		f.FailSetChannel--
		return true
	}
	return false
}

func (f *Fake) SetChannel(ctx context.Context, ifname string, controlFreq int, chanType wifichan.ChanType) error {
	if _, err := f.iface(ifname); err != nil {
		return err
	}
	if f.consumeFailure() {
		return fmt.Errorf("simulated transient channel-set failure")
	}
	return nil
}

func (f *Fake) SetFrequency(ctx context.Context, ifname string, controlFreq int, width wifichan.ChanWidth, c1, c2 int) error {
	if _, err := f.iface(ifname); err != nil {
		return err
	}
	if f.consumeFailure() {
		return fmt.Errorf("simulated transient frequency-set failure")
	}
	return nil
}

func (f *Fake) CreateMonitorVIF(ctx context.Context, parent, child string, flags wireless.MonitorFlags) error {
	if f.FailCreateVIF != nil {
		return f.FailCreateVIF
	}
	parentIface, err := f.iface(parent)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.Ifaces[child] = &Interface{HWAddr: parentIface.HWAddr, Mode: wireless.ModeMonitor}
	f.mu.Unlock()
	return nil
}

func (f *Fake) ClearRFKill(ctx context.Context, ifname string) error {
	iface, err := f.iface(ifname)
	if err != nil {
		return err
	}
	f.mu.Lock()
	iface.SoftRFKill = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) RFKillState(ctx context.Context, ifname string, kind wireless.RFKillKind) (bool, error) {
	iface, err := f.iface(ifname)
	if err != nil {
		return false, err
	}
	if kind == wireless.RFKillHard {
		return iface.HardRFKill, nil
	}
	return iface.SoftRFKill, nil
}

func (f *Fake) SetUp(ctx context.Context, ifname string) error {
	iface, err := f.iface(ifname)
	if err != nil {
		return err
	}
	f.mu.Lock()
	iface.Up = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetDown(ctx context.Context, ifname string) error {
	iface, err := f.iface(ifname)
	if err != nil {
		return err
	}
	f.mu.Lock()
	iface.Up = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) IsUp(ctx context.Context, ifname string) (bool, error) {
	iface, err := f.iface(ifname)
	if err != nil {
		return false, err
	}
	return iface.Up, nil
}
