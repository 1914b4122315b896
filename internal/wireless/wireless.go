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

// Package wireless abstracts the two Linux control planes used to drive an
// 802.11 interface: a modern netlink/nl80211 backend and a legacy
// wireless-extension ioctl backend. Callers see a single capability
// surface (Adapter); which concrete backend services a given call is
// decided per-operation, with an explicit fallthrough marker the caller
// can observe (UsedNetlink).
package wireless

import (
	"context"
	"errors"
	"net"

	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
)

// Mode is a wireless operating mode, as reported by get_mode / accepted by
// set_mode (spec §4.2).
type Mode int

const (
	ModeUnknown Mode = iota
	ModeManaged
	ModeMonitor
	ModeOther
)

// RFKillKind distinguishes the hardware (physical switch) and software
// rfkill states (spec §4.2, §4.3 RFKILL step).
type RFKillKind int

const (
	RFKillSoft RFKillKind = iota
	RFKillHard
)

// MonitorFlags is the recognized monitor flag set from spec §4.2: CONTROL
// and OTHER_BSS are always included by callers; FCSFAIL and PLCPFAIL are
// added iff the source definition opts in.
type MonitorFlags uint8

const (
	MonitorControl MonitorFlags = 1 << iota
	MonitorOtherBSS
	MonitorFCSFail
	MonitorPLCPFail
)

var (
	// ErrUnsupportedOp is returned by a Backend when it cannot perform an
	// operation at all (as opposed to the operation failing at runtime);
	// Adapter treats it as a signal to fall through to the other backend.
	ErrUnsupportedOp = errors.New("wireless: operation unsupported by this backend")

	// ErrPermission covers failures opening netlink, ioctl, or rfkill
	// sockets (spec §7, "Permission / capability error" — always fatal to
	// the open operation).
	ErrPermission = errors.New("wireless: permission or capability error")

	// ErrHardRFKill indicates the interface is hardware rfkilled (spec §7,
	// "Hardware state error").
	ErrHardRFKill = errors.New("wireless: interface is hard rfkilled")

	// ErrNoSuchInterface indicates the named interface does not exist.
	ErrNoSuchInterface = errors.New("wireless: no such interface")
)

// Backend is the capability surface each control plane implements. Every
// method returns an error with a human-readable message per spec §4.2.
type Backend interface {
	// HWAddr returns the 6-byte EUI-48 of the interface.
	HWAddr(ctx context.Context, ifname string) (net.HardwareAddr, error)

	// Mode returns the current wireless operating mode.
	Mode(ctx context.Context, ifname string) (Mode, error)

	// SetMode requests a mode change; the interface must be admin-down.
	SetMode(ctx context.Context, ifname string, mode Mode) error

	// ChannelList returns an ordered, de-duplicated list of channel
	// strings the driver advertises.
	ChannelList(ctx context.Context, ifname string) ([]string, error)

	// SetChannel performs a legacy-style channel set.
	SetChannel(ctx context.Context, ifname string, controlFreq int, chanType wifichan.ChanType) error

	// SetFrequency performs a width-aware channel set; c1=0 and c2=0 are
	// omitted from the request.
	SetFrequency(ctx context.Context, ifname string, controlFreq int, width wifichan.ChanWidth, c1, c2 int) error

	// CreateMonitorVIF creates a monitor virtual interface bound to parent
	// with the given monitor flag set.
	CreateMonitorVIF(ctx context.Context, parent, child string, flags MonitorFlags) error

	// ClearRFKill clears soft rfkill on the interface.
	ClearRFKill(ctx context.Context, ifname string) error

	// RFKillState reports soft/hard rfkill state.
	RFKillState(ctx context.Context, ifname string, kind RFKillKind) (bool, error)

	// SetUp brings the interface admin-up.
	SetUp(ctx context.Context, ifname string) error

	// SetDown brings the interface admin-down.
	SetDown(ctx context.Context, ifname string) error

	// IsUp reports whether the interface is currently admin-up.
	IsUp(ctx context.Context, ifname string) (bool, error)
}

// Adapter is the capability set implemented by a tagged variant of two
// backends: the netlink backend is preferred whenever a netlink session
// can be established; operations it can't perform fall through to the
// ioctl backend (DESIGN NOTES §9).
type Adapter struct {
	nl  Backend // nil if netlink is unavailable
	ioc Backend // always present

	// usedNetlink records, per the most recent fallthrough-sensitive call,
	// whether the netlink backend served it. The Interface Preparer reads
	// this to set InterfaceState.UseNetlink.
	usedNetlink bool
}

// NewAdapter builds an Adapter. nl may be nil when no netlink session could
// be established; ioc must not be nil.
func NewAdapter(nl, ioc Backend) *Adapter {
	return &Adapter{nl: nl, ioc: ioc}
}

// UsedNetlink reports whether the most recent fallthrough-sensitive
// operation (SetChannel, SetFrequency, CreateMonitorVIF) was served by the
// netlink backend.
func (a *Adapter) UsedNetlink() bool {
	return a.usedNetlink
}

// HasNetlink reports whether a netlink backend is configured at all.
func (a *Adapter) HasNetlink() bool {
	return a.nl != nil
}

// DisableNetlink permanently marks the adapter as ioctl-only, mirroring
// spec §4.3 NL_CREATE_VIF's "release the netlink session and mark
// use_netlink = false" on fallthrough.
func (a *Adapter) DisableNetlink() {
	if c, ok := a.nl.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	a.nl = nil
	a.usedNetlink = false
}

func (a *Adapter) HWAddr(ctx context.Context, ifname string) (net.HardwareAddr, error) {
	if a.nl != nil {
		if hw, err := a.nl.HWAddr(ctx, ifname); err == nil {
			return hw, nil
		}
	}
	return a.ioc.HWAddr(ctx, ifname)
}

func (a *Adapter) Mode(ctx context.Context, ifname string) (Mode, error) {
	if a.nl != nil {
		if m, err := a.nl.Mode(ctx, ifname); err == nil {
			return m, nil
		}
	}
	return a.ioc.Mode(ctx, ifname)
}

func (a *Adapter) SetMode(ctx context.Context, ifname string, mode Mode) error {
	return a.ioc.SetMode(ctx, ifname, mode)
}

func (a *Adapter) ChannelList(ctx context.Context, ifname string) ([]string, error) {
	if a.nl != nil {
		if list, err := a.nl.ChannelList(ctx, ifname); err == nil {
			return list, nil
		}
	}
	return a.ioc.ChannelList(ctx, ifname)
}

// SetChannel dispatches per the Channel Controller's rule (spec §4.4): the
// netlink backend is used when available, the ioctl backend otherwise. It
// records which backend served the call so the caller can react to a
// netlink failure by disabling netlink for subsequent calls.
func (a *Adapter) SetChannel(ctx context.Context, ifname string, controlFreq int, chanType wifichan.ChanType) error {
	if a.nl != nil {
		a.usedNetlink = true
		return a.nl.SetChannel(ctx, ifname, controlFreq, chanType)
	}
	a.usedNetlink = false
	return a.ioc.SetChannel(ctx, ifname, controlFreq, chanType)
}

func (a *Adapter) SetFrequency(ctx context.Context, ifname string, controlFreq int, width wifichan.ChanWidth, c1, c2 int) error {
	if a.nl != nil {
		a.usedNetlink = true
		return a.nl.SetFrequency(ctx, ifname, controlFreq, width, c1, c2)
	}
	a.usedNetlink = false
	return a.ioc.SetFrequency(ctx, ifname, controlFreq, width, c1, c2)
}

// CreateMonitorVIF attempts the netlink backend only; the caller
// (Interface Preparer) is responsible for the LEGACY_SETMODE fallback on
// failure, per spec §4.3 NL_CREATE_VIF.
func (a *Adapter) CreateMonitorVIF(ctx context.Context, parent, child string, flags MonitorFlags) error {
	if a.nl == nil {
		a.usedNetlink = false
		return ErrUnsupportedOp
	}
	a.usedNetlink = true
	return a.nl.CreateMonitorVIF(ctx, parent, child, flags)
}

func (a *Adapter) ClearRFKill(ctx context.Context, ifname string) error {
	return a.ioc.ClearRFKill(ctx, ifname)
}

func (a *Adapter) RFKillState(ctx context.Context, ifname string, kind RFKillKind) (bool, error) {
	return a.ioc.RFKillState(ctx, ifname, kind)
}

func (a *Adapter) SetUp(ctx context.Context, ifname string) error {
	return a.ioc.SetUp(ctx, ifname)
}

func (a *Adapter) SetDown(ctx context.Context, ifname string) error {
	return a.ioc.SetDown(ctx, ifname)
}

func (a *Adapter) IsUp(ctx context.Context, ifname string) (bool, error) {
	return a.ioc.IsUp(ctx, ifname)
}
