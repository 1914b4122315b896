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

//go:build linux

package wireless

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
)

// Legacy wireless-extension ioctl numbers and wireless-mode constants.
// These are not exposed by golang.org/x/sys/unix (they predate netlink and
// live in <linux/wireless.h>), so they're declared here the way
// doismellburning-samoyed declares its own ioctl request numbers next to
// its unix.IoctlXxx call sites.
const (
	siocgiwname = 0x8B01
	siocgiwmode = 0x8B07
	siocsiwmode = 0x8B06
	siocgiwfreq = 0x8B05
	siocsiwfreq = 0x8B04

	iwModeAuto   = 0
	iwModeAdhoc  = 1
	iwModeManaged = 2
	iwModeMonitor = 6
)

// ifreq mirrors struct ifreq's layout closely enough to carry an int or a
// small union payload alongside the interface name, the way a hand-rolled
// legacy-ioctl backend must on Linux/amd64.
type ifreqInt struct {
	name [unix.IFNAMSIZ]byte
	val  int32
	_    [20]byte // pad to match the kernel union's size
}

// ioctlBackend implements Backend against SIOCGIWMODE/SIOCSIWMODE and
// friends, plus sysfs for rfkill and admin state. It is always available
// (the netlink backend may fail to dial; this one only needs a socket
// syscall), matching spec §4.2's description of the ioctl path as the
// fallback control plane.
type ioctlBackend struct{}

// NewIoctlBackend returns the legacy wireless-extension backend.
func NewIoctlBackend() Backend {
	return &ioctlBackend{}
}

func withIoctlSocket[T any](fn func(fd int) (T, error)) (T, error) {
	var zero T
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return zero, fmt.Errorf("%w: open ioctl socket: %v", ErrPermission, err)
	}
	defer unix.Close(fd)
	return fn(fd)
}

func (b *ioctlBackend) HWAddr(ctx context.Context, ifname string) (net.HardwareAddr, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSuchInterface, err)
	}
	return iface.HardwareAddr, nil
}

func (b *ioctlBackend) Mode(ctx context.Context, ifname string) (Mode, error) {
	mode, err := withIoctlSocket(func(fd int) (int32, error) {
		var req ifreqInt
		copy(req.name[:], ifname)
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), siocgiwmode, uintptr(unsafe.Pointer(&req)))
		if errno != 0 {
			return 0, errno
		}
		return req.val, nil
	})
	if err != nil {
		return ModeUnknown, fmt.Errorf("get mode of %q: %w", ifname, err)
	}

	switch mode {
	case iwModeManaged:
		return ModeManaged, nil
	case iwModeMonitor:
		return ModeMonitor, nil
	default:
		return ModeOther, nil
	}
}

func (b *ioctlBackend) SetMode(ctx context.Context, ifname string, mode Mode) error {
	var iwMode int32
	switch mode {
	case ModeManaged:
		iwMode = iwModeManaged
	case ModeMonitor:
		iwMode = iwModeMonitor
	default:
		iwMode = iwModeAuto
	}

	_, err := withIoctlSocket(func(fd int) (struct{}, error) {
		var req ifreqInt
		copy(req.name[:], ifname)
		req.val = iwMode
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), siocsiwmode, uintptr(unsafe.Pointer(&req)))
		if errno != 0 {
			return struct{}{}, errno
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("set mode of %q: %w", ifname, err)
	}
	return nil
}

func (b *ioctlBackend) ChannelList(ctx context.Context, ifname string) ([]string, error) {
	// The legacy ioctl path has no channel-enumeration ioctl beyond the
	// current frequency; it yields bare frequency integers, per spec
	// §4.2's "ioctl path yields bare frequency integers".
	freq, err := withIoctlSocket(func(fd int) (int32, error) {
		var req ifreqInt
		copy(req.name[:], ifname)
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), siocgiwfreq, uintptr(unsafe.Pointer(&req)))
		if errno != 0 {
			return 0, errno
		}
		return req.val, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get channel list of %q: %w", ifname, err)
	}
	if freq <= 0 {
		return nil, nil
	}
	return []string{strconv.Itoa(int(freq))}, nil
}

func (b *ioctlBackend) SetChannel(ctx context.Context, ifname string, controlFreq int, chanType wifichan.ChanType) error {
	return b.setFreq(ifname, controlFreq)
}

func (b *ioctlBackend) SetFrequency(ctx context.Context, ifname string, controlFreq int, width wifichan.ChanWidth, c1, c2 int) error {
	// The legacy ioctls have no concept of channel width or center
	// frequency; chan_type and chan_width are ignored on this path, per
	// spec §4.4's dispatch rule for use_netlink=false.
	return b.setFreq(ifname, controlFreq)
}

func (b *ioctlBackend) setFreq(ifname string, controlFreq int) error {
	_, err := withIoctlSocket(func(fd int) (struct{}, error) {
		var req ifreqInt
		copy(req.name[:], ifname)
		req.val = int32(controlFreq)
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), siocsiwfreq, uintptr(unsafe.Pointer(&req)))
		if errno != 0 {
			return struct{}{}, errno
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("set channel %d on %q: %w", controlFreq, ifname, err)
	}
	return nil
}

func (b *ioctlBackend) CreateMonitorVIF(ctx context.Context, parent, child string, flags MonitorFlags) error {
	// The wireless-extension ioctls cannot create virtual interfaces; this
	// is precisely why spec §4.3 LEGACY_SETMODE retypes the parent
	// interface itself instead.
	return ErrUnsupportedOp
}

func (b *ioctlBackend) ClearRFKill(ctx context.Context, ifname string) error {
	idx, err := rfkillIndexFor(ifname)
	if err != nil {
		return err
	}
	path := filepath.Join("/sys/class/rfkill", fmt.Sprintf("rfkill%d", idx), "soft")
	if err := os.WriteFile(path, []byte("0\n"), 0644); err != nil {
		return fmt.Errorf("clear soft rfkill for %q: %w", ifname, err)
	}
	return nil
}

func (b *ioctlBackend) RFKillState(ctx context.Context, ifname string, kind RFKillKind) (bool, error) {
	idx, err := rfkillIndexFor(ifname)
	if err != nil {
		// No rfkill device for this interface: treat as not blocked.
		return false, nil
	}

	name := "soft"
	if kind == RFKillHard {
		name = "hard"
	}
	path := filepath.Join("/sys/class/rfkill", fmt.Sprintf("rfkill%d", idx), name)
	data, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

// rfkillIndexFor resolves which /sys/class/rfkill/rfkillN entry (if any)
// corresponds to the physical radio behind ifname, by matching against the
// phy80211 symlink each wireless netdev exposes.
func rfkillIndexFor(ifname string) (int, error) {
	phyLink := filepath.Join("/sys/class/net", ifname, "phy80211")
	phyPath, err := os.Readlink(phyLink)
	if err != nil {
		return 0, fmt.Errorf("resolve phy for %q: %w", ifname, err)
	}
	phyName := filepath.Base(phyPath)

	entries, err := os.ReadDir("/sys/class/rfkill")
	if err != nil {
		return 0, fmt.Errorf("list rfkill devices: %w", err)
	}
	for _, e := range entries {
		nameBytes, err := os.ReadFile(filepath.Join("/sys/class/rfkill", e.Name(), "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(nameBytes)) == phyName {
			n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "rfkill"))
			if err == nil {
				return n, nil
			}
		}
	}
	return 0, fmt.Errorf("no rfkill device found for %q", ifname)
}

func (b *ioctlBackend) SetUp(ctx context.Context, ifname string) error {
	return setFlags(ifname, unix.IFF_UP, 0)
}

func (b *ioctlBackend) SetDown(ctx context.Context, ifname string) error {
	return setFlags(ifname, 0, unix.IFF_UP)
}

func (b *ioctlBackend) IsUp(ctx context.Context, ifname string) (bool, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrNoSuchInterface, err)
	}
	return iface.Flags&net.FlagUp != 0, nil
}

func setFlags(ifname string, set, clear int32) error {
	_, err := withIoctlSocket(func(fd int) (struct{}, error) {
		var req ifreqInt
		copy(req.name[:], ifname)

		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCGIFFLAGS, uintptr(unsafe.Pointer(&req)))
		if errno != 0 {
			return struct{}{}, errno
		}

		req.val = (req.val | set) &^ clear

		_, _, errno = unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.SIOCSIFFLAGS, uintptr(unsafe.Pointer(&req)))
		if errno != 0 {
			return struct{}{}, errno
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("set flags on %q: %w", ifname, err)
	}
	return nil
}
