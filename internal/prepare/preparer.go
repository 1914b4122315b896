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
	"bytes"
	"context"
	"fmt"

	"github.com/kismetwireless/capture-linux-wifi/internal/capture"
	"github.com/kismetwireless/capture-linux-wifi/internal/nmctl"
	"github.com/kismetwireless/capture-linux-wifi/internal/sourcedef"
	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
)

// ifnamsiz mirrors Linux's IFNAMSIZ (including the trailing NUL the kernel
// reserves), used by PICK_VIF_NAME's length check.
const ifnamsiz = 16

// maxKismonAttempts bounds the kismonN fallback scan (spec §4.3
// PICK_VIF_NAME: "exhausting 100 attempts is fatal").
const maxKismonAttempts = 100

// Deps collects the Interface Preparer's external collaborators so Prepare
// itself stays a pure state machine over fakes in tests (DESIGN NOTES §9).
type Deps struct {
	Adapter     *wireless.Adapter
	Interfaces  InterfaceEnumerator
	DialNM      func() (nmctl.Client, error)
	OpenCapture capture.Opener
}

// Result is everything Prepare hands back to the Process Lifecycle on
// success: the settled state and the capture source OPEN_PCAP produced.
type Result struct {
	State  *State
	UUID   string
	Source capture.PacketSource
}

// Prepare drives the Interface Preparer state machine (spec §4.3) to
// completion: HWADDR, RFKILL, NM_QUIESCE, MODE_PROBE, the VIF-or-legacy
// monitor-mode branch, BRING_UP, LIST_CHANS, and OPEN_PCAP. It returns the
// settled InterfaceState and capture source on READY, or the first fatal
// error encountered. Non-fatal steps contribute diagnostics to the
// returned slice regardless of overall outcome.
func Prepare(ctx context.Context, deps Deps, requested string, def sourcedef.Definition) (*Result, []wifichan.Diagnostic, error) {
	var diags []wifichan.Diagnostic
	info := func(format string, args ...any) {
		diags = append(diags, wifichan.Diagnostic{Level: wifichan.LevelInfo, Message: fmt.Sprintf(format, args...)})
	}

	adapter := deps.Adapter

	// HWADDR
	hwaddr, err := adapter.HWAddr(ctx, requested)
	if err != nil {
		return nil, diags, fmt.Errorf("get hardware address of %q: %w", requested, err)
	}
	uuid := deriveUUID(hwaddr)

	// RFKILL
	if hard, err := adapter.RFKillState(ctx, requested, wireless.RFKillHard); err == nil && hard {
		return nil, diags, fmt.Errorf("%w: interface %q is hard rfkilled; check the physical switch", ErrHardRFKilled, requested)
	}
	if soft, err := adapter.RFKillState(ctx, requested, wireless.RFKillSoft); err == nil && soft {
		if err := adapter.ClearRFKill(ctx, requested); err != nil {
			return nil, diags, fmt.Errorf("clear soft rfkill on %q: %w", requested, err)
		}
		info("removed soft rfkill and enabled interface %q", requested)
	}

	// NM_QUIESCE
	restoreNM := false
	if deps.DialNM != nil {
		if nm, err := deps.DialNM(); err != nil {
			info("could not reach a network-management daemon: %v", err)
		} else {
			func() {
				// The daemon connection must be released before MODE_PROBE
				// continues, or it keeps trying to deliver messages to us.
				defer nm.Close()
				managed, ok, err := nm.Managed(ctx, requested)
				if err != nil || !ok {
					if err != nil {
						info("could not query NetworkManager for %q: %v", requested, err)
					}
					return
				}
				if managed {
					if err := nm.SetManaged(ctx, requested, false); err != nil {
						info("could not ask NetworkManager to release %q: %v", requested, err)
						return
					}
					restoreNM = true
				}
			}()
		}
	}

	// MODE_PROBE
	mode, err := adapter.Mode(ctx, requested)
	if err != nil {
		mode = wireless.ModeUnknown
	}

	var (
		captureIfname string
		usedNetlink   bool
	)

	if mode == wireless.ModeMonitor {
		// ALREADY_MON
		captureIfname = requested
		usedNetlink = adapter.HasNetlink()
	} else {
		// NEED_MON
		captureIfname, err = pickVIFName(ctx, deps, requested, def)
		if err != nil {
			return nil, diags, err
		}

		if vifErr := adapter.CreateMonitorVIF(ctx, requested, captureIfname,
			wireless.MonitorControl|wireless.MonitorOtherBSS|monitorFlagsFromDef(def)); vifErr == nil {
			// VIF_OK
			usedNetlink = adapter.UsedNetlink()
		} else {
			// VIF_FAIL -> LEGACY_SETMODE, on the parent interface itself.
			adapter.DisableNetlink()
			captureIfname = requested
			if err := adapter.SetMode(ctx, requested, wireless.ModeMonitor); err != nil {
				return nil, diags, fmt.Errorf("%w: put %q into monitor mode: %w", ErrMonitorModeFailed, requested, err)
			}
		}
	}

	// BRING_UP
	if captureIfname != requested && !def.IgnorePrimary {
		if err := adapter.SetDown(ctx, requested); err != nil {
			return nil, diags, fmt.Errorf("bring parent interface %q down: %w", requested, err)
		}
	}
	if err := adapter.SetUp(ctx, captureIfname); err != nil {
		return nil, diags, fmt.Errorf("bring capture interface %q up: %w", captureIfname, err)
	}

	// LIST_CHANS
	chanlist, err := adapter.ChannelList(ctx, captureIfname)
	if err != nil || len(chanlist) == 0 {
		info("interface %q advertised 0 channels", captureIfname)
	}

	// OPEN_PCAP
	src, datalinkType, err := deps.OpenCapture(ctx, captureIfname)
	if err != nil {
		return nil, diags, fmt.Errorf("open capture on %q: %w", captureIfname, err)
	}

	st := &State{
		RequestedIfname: requested,
		CaptureIfname:   captureIfname,
		DatalinkType:    datalinkType,
		UseNetlink:      usedNetlink,
		RestoreNMOnExit: restoreNM,
		Adapter:         adapter,
		Source:          src,
	}

	return &Result{State: st, UUID: uuid, Source: src}, diags, nil
}

func monitorFlagsFromDef(def sourcedef.Definition) wireless.MonitorFlags {
	var f wireless.MonitorFlags
	if def.FCSFail {
		f |= wireless.MonitorFCSFail
	}
	if def.PLCPFail {
		f |= wireless.MonitorPLCPFail
	}
	return f
}

// pickVIFName implements PICK_VIF_NAME (spec §4.3): an explicit vif=
// override wins outright; otherwise scan for an existing monitor sibling
// sharing the parent's hwaddr; otherwise propose <parent>mon if it fits
// IFNAMSIZ, falling back to a kismonN scan when it doesn't.
func pickVIFName(ctx context.Context, deps Deps, parent string, def sourcedef.Definition) (string, error) {
	if def.VIF != "" {
		return def.VIF, nil
	}

	names, err := deps.Interfaces.InterfaceNames(ctx)
	if err != nil {
		return "", fmt.Errorf("enumerate interfaces: %w", err)
	}

	parentHW, err := deps.Adapter.HWAddr(ctx, parent)
	if err == nil {
		for _, name := range names {
			if name == parent {
				continue
			}
			hw, err := deps.Adapter.HWAddr(ctx, name)
			if err != nil || !bytes.Equal(hw, parentHW) {
				continue
			}
			mode, err := deps.Adapter.Mode(ctx, name)
			if err == nil && mode == wireless.ModeMonitor {
				return name, nil
			}
		}
	}

	exists := make(map[string]bool, len(names))
	for _, name := range names {
		exists[name] = true
	}

	if len(parent)+3 < ifnamsiz {
		candidate := parent + "mon"
		if exists[candidate] {
			mode, err := deps.Adapter.Mode(ctx, candidate)
			if err != nil || mode != wireless.ModeMonitor {
				return "", fmt.Errorf("%w: %q already exists", ErrVIFNameTaken, candidate)
			}
			return candidate, nil
		}
		return candidate, nil
	}

	for n := 0; n < maxKismonAttempts; n++ {
		candidate := fmt.Sprintf("kismon%d", n)
		if !exists[candidate] {
			return candidate, nil
		}
	}
	return "", ErrKismonExhausted
}
