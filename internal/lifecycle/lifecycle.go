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

// Package lifecycle implements the Process Lifecycle component (spec §4.6):
// it holds the settled InterfaceState as explicit userdata (never a
// package global), exposes the four command handlers a real protocol
// implementation dispatches parent commands into, starts the capture
// goroutine once open succeeds, and drives the NetworkManager-restore
// teardown.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/kismetwireless/capture-linux-wifi/internal/capture"
	"github.com/kismetwireless/capture-linux-wifi/internal/nmctl"
	"github.com/kismetwireless/capture-linux-wifi/internal/prepare"
	"github.com/kismetwireless/capture-linux-wifi/internal/protocol"
	"github.com/kismetwireless/capture-linux-wifi/internal/sourcedef"
	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
)

// defaultHopShuffleSpacing is the spec §4.6 default; cmd/captureLinuxWifi
// may override it via configuration before a real event loop starts.
const defaultHopShuffleSpacing = 4

// Handler is the userdata the Process Lifecycle attaches to the parent
// protocol: one Handler per process, holding the settled InterfaceState
// (nil until HandleOpen succeeds) and the collaborators needed to build
// one.
type Handler struct {
	proto  protocol.Protocol
	ctrl   prepare.ChannelController
	deps   prepare.Deps
	dialNM func() (nmctl.Client, error)

	mu     sync.Mutex
	result *prepare.Result
}

// NewHandler builds a Handler. dialNM may be nil when NetworkManager
// integration is unavailable; Shutdown then silently skips the restore.
func NewHandler(proto protocol.Protocol, deps prepare.Deps, dialNM func() (nmctl.Client, error)) *Handler {
	return &Handler{
		proto:  proto,
		ctrl:   prepare.ChannelController{Proto: proto},
		deps:   deps,
		dialNM: dialNM,
	}
}

// Result reports the settled InterfaceState once HandleOpen has
// succeeded, or nil before then.
func (h *Handler) Result() *prepare.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// HandleList answers a list command with one DeviceRecord per interface
// that responds to a mode query, i.e. every wireless-capable interface
// the host currently has (DESIGN NOTES §9: a real record per device, not
// a placeholder sized for one).
func (h *Handler) HandleList(ctx context.Context, seqno uint32) error {
	names, err := h.deps.Interfaces.InterfaceNames(ctx)
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}

	var devices []protocol.DeviceRecord
	for _, name := range names {
		if _, err := h.deps.Adapter.Mode(ctx, name); err != nil {
			continue
		}
		devices = append(devices, protocol.DeviceRecord{Interface: name})
	}

	return h.proto.SendListResponse(seqno, devices)
}

// HandleProbe answers a probe command with the channel list a named
// interface advertises, without preparing it for capture.
func (h *Handler) HandleProbe(ctx context.Context, seqno uint32, ifname string) error {
	chanlist, err := h.deps.Adapter.ChannelList(ctx, ifname)
	if err != nil {
		h.proto.SendError(fmt.Sprintf("unable to probe %q: %v", ifname, err))
		return err
	}
	return h.proto.SendProbeResponse(seqno, chanlist)
}

// HandleOpen runs the Interface Preparer against the requested interface
// and source definition, answers the open command on success, and starts
// the capture goroutine. The capture goroutine is never started on a
// failed open, and open is never re-entered once it has started one
// (spec §5 "open is never re-entered").
func (h *Handler) HandleOpen(ctx context.Context, seqno uint32, ifname, rawSourceDef string) error {
	if h.Result() != nil {
		err := fmt.Errorf("lifecycle: open requested after a capture was already opened")
		h.proto.SendError(err.Error())
		return err
	}

	def := sourcedef.Parse(rawSourceDef)

	result, diags, err := prepare.Prepare(ctx, h.deps, ifname, def)
	for _, d := range diags {
		h.proto.SendMessage(d.Level, d.Message)
	}
	if err != nil {
		h.proto.SendError(fmt.Sprintf("unable to open %q: %v", ifname, err))
		return err
	}

	h.mu.Lock()
	h.result = result
	h.mu.Unlock()

	h.proto.SetHopShuffleSpacing(defaultHopShuffleSpacing)

	chanlist, _ := h.deps.Adapter.ChannelList(ctx, result.State.CaptureIfname)
	if err := h.proto.SendOpenResponse(seqno, result.UUID, result.State.CaptureIfname, chanlist); err != nil {
		return fmt.Errorf("send open response: %w", err)
	}

	go capture.Run(ctx, result.Source, result.State.DatalinkType, result.State.CaptureIfname, result.State.Adapter, h.proto)

	return nil
}

// HandleChanControl applies seqno=0 hop ticks and explicit configure
// commands alike through the Channel Controller (spec §4.4).
func (h *Handler) HandleChanControl(ctx context.Context, seqno uint32, channel string) error {
	result := h.Result()
	if result == nil {
		return fmt.Errorf("lifecycle: channel control requested before open completed")
	}

	d, diags, err := wifichan.Parse(channel)
	for _, diag := range diags {
		h.proto.SendMessage(diag.Level, diag.Message)
	}
	if err != nil {
		h.proto.SendError(fmt.Sprintf("unable to parse channel %q: %v", channel, err))
		return err
	}

	return h.ctrl.SetChannel(ctx, result.State, d, seqno)
}

// Shutdown restores NetworkManager management of the requested interface
// if the Interface Preparer took it over, then spins down the protocol.
// The caller is responsible for parking the process indefinitely
// afterward (spec §4.6, §6 "part of the wire contract") — that belongs to
// cmd/captureLinuxWifi, not this package, since it's a process-lifetime
// decision rather than a lifecycle-state one.
func (h *Handler) Shutdown(ctx context.Context) {
	result := h.Result()

	if result != nil && result.State.RestoreNMOnExit && h.dialNM != nil {
		if nm, err := h.dialNM(); err != nil {
			h.proto.SendMessage(wifichan.LevelInfo, fmt.Sprintf("could not reach NetworkManager to restore %q: %v", result.State.RequestedIfname, err))
		} else {
			if err := nm.SetManaged(ctx, result.State.RequestedIfname, true); err != nil {
				h.proto.SendMessage(wifichan.LevelError, fmt.Sprintf("unable to restore NetworkManager management of %q: %v", result.State.RequestedIfname, err))
			}
			nm.Close()
		}
	}

	h.proto.Spindown(ctx)
}
