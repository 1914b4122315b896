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

// Package protocol defines the narrow seam between the core and the
// out-of-scope capture-framework collaborator (spec §1): the multiplexed
// command/response protocol running over the parent's inherited file
// descriptors. Only the interface the core consumes is specified here; the
// wire format itself belongs to the capture-framework.
package protocol

import (
	"context"
	"errors"
	"time"

	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
)

// ErrBufferFull is returned by SendData when the framework's outbound
// ring buffer is full; callers must call WaitRingBuffer and retry the same
// packet (spec §4.5).
var ErrBufferFull = errors.New("protocol: ring buffer full")

// ErrSendFatal is returned by SendData when the send itself failed fatally
// (spec §7, "Protocol send error" — immediate shutdown).
var ErrSendFatal = errors.New("protocol: fatal send error")

// DeviceRecord is one entry in a list-response (spec §9's "allocate a real
// record per discovered device").
type DeviceRecord struct {
	Interface string
	Flags     string
}

// Protocol is the seam the core drives; a real implementation multiplexes
// this over --in-fd/--out-fd using the framing the capture-framework
// defines (out of scope here).
type Protocol interface {
	// Loop runs the framework's command event loop until ctx is canceled
	// or a fatal protocol error occurs.
	Loop(ctx context.Context) error

	// SendMessage emits an unsolicited INFO or ERROR diagnostic.
	SendMessage(level wifichan.Level, msg string)

	// SendError emits an ERROR diagnostic reporting a failure. It does not
	// spin the event loop down; callers that end the session also call
	// Spindown.
	SendError(msg string)

	// SendData forwards one captured frame. Returns ErrBufferFull when the
	// caller should retry after WaitRingBuffer, ErrSendFatal when the send
	// failed unrecoverably, or nil on success.
	SendData(ts time.Time, datalinkType, length int, data []byte) error

	// WaitRingBuffer blocks until the main loop has drained enough of the
	// outbound ring buffer to accept another SendData call, or ctx is
	// canceled.
	WaitRingBuffer(ctx context.Context) error

	// SendListResponse answers a list command.
	SendListResponse(seqno uint32, devices []DeviceRecord) error

	// SendProbeResponse answers a probe command.
	SendProbeResponse(seqno uint32, chanlist []string) error

	// SendOpenResponse answers an open command.
	SendOpenResponse(seqno uint32, uuid, captureIface string, chanlist []string) error

	// SendConfigResponse answers an explicit configure-channel command
	// with the serialized channel that was applied.
	SendConfigResponse(seqno uint32, channel string) error

	// Spindown initiates an orderly shutdown of the event loop.
	Spindown(ctx context.Context)

	// SetHopShuffleSpacing configures the framework's channel-hopping
	// timer shuffle parameter (spec §4.6).
	SetHopShuffleSpacing(spacing int)
}
