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

// Package prepare implements the Interface Preparer state machine and the
// Channel Controller: together they bring a requested Wi-Fi interface into
// a ready-to-capture monitor-mode state and apply channel changes to it
// with a hop-tolerant failure policy (spec §4.3, §4.4).
package prepare

import (
	"sync/atomic"

	"github.com/kismetwireless/capture-linux-wifi/internal/capture"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
)

// State is the per-process InterfaceState record (spec §3). It is written
// by the main goroutine during Prepare and read by the capture goroutine
// thereafter; seqChannelFailure is the one field the main goroutine keeps
// writing after Prepare (from the Channel Controller) while another
// goroutine may read it, hence the atomic cell (DESIGN NOTES §9).
type State struct {
	RequestedIfname string
	CaptureIfname   string
	DatalinkType    int
	UseNetlink      bool
	RestoreNMOnExit bool

	seqChannelFailure atomic.Uint32

	// Adapter is the wireless control surface bound to this state's
	// interfaces. It is set once during Prepare and never reassigned
	// afterward.
	Adapter *wireless.Adapter

	// Source is the live capture the capture goroutine is blocked reading
	// from. The Channel Controller calls Source.Breakloop on a terminal
	// hop-context failure to unblock that read from the main goroutine
	// (spec §5 cancellation).
	Source capture.PacketSource
}

// SeqChannelFailureCount returns the current consecutive hop-context
// channel-set failure count.
func (s *State) SeqChannelFailureCount() uint32 {
	return s.seqChannelFailure.Load()
}

// CreatedVIF reports whether a monitor virtual interface distinct from the
// requested interface was created (spec §8: "capture_ifname equals
// requested_ifname iff no monitor virtual interface was created").
func (s *State) CreatedVIF() bool {
	return s.CaptureIfname != s.RequestedIfname
}
