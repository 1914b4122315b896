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

// Package capture implements the blocking packet-read loop that couples a
// pcap capture to the parent protocol's command/response channel with
// backpressure (spec §4.5).
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// snapLen and readTimeout implement spec §4.3 OPEN_PCAP: "snap length >=
// 8192 bytes, promiscuous on, and a read timeout of ~1s".
const (
	snapLen     = 8192
	readTimeout = time.Second
)

// PacketSource is the narrow surface the Capture Loop needs from a live
// pcap capture. *pcap.Handle satisfies it directly: gopacket.PacketDataSource
// is exactly ReadPacketData, and *pcap.Handle.Breakloop wraps pcap_breakloop,
// which unblocks a ReadPacketData call already in flight on another
// goroutine (spec §5 cancellation).
type PacketSource interface {
	gopacket.PacketDataSource
	Close()
	Breakloop()
}

// OpenLive opens a blocking live capture on ifname per spec §4.3
// OPEN_PCAP, returning the handle and its datalink type.
func OpenLive(ifname string) (PacketSource, int, error) {
	handle, err := pcap.OpenLive(ifname, snapLen, true, readTimeout)
	if err != nil {
		return nil, 0, fmt.Errorf("open pcap capture on %q: %w", ifname, err)
	}
	return handle, int(handle.LinkType()), nil
}

// Opener abstracts OpenLive so the Interface Preparer can be tested
// without a real capture device.
type Opener func(ctx context.Context, ifname string) (PacketSource, int, error)

// DefaultOpener adapts OpenLive to the Opener signature used by the
// Interface Preparer.
func DefaultOpener(ctx context.Context, ifname string) (PacketSource, int, error) {
	return OpenLive(ifname)
}
