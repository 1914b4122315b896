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

package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kismetwireless/capture-linux-wifi/internal/protocol"
	"github.com/kismetwireless/capture-linux-wifi/internal/wireless"
)

// ErrReadLoop wraps a fatal error that terminated the blocking read loop
// (spec §7, "Capture-library error").
var ErrReadLoop = errors.New("capture: read loop terminated")

// Run drives the blocking packet read loop documented in spec §4.5: each
// packet is forwarded via proto.SendData; a "buffer full" response
// suspends on proto.WaitRingBuffer and retries the same packet, so packets
// are never dropped; a fatal send error breaks the loop and initiates
// shutdown. After the loop exits it probes the interface's admin flags and
// emits a second, more specific diagnostic if it's no longer up.
//
// Run is meant to be the entire body of the dedicated capture goroutine
// (spec §5): it only reads datalinkType and src, both immutable after
// Prepare succeeds, and never touches channel-control state.
func Run(ctx context.Context, src PacketSource, datalinkType int, captureIfname string, adapter *wireless.Adapter, proto protocol.Protocol) error {
	defer src.Close()

	// ReadPacketData blocks in a cgo call that, once entered, can't see
	// ctx.Done() on its own; Breakloop is what actually unblocks it, from
	// whichever goroutine notices the cancellation first.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			src.Breakloop()
		case <-watcherDone:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, ci, err := src.ReadPacketData()
		if err != nil {
			return afterReadLoopExit(ctx, captureIfname, adapter, proto, err)
		}

		if sendErr := sendWithBackpressure(ctx, proto, ci.Timestamp, datalinkType, ci.CaptureLength, data); sendErr != nil {
			proto.SendError(fmt.Sprintf("unable to send DATA frame: %v", sendErr))
			return afterReadLoopExit(ctx, captureIfname, adapter, proto, sendErr)
		}
	}
}

// sendWithBackpressure implements the three-way discipline from spec §4.5:
// "ok" continues, "buffer full" waits and retries the same packet until a
// send succeeds or fails fatally, "error" propagates.
func sendWithBackpressure(ctx context.Context, proto protocol.Protocol, ts time.Time, datalinkType, length int, data []byte) error {
	for {
		err := proto.SendData(ts, datalinkType, length, data)
		if err == nil {
			return nil
		}
		if errors.Is(err, protocol.ErrBufferFull) {
			if waitErr := proto.WaitRingBuffer(ctx); waitErr != nil {
				return waitErr
			}
			continue
		}
		return err
	}
}

func afterReadLoopExit(ctx context.Context, captureIfname string, adapter *wireless.Adapter, proto protocol.Protocol, cause error) error {
	proto.SendError(fmt.Sprintf("Interface '%s' closed: %v", captureIfname, cause))

	up, err := adapter.IsUp(ctx, captureIfname)
	if err != nil || !up {
		proto.SendError(fmt.Sprintf(
			"Interface '%s' no longer appears to be up; this can happen when it is "+
				"unplugged, or another service like DHCP or NetworkManager has taken over "+
				"and shut it down on us.", captureIfname))
	}

	proto.Spindown(ctx)

	return fmt.Errorf("%w: %v", ErrReadLoop, cause)
}
