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
	"fmt"

	"github.com/kismetwireless/capture-linux-wifi/internal/protocol"
	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
)

// ChannelController applies channel descriptors to a prepared interface
// and enforces the hop-tolerant failure policy of spec §4.4. It has no
// state of its own beyond the Protocol it reports through; the failure
// counter it mutates lives on the State passed to each call.
type ChannelController struct {
	Proto protocol.Protocol
}

// SetChannel applies d to st.CaptureIfname. seqno is zero when the call
// originates from the hopping timer and nonzero for an explicit configure
// command; the two contexts have different failure tolerance (spec §4.4).
//
// SetChannel must only ever be called from the main goroutine: it mutates
// st.seqChannelFailure, the one State field the capture goroutine never
// touches, so this single-writer discipline is what lets the rest of
// State go unsynchronized (DESIGN NOTES §9).
func (c *ChannelController) SetChannel(ctx context.Context, st *State, d wifichan.Descriptor, seqno uint32) error {
	err := c.apply(ctx, st, d)

	if err == nil {
		st.seqChannelFailure.Store(0)
		if seqno != 0 {
			c.Proto.SendConfigResponse(seqno, wifichan.Serialize(d))
		}
		return nil
	}

	if seqno == 0 {
		count := st.seqChannelFailure.Add(1)
		if count < 10 {
			c.Proto.SendMessage(wifichan.LevelError, fmt.Sprintf("unable to set channel: %v", err))
			return nil
		}
		c.Proto.SendError(fmt.Sprintf("unable to set channel after %d consecutive attempts, giving up: %v", count, err))

		// Terminal: unblock the capture goroutine's in-flight read and
		// spin the protocol down, rather than leaving the command handler
		// as the only thing that knows this interface is dead (spec §4.4,
		// §8 scenario 5 "terminal error, capture thread unwinds").
		if st.Source != nil {
			st.Source.Breakloop()
		}
		c.Proto.Spindown(ctx)

		return fmt.Errorf("%w: %d consecutive failures", ErrTransientChannelSet, count)
	}

	c.Proto.SendError(fmt.Sprintf("unable to set channel: %v", err))
	return fmt.Errorf("set channel: %w", err)
}

func (c *ChannelController) apply(ctx context.Context, st *State, d wifichan.Descriptor) error {
	if d.ChanWidth != wifichan.ChanWidthDefault || d.CenterFreq1 != 0 || d.CenterFreq2 != 0 {
		return st.Adapter.SetFrequency(ctx, st.CaptureIfname, d.ControlFreq, d.ChanWidth, d.CenterFreq1, d.CenterFreq2)
	}
	return st.Adapter.SetChannel(ctx, st.CaptureIfname, d.ControlFreq, d.ChanType)
}
