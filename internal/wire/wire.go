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

// Package wire is the one concrete implementation of protocol.Protocol
// this repository ships. The framing format of the real capture-framework
// protocol is explicitly out of scope (spec §1): this package supplies a
// minimal newline-delimited JSON framing over the process's inherited
// file descriptors, adequate to drive the core end to end, without
// claiming to reproduce any particular wire format.
package wire

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kismetwireless/capture-linux-wifi/internal/protocol"
	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
)

// ringBufferSize bounds the number of outstanding SendData calls; once
// exhausted, SendData returns protocol.ErrBufferFull until a write
// completes and releases its slot.
const ringBufferSize = 64

// Dispatcher is the command side of the wire: the four operations a
// command arriving on the inbound descriptor is routed to. lifecycle.Handler
// implements this.
type Dispatcher interface {
	HandleList(ctx context.Context, seqno uint32) error
	HandleProbe(ctx context.Context, seqno uint32, ifname string) error
	HandleOpen(ctx context.Context, seqno uint32, ifname, sourceDef string) error
	HandleChanControl(ctx context.Context, seqno uint32, channel string) error
}

type command struct {
	Type      string `json:"type"`
	Seqno     uint32 `json:"seqno"`
	Interface string `json:"interface,omitempty"`
	SourceDef string `json:"source_def,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

type frame struct {
	Type      string                  `json:"type"`
	Seqno     uint32                  `json:"seqno,omitempty"`
	Level     string                  `json:"level,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Devices   []protocol.DeviceRecord `json:"devices,omitempty"`
	Chanlist  []string                `json:"chanlist,omitempty"`
	UUID      string                  `json:"uuid,omitempty"`
	Interface string                  `json:"interface,omitempty"`
	Channel   string                  `json:"channel,omitempty"`
	Timestamp int64                   `json:"timestamp,omitempty"`
	Datalink  int                     `json:"datalink,omitempty"`
	Length    int                     `json:"length,omitempty"`
	Data      []byte                  `json:"data,omitempty"`
}

// Protocol implements protocol.Protocol over an io.Reader/io.Writer pair,
// meant to be the process's inherited --in-fd/--out-fd.
type Protocol struct {
	dispatcher Dispatcher

	in  *bufio.Scanner
	out *json.Encoder

	writeMu sync.Mutex
	tokens  chan struct{}

	spindownOnce sync.Once
	spundown     chan struct{}

	hopShuffleSpacing int
}

var _ protocol.Protocol = (*Protocol)(nil)

// New builds a Protocol. SetDispatcher must be called before Loop, since
// the dispatcher (the lifecycle Handler) is itself constructed with a
// reference to this Protocol.
func New(in io.Reader, out io.Writer) *Protocol {
	tokens := make(chan struct{}, ringBufferSize)
	for i := 0; i < ringBufferSize; i++ {
		tokens <- struct{}{}
	}
	return &Protocol{
		in:       bufio.NewScanner(in),
		out:      json.NewEncoder(out),
		tokens:   tokens,
		spundown: make(chan struct{}),
	}
}

// SetDispatcher wires the command handler. Must be called exactly once,
// before Loop.
func (p *Protocol) SetDispatcher(d Dispatcher) {
	p.dispatcher = d
}

func (p *Protocol) Loop(ctx context.Context) error {
	cmdCh := make(chan command)
	scanErrCh := make(chan error, 1)

	go func() {
		for p.in.Scan() {
			var c command
			if err := json.Unmarshal(p.in.Bytes(), &c); err != nil {
				continue
			}
			select {
			case cmdCh <- c:
			case <-ctx.Done():
				return
			}
		}
		scanErrCh <- p.in.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.spundown:
			return nil
		case err := <-scanErrCh:
			return err
		case c := <-cmdCh:
			p.dispatch(ctx, c)
		}
	}
}

func (p *Protocol) dispatch(ctx context.Context, c command) {
	var err error
	switch c.Type {
	case "list":
		err = p.dispatcher.HandleList(ctx, c.Seqno)
	case "probe":
		err = p.dispatcher.HandleProbe(ctx, c.Seqno, c.Interface)
	case "open":
		err = p.dispatcher.HandleOpen(ctx, c.Seqno, c.Interface, c.SourceDef)
	case "chancontrol":
		err = p.dispatcher.HandleChanControl(ctx, c.Seqno, c.Channel)
	default:
		err = fmt.Errorf("unrecognized command %q", c.Type)
	}
	if err != nil {
		p.SendError(fmt.Sprintf("%s command failed: %v", c.Type, err))
	}
}

func (p *Protocol) writeLocked(f frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.out.Encode(f)
}

func (p *Protocol) SendMessage(level wifichan.Level, msg string) {
	lvl := "INFO"
	if level == wifichan.LevelError {
		lvl = "ERROR"
	}
	p.writeLocked(frame{Type: "message", Level: lvl, Message: msg})
}

func (p *Protocol) SendError(msg string) {
	p.writeLocked(frame{Type: "message", Level: "ERROR", Message: msg})
}

func (p *Protocol) SendData(ts time.Time, datalinkType, length int, data []byte) error {
	select {
	case tok := <-p.tokens:
		defer func() { p.tokens <- tok }()
	default:
		return protocol.ErrBufferFull
	}

	f := frame{Type: "data", Timestamp: ts.UnixNano(), Datalink: datalinkType, Length: length, Data: data}
	if err := p.writeLocked(f); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrSendFatal, err)
	}
	return nil
}

func (p *Protocol) WaitRingBuffer(ctx context.Context) error {
	select {
	case tok := <-p.tokens:
		p.tokens <- tok
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Protocol) SendListResponse(seqno uint32, devices []protocol.DeviceRecord) error {
	return p.writeLocked(frame{Type: "list-response", Seqno: seqno, Devices: devices})
}

func (p *Protocol) SendProbeResponse(seqno uint32, chanlist []string) error {
	return p.writeLocked(frame{Type: "probe-response", Seqno: seqno, Chanlist: chanlist})
}

func (p *Protocol) SendOpenResponse(seqno uint32, uuid, captureIface string, chanlist []string) error {
	return p.writeLocked(frame{Type: "open-response", Seqno: seqno, UUID: uuid, Interface: captureIface, Chanlist: chanlist})
}

func (p *Protocol) SendConfigResponse(seqno uint32, channel string) error {
	return p.writeLocked(frame{Type: "config-response", Seqno: seqno, Channel: channel})
}

func (p *Protocol) Spindown(ctx context.Context) {
	p.spindownOnce.Do(func() { close(p.spundown) })
}

func (p *Protocol) SetHopShuffleSpacing(spacing int) {
	p.hopShuffleSpacing = spacing
}
