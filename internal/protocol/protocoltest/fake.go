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

// Package protocoltest provides an in-memory protocol.Protocol fake for
// exercising the Capture Loop, Interface Preparer, and Process Lifecycle
// without a real framework connection.
package protocoltest

import (
	"context"
	"sync"
	"time"

	"github.com/kismetwireless/capture-linux-wifi/internal/protocol"
	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
)

// DataFrame records one SendData call.
type DataFrame struct {
	Timestamp    time.Time
	DatalinkType int
	Length       int
	Data         []byte
}

// Message records one diagnostic.
type Message struct {
	Level wifichan.Level
	Text  string
}

// Fake is a scriptable protocol.Protocol. BufferFullFor packets will
// receive ErrBufferFull from SendData before succeeding, simulating the
// "buffer full" backpressure scenario from spec §8 scenario 6.
type Fake struct {
	mu sync.Mutex

	Messages []Message
	Errors   []string
	Data     []DataFrame

	ListResponses   []([]protocol.DeviceRecord)
	ProbeResponses  [][]string
	OpenResponses   []openResponse
	ConfigResponses []string

	HopShuffleSpacing int
	SpundDown         bool

	// BufferFullFor, if > 0, is decremented once per distinct packet
	// (identified by the Data payload) and causes the first SendData call
	// for that packet to fail with ErrBufferFull; the retried call
	// succeeds. Waits counts WaitRingBuffer invocations.
	BufferFullFor int
	pendingFull   map[string]bool
	Waits         int

	// SendFatalAfter, if > 0, causes the Nth SendData call to return
	// ErrSendFatal.
	SendFatalAfter int
	sendCalls      int
}

type openResponse struct {
	UUID, CaptureIface string
	Chanlist           []string
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{pendingFull: make(map[string]bool)}
}

var _ protocol.Protocol = (*Fake)(nil)

func (f *Fake) Loop(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *Fake) SendMessage(level wifichan.Level, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages = append(f.Messages, Message{Level: level, Text: msg})
}

func (f *Fake) SendError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors = append(f.Errors, msg)
}

func (f *Fake) SendData(ts time.Time, datalinkType, length int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendCalls++
	if f.SendFatalAfter > 0 && f.sendCalls >= f.SendFatalAfter {
		return protocol.ErrSendFatal
	}

	key := string(data)
	if f.BufferFullFor > 0 && !f.pendingFull[key] {
		f.pendingFull[key] = true
		f.BufferFullFor--
		return protocol.ErrBufferFull
	}
	delete(f.pendingFull, key)

	cp := make([]byte, len(data))
	copy(cp, data)
	f.Data = append(f.Data, DataFrame{Timestamp: ts, DatalinkType: datalinkType, Length: length, Data: cp})
	return nil
}

func (f *Fake) WaitRingBuffer(ctx context.Context) error {
	f.mu.Lock()
	f.Waits++
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (f *Fake) SendListResponse(seqno uint32, devices []protocol.DeviceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListResponses = append(f.ListResponses, devices)
	return nil
}

func (f *Fake) SendProbeResponse(seqno uint32, chanlist []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProbeResponses = append(f.ProbeResponses, chanlist)
	return nil
}

func (f *Fake) SendOpenResponse(seqno uint32, uuid, captureIface string, chanlist []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenResponses = append(f.OpenResponses, openResponse{UUID: uuid, CaptureIface: captureIface, Chanlist: chanlist})
	return nil
}

func (f *Fake) SendConfigResponse(seqno uint32, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConfigResponses = append(f.ConfigResponses, channel)
	return nil
}

func (f *Fake) Spindown(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SpundDown = true
}

func (f *Fake) SetHopShuffleSpacing(spacing int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HopShuffleSpacing = spacing
}
