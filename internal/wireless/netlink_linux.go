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

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"
	mwifi "github.com/mdlayher/wifi"
	"github.com/xlab/nl80211/nl80211"

	"github.com/kismetwireless/capture-linux-wifi/internal/wifichan"
)

// netlinkBackend implements Backend against the nl80211 generic-netlink
// family, the way the teacher's main() dials genetlink, resolves the
// "nl80211" family, and issues CommandSetChannel requests. Interface
// enumeration (HWAddr, Mode) goes through mdlayher/wifi's typed client,
// grounded on BryanCoxwell-wifi's Client, instead of hand-rolling
// CommandGetInterface parsing twice.
type netlinkBackend struct {
	conn   *genetlink.Conn
	family genetlink.Family
	wifi   *mwifi.Client
}

// NewNetlinkBackend dials generic netlink and resolves the nl80211 family.
// A non-nil error here means the caller should proceed without a netlink
// backend at all (spec §4.3: "the netlink backend is preferred whenever a
// netlink session can be established").
func NewNetlinkBackend() (Backend, error) {
	conn, err := genetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial generic netlink: %v", ErrPermission, err)
	}

	family, err := conn.GetFamily("nl80211")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: resolve nl80211 family: %v", ErrPermission, err)
	}

	wc, err := mwifi.New()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: open wifi client: %v", ErrPermission, err)
	}

	return &netlinkBackend{conn: conn, family: family, wifi: wc}, nil
}

// Close releases the underlying netlink sockets. The Interface Preparer
// calls this when it decides to mark UseNetlink = false, per spec §4.3.
func (b *netlinkBackend) Close() error {
	_ = b.wifi.Close()
	return b.conn.Close()
}

func (b *netlinkBackend) findInterface(ifname string) (*mwifi.Interface, error) {
	ifaces, err := b.wifi.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Name == ifname {
			return iface, nil
		}
	}
	return nil, ErrNoSuchInterface
}

func (b *netlinkBackend) HWAddr(ctx context.Context, ifname string) (net.HardwareAddr, error) {
	iface, err := b.findInterface(ifname)
	if err != nil {
		return nil, err
	}
	return iface.HardwareAddr, nil
}

func (b *netlinkBackend) Mode(ctx context.Context, ifname string) (Mode, error) {
	iface, err := b.findInterface(ifname)
	if err != nil {
		return ModeUnknown, err
	}
	switch iface.Type {
	case mwifi.InterfaceTypeMonitor:
		return ModeMonitor, nil
	case mwifi.InterfaceTypeStation:
		return ModeManaged, nil
	default:
		return ModeOther, nil
	}
}

func (b *netlinkBackend) SetMode(ctx context.Context, ifname string, mode Mode) error {
	// nl80211 can retype an interface via CommandSetInterface, but the
	// Interface Preparer only ever needs this on the ioctl path (mac80211
	// drivers are retyped by creating/destroying a monitor VIF instead).
	return ErrUnsupportedOp
}

func (b *netlinkBackend) ChannelList(ctx context.Context, ifname string) ([]string, error) {
	iface, err := b.findInterface(ifname)
	if err != nil {
		return nil, err
	}

	attrs, err := netlink.MarshalAttributes([]netlink.Attribute{
		{Type: nl80211.AttrWiphy, Data: nlenc.Uint32Bytes(uint32(iface.PHY))},
	})
	if err != nil {
		return nil, err
	}

	msgs, err := b.conn.Execute(genetlink.Message{
		Header: genetlink.Header{Command: nl80211.CommandGetWiphy, Version: b.family.Version},
		Data:   attrs,
	}, b.family.ID, netlink.Request|netlink.Dump)
	if err != nil {
		return nil, fmt.Errorf("get wiphy: %w", err)
	}

	seen := make(map[string]bool)
	var list []string
	for _, msg := range msgs {
		ads, err := netlink.NewAttributeDecoder(msg.Data)
		if err != nil {
			continue
		}
		for ads.Next() {
			if ads.Type() != nl80211.AttrWiphyBands {
				continue
			}
			for _, freq := range decodeFrequencies(ads.Bytes()) {
				if _, found := lookupDescriptor(freq); found {
					s := wifichan.Serialize(wifichan.Descriptor{ControlFreq: freq})
					if !seen[s] {
						seen[s] = true
						list = append(list, s)
					}
				}
			}
		}
	}
	return list, nil
}

// decodeFrequencies and lookupDescriptor are small helpers kept local to
// this file: the nested wiphy-bands/freqs netlink attribute structure is
// specific to this one call and not worth exposing as API.
func decodeFrequencies(nested []byte) []int {
	var out []int
	bandsDec, err := netlink.NewAttributeDecoder(nested)
	if err != nil {
		return nil
	}
	for bandsDec.Next() {
		freqsDec, err := netlink.NewAttributeDecoder(bandsDec.Bytes())
		if err != nil {
			continue
		}
		for freqsDec.Next() {
			if freqsDec.Type() != nl80211.BandAttrFreqs {
				continue
			}
			freqDec, err := netlink.NewAttributeDecoder(freqsDec.Bytes())
			if err != nil {
				continue
			}
			for freqDec.Next() {
				entryDec, err := netlink.NewAttributeDecoder(freqDec.Bytes())
				if err != nil {
					continue
				}
				for entryDec.Next() {
					if entryDec.Type() == nl80211.FrequencyAttrFreq {
						out = append(out, int(entryDec.Uint32()))
					}
				}
			}
		}
	}
	return out
}

func lookupDescriptor(freq int) (wifichan.Descriptor, bool) {
	if freq <= 0 {
		return wifichan.Descriptor{}, false
	}
	return wifichan.Descriptor{ControlFreq: freq}, true
}

func (b *netlinkBackend) SetChannel(ctx context.Context, ifname string, controlFreq int, chanType wifichan.ChanType) error {
	return b.setChannelAttrs(ctx, ifname, controlFreq, chanTypeToNL(chanType), nil)
}

func (b *netlinkBackend) SetFrequency(ctx context.Context, ifname string, controlFreq int, width wifichan.ChanWidth, c1, c2 int) error {
	nlWidth, ok := chanWidthToNL(width)
	if !ok {
		return fmt.Errorf("wireless: unsupported channel width %v", width)
	}

	extra := []netlink.Attribute{
		{Type: nl80211.AttrChannelWidth, Data: nlenc.Uint32Bytes(uint32(nlWidth))},
	}
	if c1 != 0 {
		extra = append(extra, netlink.Attribute{Type: nl80211.AttrCenterFreq1, Data: nlenc.Uint32Bytes(uint32(c1))})
	}
	if c2 != 0 {
		extra = append(extra, netlink.Attribute{Type: nl80211.AttrCenterFreq2, Data: nlenc.Uint32Bytes(uint32(c2))})
	}

	return b.setFrequencyAttrs(ctx, ifname, controlFreq, extra)
}

func (b *netlinkBackend) setChannelAttrs(ctx context.Context, ifname string, controlFreq int, nlChanType uint32, extra []netlink.Attribute) error {
	iface, err := b.findInterface(ifname)
	if err != nil {
		return err
	}

	attrs := []netlink.Attribute{
		{Type: nl80211.AttrIfindex, Data: nlenc.Uint32Bytes(uint32(iface.Index))},
		{Type: nl80211.AttrWiphyFreq, Data: nlenc.Uint32Bytes(uint32(controlFreq))},
		{Type: nl80211.AttrWiphyChannelType, Data: nlenc.Uint32Bytes(nlChanType)},
	}
	attrs = append(attrs, extra...)

	data, err := netlink.MarshalAttributes(attrs)
	if err != nil {
		return err
	}

	_, err = b.conn.Execute(genetlink.Message{
		Header: genetlink.Header{Command: nl80211.CommandSetChannel, Version: b.family.Version},
		Data:   data,
	}, b.family.ID, netlink.Request|netlink.Acknowledge)
	if err != nil {
		return fmt.Errorf("set channel %d: %w", controlFreq, err)
	}
	return nil
}

func (b *netlinkBackend) setFrequencyAttrs(ctx context.Context, ifname string, controlFreq int, extra []netlink.Attribute) error {
	iface, err := b.findInterface(ifname)
	if err != nil {
		return err
	}

	attrs := []netlink.Attribute{
		{Type: nl80211.AttrIfindex, Data: nlenc.Uint32Bytes(uint32(iface.Index))},
		{Type: nl80211.AttrWiphyFreq, Data: nlenc.Uint32Bytes(uint32(controlFreq))},
	}
	attrs = append(attrs, extra...)

	data, err := netlink.MarshalAttributes(attrs)
	if err != nil {
		return err
	}

	_, err = b.conn.Execute(genetlink.Message{
		Header: genetlink.Header{Command: nl80211.CommandSetChannel, Version: b.family.Version},
		Data:   data,
	}, b.family.ID, netlink.Request|netlink.Acknowledge)
	if err != nil {
		return fmt.Errorf("set frequency %d: %w", controlFreq, err)
	}
	return nil
}

func (b *netlinkBackend) CreateMonitorVIF(ctx context.Context, parent, child string, flags MonitorFlags) error {
	parentIface, err := b.findInterface(parent)
	if err != nil {
		return err
	}

	var nlFlags []netlink.Attribute
	addFlag := func(f uint32) {
		nlFlags = append(nlFlags, netlink.Attribute{Type: f})
	}
	if flags&MonitorControl != 0 {
		addFlag(nl80211.MntrFlagControl)
	}
	if flags&MonitorOtherBSS != 0 {
		addFlag(nl80211.MntrFlagOtherBss)
	}
	if flags&MonitorFCSFail != 0 {
		addFlag(nl80211.MntrFlagFcsfail)
	}
	if flags&MonitorPLCPFail != 0 {
		addFlag(nl80211.MntrFlagPlcpfail)
	}

	flagsData, err := netlink.MarshalAttributes(nlFlags)
	if err != nil {
		return err
	}

	attrs := []netlink.Attribute{
		{Type: nl80211.AttrWiphy, Data: nlenc.Uint32Bytes(uint32(parentIface.PHY))},
		{Type: nl80211.AttrIfname, Data: nlenc.Bytes(child)},
		{Type: nl80211.AttrIftype, Data: nlenc.Uint32Bytes(nl80211.IftypeMonitor)},
		{Type: nl80211.AttrMntrFlags, Data: flagsData},
	}

	data, err := netlink.MarshalAttributes(attrs)
	if err != nil {
		return err
	}

	_, err = b.conn.Execute(genetlink.Message{
		Header: genetlink.Header{Command: nl80211.CommandNewInterface, Version: b.family.Version},
		Data:   data,
	}, b.family.ID, netlink.Request|netlink.Acknowledge)
	if err != nil {
		return fmt.Errorf("create monitor vif %q on %q: %w", child, parent, err)
	}
	return nil
}

func (b *netlinkBackend) ClearRFKill(ctx context.Context, ifname string) error {
	return ErrUnsupportedOp
}

func (b *netlinkBackend) RFKillState(ctx context.Context, ifname string, kind RFKillKind) (bool, error) {
	return false, ErrUnsupportedOp
}

func (b *netlinkBackend) SetUp(ctx context.Context, ifname string) error {
	return ErrUnsupportedOp
}

func (b *netlinkBackend) SetDown(ctx context.Context, ifname string) error {
	return ErrUnsupportedOp
}

func (b *netlinkBackend) IsUp(ctx context.Context, ifname string) (bool, error) {
	return false, ErrUnsupportedOp
}

func chanTypeToNL(t wifichan.ChanType) uint32 {
	switch t {
	case wifichan.ChanTypeHT40Minus:
		return nl80211.ChanHt40minus
	case wifichan.ChanTypeHT40Plus:
		return nl80211.ChanHt40plus
	default:
		return nl80211.ChanHt20
	}
}

func chanWidthToNL(w wifichan.ChanWidth) (uint32, bool) {
	switch w {
	case wifichan.ChanWidth5MHz:
		return nl80211.ChanWidth5, true
	case wifichan.ChanWidth10MHz:
		return nl80211.ChanWidth10, true
	case wifichan.ChanWidth80MHz:
		return nl80211.ChanWidth80, true
	case wifichan.ChanWidth160MHz:
		return nl80211.ChanWidth160, true
	default:
		return nl80211.ChanWidth20Noht, true
	}
}
