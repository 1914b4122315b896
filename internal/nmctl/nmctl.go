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

// Package nmctl talks to NetworkManager over D-Bus to quiesce and restore
// management of the interface the capture helper is about to take over.
// This replaces the original implementation's optional libnm/glib linkage
// (the #ifdef HAVE_LIBNM block in capture_linux_wifi.c) with a cgo-free
// D-Bus client, since libnm's own transport is D-Bus.
package nmctl

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	nmService       = "org.freedesktop.NetworkManager"
	nmObjectPath    = "/org/freedesktop/NetworkManager"
	nmIface         = "org.freedesktop.NetworkManager"
	nmDeviceIface   = "org.freedesktop.NetworkManager.Device"
	nmPropIface     = "org.freedesktop.DBus.Properties"
)

// Client is a narrow NetworkManager control surface: find the device for
// an interface name, and toggle whether NM manages it.
type Client interface {
	// Managed reports whether NetworkManager currently manages ifname. It
	// also reports ok=false if NetworkManager isn't reachable or doesn't
	// know about the interface, which callers must treat as
	// informational-only per spec §4.3 NM_QUIESCE.
	Managed(ctx context.Context, ifname string) (managed bool, ok bool, err error)

	// SetManaged requests NetworkManager start or stop managing ifname.
	SetManaged(ctx context.Context, ifname string, managed bool) error

	// Close releases the D-Bus connection. Spec §4.3 requires the
	// connection be released before the preparer continues past
	// NM_QUIESCE, mirroring the original's "we HAVE to unref the nmclient
	// and disconnect here or it keeps trying to deliver messages to us".
	Close() error
}

// dbusClient is the real Client, backed by the system bus.
type dbusClient struct {
	conn *dbus.Conn
}

// Dial connects to the system bus. It does not check that NetworkManager
// is running; an absent NetworkManager shows up as an error from Managed
// or SetManaged. Any error here is informational-only to the caller (spec
// §4.3: "never fatal — only informational on failure").
func Dial() (Client, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return &dbusClient{conn: conn}, nil
}

func (c *dbusClient) findDevicePath(ctx context.Context, ifname string) (dbus.ObjectPath, bool, error) {
	nm := c.conn.Object(nmService, dbus.ObjectPath(nmObjectPath))

	var devicePaths []dbus.ObjectPath
	if err := nm.CallWithContext(ctx, nmIface+".GetDevices", 0).Store(&devicePaths); err != nil {
		return "", false, fmt.Errorf("list NetworkManager devices: %w", err)
	}

	for _, path := range devicePaths {
		dev := c.conn.Object(nmService, path)
		variant, err := dev.GetProperty(nmDeviceIface + ".Interface")
		if err != nil {
			continue
		}
		name, ok := variant.Value().(string)
		if ok && name == ifname {
			return path, true, nil
		}
	}
	return "", false, nil
}

func (c *dbusClient) Managed(ctx context.Context, ifname string) (bool, bool, error) {
	path, found, err := c.findDevicePath(ctx, ifname)
	if err != nil || !found {
		return false, false, err
	}

	dev := c.conn.Object(nmService, path)
	variant, err := dev.GetProperty(nmDeviceIface + ".Managed")
	if err != nil {
		return false, false, fmt.Errorf("read Managed property: %w", err)
	}
	managed, _ := variant.Value().(bool)
	return managed, true, nil
}

func (c *dbusClient) SetManaged(ctx context.Context, ifname string, managed bool) error {
	path, found, err := c.findDevicePath(ctx, ifname)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("nmctl: NetworkManager has no device for %q", ifname)
	}

	dev := c.conn.Object(nmService, path)
	call := dev.CallWithContext(ctx, nmPropIface+".Set", 0,
		nmDeviceIface, "Managed", dbus.MakeVariant(managed))
	if call.Err != nil {
		return fmt.Errorf("set Managed=%v on %q: %w", managed, ifname, call.Err)
	}
	return nil
}

func (c *dbusClient) Close() error {
	return c.conn.Close()
}
