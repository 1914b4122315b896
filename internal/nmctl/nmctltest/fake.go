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

// Package nmctltest provides an in-memory nmctl.Client fake.
package nmctltest

import (
	"context"

	"github.com/kismetwireless/capture-linux-wifi/internal/nmctl"
)

// Fake simulates a NetworkManager that manages a fixed set of interfaces.
// Tests simulate "NetworkManager doesn't know about this device" by simply
// not including an interface in ManagedIfaces.
type Fake struct {
	ManagedIfaces map[string]bool
	Closed        bool

	SetManagedCalls []SetManagedCall
}

// SetManagedCall records one SetManaged invocation.
type SetManagedCall struct {
	Ifname  string
	Managed bool
}

var _ nmctl.Client = (*Fake)(nil)

// New returns a Fake with the given interfaces reported as managed.
func New(managed ...string) *Fake {
	f := &Fake{ManagedIfaces: make(map[string]bool)}
	for _, m := range managed {
		f.ManagedIfaces[m] = true
	}
	return f
}

func (f *Fake) Managed(ctx context.Context, ifname string) (bool, bool, error) {
	managed, known := f.ManagedIfaces[ifname]
	return managed, known, nil
}

func (f *Fake) SetManaged(ctx context.Context, ifname string, managed bool) error {
	f.SetManagedCalls = append(f.SetManagedCalls, SetManagedCall{Ifname: ifname, Managed: managed})
	f.ManagedIfaces[ifname] = managed
	return nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
