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

package prepare

import (
	"context"
	"net"
)

// netInterfaceEnumerator lists interfaces via the standard library, which
// on Linux asks the kernel for them with an rtnetlink link dump.
type netInterfaceEnumerator struct{}

// NewInterfaceEnumerator returns the production InterfaceEnumerator.
func NewInterfaceEnumerator() InterfaceEnumerator {
	return netInterfaceEnumerator{}
}

func (netInterfaceEnumerator) InterfaceNames(ctx context.Context) ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}
	return names, nil
}
