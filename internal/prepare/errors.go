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

import "errors"

var (
	// ErrHardRFKilled is fatal to open (spec §4.3 RFKILL, §7 "Hardware
	// state error").
	ErrHardRFKilled = errors.New("prepare: interface is hard rfkilled")

	// ErrNoChannelList names the empty-channel-list condition. Prepare does
	// not return it: an empty list at LIST_CHANS is not fatal and is
	// reported only as an informational "0 channels" diagnostic.
	ErrNoChannelList = errors.New("prepare: interface advertised no channels")

	// ErrVIFNameTaken is returned by PICK_VIF_NAME when the derived
	// <parent>mon name already exists but isn't in monitor mode.
	ErrVIFNameTaken = errors.New("prepare: derived monitor interface name exists but is not in monitor mode")

	// ErrKismonExhausted is returned when all 100 kismonN names are taken.
	ErrKismonExhausted = errors.New("prepare: exhausted kismonN interface names")

	// ErrMonitorModeFailed is returned when neither a monitor VIF nor a
	// legacy mode switch could put the interface in monitor mode.
	ErrMonitorModeFailed = errors.New("prepare: could not put interface into monitor mode")

	// ErrTransientChannelSet marks a driver-transient channel-set failure
	// (spec §7, "Driver-transient error").
	ErrTransientChannelSet = errors.New("prepare: transient channel-set failure")
)
