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
	"fmt"
	"hash/adler32"
	"net"
)

// deriveUUID produces the spoofed-but-consistent capture UUID from the
// adler32 checksum of a fixed salt string and the capture interface's
// EUI-48, matching the original implementation's
// "%08X-0000-0000-0000-%02X%02X%02X%02X%02X%02X" format exactly so that
// UUIDs are stable across a reinstall of this helper alongside the
// original.
func deriveUUID(hwaddr net.HardwareAddr) string {
	sum := adler32.Checksum([]byte("kismet_cap_linux_wifi"))

	var mac [6]byte
	copy(mac[:], hwaddr)

	return fmt.Sprintf("%08X-0000-0000-0000-%02X%02X%02X%02X%02X%02X",
		sum, mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}
