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

import "context"

// InterfaceEnumerator lists the names of interfaces currently present on
// the host. PICK_VIF_NAME needs this twice: to scan for an already-monitor
// sibling sharing the parent's hwaddr, and to test candidate VIF names for
// collisions. Abstracted the same way wireless.Backend is, so the
// Interface Preparer can be driven by a fake in tests (DESIGN NOTES §9).
type InterfaceEnumerator interface {
	InterfaceNames(ctx context.Context) ([]string, error)
}
