// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package coop

import "code.hybscloud.com/atomix"

// Serial is a monotonically increasing task identifier.
// Every task launched into a scope is assigned the next serial value,
// process-wide, regardless of which scheduler owns it.
type Serial = uint32

// counter is the global monotonic counter for task serials.
var counter atomix.Uint32

// nextSerial returns the next monotonically increasing serial.
func nextSerial() Serial {
	return counter.Add(1)
}
