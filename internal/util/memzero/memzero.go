// Package memzero scrubs secret material from byte slices once it is
// no longer needed.
package memzero

import "crypto/subtle"

// Zero fills b with zero bytes. The constant-time copy keeps the
// write from being elided.
func Zero(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
}
