package memzero

import "testing"

func TestZero(t *testing.T) {
	b := []byte{0xde, 0xad, 0xbe, 0xef}
	Zero(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not cleared: %#x", i, v)
		}
	}
}

func TestZeroEmpty(t *testing.T) {
	Zero(nil)
	Zero([]byte{})
}
