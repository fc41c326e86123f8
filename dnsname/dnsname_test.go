package dnsname

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeName(labels ...string) []byte {
	var out []byte
	for _, l := range labels {
		out = append(out, byte(len(l)))
		out = append(out, l...)
	}
	out = append(out, 0)
	return out
}

func TestDecodeSimpleName(t *testing.T) {
	msg := encodeName("example", "com")
	name, consumed, ok := Decode(msg, 0)
	require.True(t, ok)
	require.Equal(t, "example.com", name)
	require.Equal(t, len(msg), consumed)
}

func TestDecodeCompressionPointer(t *testing.T) {
	// message: [0]="example"+"com"+0  then at offset 13 a name that
	// points back to offset 0.
	base := encodeName("example", "com")
	ptrOffset := len(base)
	msg := append(append([]byte{}, base...), 0xc0, 0x00)
	name, consumed, ok := Decode(msg, ptrOffset)
	require.True(t, ok)
	require.Equal(t, "example.com", name)
	require.Equal(t, 2, consumed)
}

func TestDecodePointerLoopTerminates(t *testing.T) {
	// offset 0 points to itself forever.
	msg := []byte{0xc0, 0x00}
	_, _, ok := Decode(msg, 0)
	require.False(t, ok)
}

func TestDecodePointerChainWithinDepth(t *testing.T) {
	// Chain of two pointers, within the depth-6 cap, ending in a real
	// label.
	msg := []byte{
		's', 0, // offset 0: won't be used as start, just padding label "s\0" decoded target
	}
	_ = msg
	// Build: offset 0 = "end" label + terminator; offset 5 points back to 0,
	// offset 7 points back to 5.
	end := encodeName("end")
	doc := append([]byte{}, end...) // offset 0..4 "end\0"
	p1 := len(doc)
	doc = append(doc, 0xc0, 0x00) // offset 5: pointer -> 0
	p2 := len(doc)
	doc = append(doc, 0xc0, byte(p1)) // pointer -> p1
	name, _, ok := Decode(doc, p2)
	require.True(t, ok)
	require.Equal(t, "end", name)
}

func TestSanitizeNonPrintable(t *testing.T) {
	msg := encodeName(string([]byte{0x01}))
	name, _, ok := Decode(msg, 0)
	require.True(t, ok)
	require.Equal(t, "^A", name)
}

func TestSanitizeNonASCII(t *testing.T) {
	msg := encodeName(string([]byte{0xe1}))
	name, _, ok := Decode(msg, 0)
	require.True(t, ok)
	require.Equal(t, "M-a", name)
}
