package field

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	fHost ID = iota
	fTags
	fCount
	fXff
)

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Define(fHost, "host", TypeStringHash, 0)
	r.Define(fCount, "count", TypeInt, FlagCount)
	r.Define(fXff, "xff", TypeIPHash, 0)
	return r
}

func TestAddStringHashDedup(t *testing.T) {
	reg := newTestRegistry()
	s := NewStore(reg)

	d1 := s.AddString(fHost, "example.com", true)
	d2 := s.AddString(fHost, "example.com", true)
	d3 := s.AddString(fHost, "other.com", true)

	require.False(t, d1)
	require.True(t, d2)
	require.False(t, d3)
	require.ElementsMatch(t, []string{"example.com", "other.com"}, s.Strings(fHost))
}

func TestAddIntSingleSlot(t *testing.T) {
	reg := newTestRegistry()
	s := NewStore(reg)
	s.AddInt(fCount, 5)
	s.AddInt(fCount, 7)
	v, ok := s.Int(fCount)
	require.True(t, ok)
	require.EqualValues(t, 7, v)
}

func TestAddIPHashDedupAndRejectsIPv6(t *testing.T) {
	reg := newTestRegistry()
	s := NewStore(reg)

	require.True(t, s.AddIPHash(fXff, net.ParseIP("1.2.3.4")))
	require.True(t, s.AddIPHash(fXff, net.ParseIP("1.2.3.4"))) // dedup: seen again
	require.True(t, s.AddIPHash(fXff, net.ParseIP("5.6.7.8")))
	require.False(t, s.AddIPHash(fXff, net.ParseIP("::1")))

	require.Len(t, s.IPs(fXff), 2)
}

func TestAddTagAndHasTag(t *testing.T) {
	reg := newTestRegistry()
	s := NewStore(reg)
	s.AddTag("protocol:http")
	require.True(t, s.HasTag("protocol:http"))
	require.False(t, s.HasTag("protocol:dns"))
	require.Equal(t, []string{"protocol:http"}, s.Tags())
}

func TestDefineTypeChangePanics(t *testing.T) {
	reg := NewRegistry()
	reg.Define(fHost, "host", TypeString, 0)
	require.Panics(t, func() {
		reg.Define(fHost, "host", TypeInt, 0)
	})
}

func TestStableHashDeterministic(t *testing.T) {
	h1 := StableHash([]byte("serial"), []byte("issuer"), []byte("subject"))
	h2 := StableHash([]byte("serial"), []byte("issuer"), []byte("subject"))
	h3 := StableHash([]byte("serial2"), []byte("issuer"), []byte("subject"))
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
}
