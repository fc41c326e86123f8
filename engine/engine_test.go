package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aol/moloch/field"
	"github.com/aol/moloch/session"
)

func TestSeedSessionAppliesNodeClassExtraAndTransportTags(t *testing.T) {
	reg := field.NewRegistry()
	e := New(reg, Config{
		NodeName:  "capture1",
		NodeClass: "class:edge",
		ExtraTags: []string{"site:hq"},
	}, nil, nil)

	s := session.New(session.FiveTuple{Protocol: 6}, reg)
	e.SeedSession(s)

	require.True(t, s.Fields.HasTag("node:capture1"))
	require.True(t, s.Fields.HasTag("class:edge"))
	require.True(t, s.Fields.HasTag("site:hq"))
	require.True(t, s.Fields.HasTag("tcp"))
	require.False(t, s.Fields.HasTag("udp"))
}

func TestSeedSessionUDP(t *testing.T) {
	reg := field.NewRegistry()
	e := New(reg, Config{NodeName: "n"}, nil, nil)
	s := session.New(session.FiveTuple{Protocol: 17}, reg)
	e.SeedSession(s)
	require.True(t, s.Fields.HasTag("udp"))
}

func TestSniffMIMEUnknownReturnsEmpty(t *testing.T) {
	e := New(field.NewRegistry(), Config{}, nil, nil)
	require.Equal(t, "", e.SniffMIME([]byte("not a known magic header")))
}

func TestSniffMIMEPNG(t *testing.T) {
	e := New(field.NewRegistry(), Config{}, nil, nil)
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	require.Equal(t, "image/png", e.SniffMIME(png))
}
