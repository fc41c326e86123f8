package dissect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

func encodeDNSName(name string) []byte {
	var out []byte
	for _, label := range splitDot(name) {
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	return append(out, 0)
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func buildDNSQuery(qdcount int, name string, qtype, qclass uint16) []byte {
	hdr := make([]byte, 12)
	hdr[4] = byte(qdcount >> 8)
	hdr[5] = byte(qdcount)
	body := encodeDNSName(name)
	body = append(body, byte(qtype>>8), byte(qtype), byte(qclass>>8), byte(qclass))
	return append(hdr, body...)
}

func TestDNSAQuery(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	msg := buildDNSQuery(1, "example.com", 1, 1)
	ProcessDNS(eng, s, msg)

	require.True(t, s.Fields.HasTag("dns:qtype:A"))
	require.True(t, s.Fields.HasTag("dns:qclass:IN"))
	require.True(t, s.Fields.HasTag("protocol:dns"))
	require.Contains(t, s.Fields.Strings(schema.DNSHost), "example.com")
}

func TestDNSRejectsBadQDCount(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	msg := buildDNSQuery(0, "example.com", 1, 1)
	ProcessDNS(eng, s, msg)
	require.False(t, s.Fields.HasTag("protocol:dns"))

	msg2 := buildDNSQuery(11, "example.com", 1, 1)
	ProcessDNS(eng, s, msg2)
	require.False(t, s.Fields.HasTag("protocol:dns"))
}

func TestDNSTooShortIgnored(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	ProcessDNS(eng, s, make([]byte, 10))
	require.False(t, s.Fields.HasTag("protocol:dns"))
}
