package dissect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/field"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

func newTestEngine() *engine.Engine {
	return engine.New(schema.NewDefaultRegistry(), engine.Config{NodeName: "n"}, nil, nil)
}

func TestHTTPGetHostAndURL(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	ProcessHTTP(eng, s, session.Client, []byte("GET /a HTTP/1.1\r\nHost: X.com\r\n\r\n"))

	require.Equal(t, []string{"x.com"}, s.Fields.Strings(schema.Host))
	require.Equal(t, []string{"//x.com/a"}, s.Fields.Strings(schema.URLs))
	require.True(t, s.Fields.HasTag("protocol:http"))
	require.True(t, s.Fields.HasTag("http:method:GET"))
	require.Equal(t, []string{"1.1"}, s.Fields.Strings(schema.HTTPRequestVersion))
}

func TestHTTPSplitHostMismatch(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	ProcessHTTP(eng, s, session.Client, []byte("GET http://a.com/x HTTP/1.1\r\nHost: b.com\r\n\r\n"))

	require.Equal(t, []string{"//b.com;http://a.com/x"}, s.Fields.Strings(schema.URLs))
}

func TestHTTPArbitrarySplitMatchesSingleShot(t *testing.T) {
	raw := []byte("GET /a?x=1 HTTP/1.1\r\nHost: x.com\r\nContent-Length: 5\r\n\r\nhello")

	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	whole := session.New(session.FiveTuple{}, reg)
	ProcessHTTP(eng, whole, session.Client, raw)

	split := session.New(session.FiveTuple{}, reg)
	for i := range raw {
		ProcessHTTP(eng, split, session.Client, raw[i:i+1])
	}

	require.Equal(t, whole.Fields.Strings(schema.URLs), split.Fields.Strings(schema.URLs))
	require.Equal(t, whole.Fields.Strings(schema.Host), split.Fields.Strings(schema.Host))
	require.Equal(t, whole.Fields.Strings(schema.HTTPBodyMD5), split.Fields.Strings(schema.HTTPBodyMD5))
	require.NotEmpty(t, whole.Fields.Strings(schema.HTTPBodyMD5))
}

func TestHTTPResponseStatusAndVersion(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	ProcessHTTP(eng, s, session.Server, []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"))

	require.True(t, s.Fields.HasTag("http:statuscode:404"))
	require.Equal(t, []string{"1.1"}, s.Fields.Strings(schema.HTTPResponseVersion))
}

func TestHTTPXFFBadEntryTagged(t *testing.T) {
	eng := newTestEngine()
	eng.Config.HTTPRequestHeaders = map[string]engine.HeaderField{
		"x-forwarded-for": {ID: schema.HTTPXFF, Type: field.TypeIPHash},
	}
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	ProcessHTTP(eng, s, session.Client, []byte("GET / HTTP/1.1\r\nX-Forwarded-For: 1.2.3.4, not-an-ip\r\nHost: x.com\r\n\r\n"))

	require.True(t, s.Fields.HasTag("http:bad-xff"))
	ips := s.Fields.IPs(schema.HTTPXFF)
	require.Len(t, ips, 1)
}

func TestHTTPHeaderNameTruncatedSilently(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	longName := ""
	for i := 0; i < 80; i++ {
		longName += "x"
	}
	ProcessHTTP(eng, s, session.Client, []byte("GET / HTTP/1.1\r\n"+longName+": v\r\n\r\n"))
	// must not panic; header-name field bounded at 40 bytes internally
	require.True(t, s.Fields.HasTag("protocol:http"))
}
