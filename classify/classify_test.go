package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

func newEngine() *engine.Engine {
	return engine.New(schema.NewDefaultRegistry(), engine.Config{NodeName: "n"}, nil, nil)
}

func TestClassifySSHBanner(t *testing.T) {
	eng := newEngine()
	s := session.New(session.FiveTuple{}, schema.NewDefaultRegistry())
	Classify(eng, s, session.Client, []byte("SSH-2.0-OpenSSH_8.9\r\n"), 0)

	require.True(t, s.IsSSH)
	require.True(t, s.Fields.HasTag("protocol:ssh"))
	require.Equal(t, []string{"ssh-2.0-openssh_8.9"}, s.Fields.Strings(schema.SSHVersion))
}

func TestClassifySMTPGreeting(t *testing.T) {
	eng := newEngine()
	s := session.New(session.FiveTuple{}, schema.NewDefaultRegistry())
	Classify(eng, s, session.Server, []byte("220 mail.example.com SMTP ready\r\n"), 0)

	require.True(t, s.Fields.HasTag("protocol:smtp"))
	require.NotNil(t, s.Email)
}

func TestClassifyFTPGreeting(t *testing.T) {
	eng := newEngine()
	s := session.New(session.FiveTuple{}, schema.NewDefaultRegistry())
	Classify(eng, s, session.Server, []byte("220 ftp.example.com ready\r\n"), 0)

	require.True(t, s.Fields.HasTag("protocol:ftp"))
}

func TestClassifyIRCNotice(t *testing.T) {
	eng := newEngine()
	s := session.New(session.FiveTuple{}, schema.NewDefaultRegistry())
	Classify(eng, s, session.Server, []byte(":server NOTICE AUTH :hi"), 0)

	require.True(t, s.Fields.HasTag("protocol:irc"))
}

func TestClassifyBitTorrent(t *testing.T) {
	eng := newEngine()
	s := session.New(session.FiveTuple{}, schema.NewDefaultRegistry())
	Classify(eng, s, session.Client, []byte("BitTorrent protocol extension handshake bytes"), 0)

	require.True(t, s.Fields.HasTag("protocol:bittorrent"))
}

func TestClassifyTLSRequiresNotFirstSegment(t *testing.T) {
	eng := newEngine()
	s := session.New(session.FiveTuple{}, schema.NewDefaultRegistry())
	record := make([]byte, 40)
	record[0] = 0x16
	record[1] = 0x03
	record[2] = 0x01
	record[5] = 2

	Classify(eng, s, session.Client, record, 0) // first segment: must not tag
	require.False(t, s.Fields.HasTag("protocol:tls"))

	Classify(eng, s, session.Client, record, 40) // subsequent segment: tags
	require.True(t, s.Fields.HasTag("protocol:tls"))
}

func TestClassifyIdempotent(t *testing.T) {
	eng := newEngine()
	s := session.New(session.FiveTuple{}, schema.NewDefaultRegistry())
	data := []byte("NICK bob\r\n")
	Classify(eng, s, session.Client, data, 0)
	tagsFirst := s.Fields.Tags()
	Classify(eng, s, session.Client, data, 0)
	require.Equal(t, tagsFirst, s.Fields.Tags())
}
