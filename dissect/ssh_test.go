package dissect

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aol/moloch/classify"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

func sshPacket(code byte, payload []byte) []byte {
	body := append([]byte{0, code}, payload...)
	length := uint32(len(body))
	pkt := []byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	return append(pkt, body...)
}

func TestSSHKeyExchangeCapturesKey(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	banner := []byte("SSH-2.0-OpenSSH_8.9\r\n")
	classify.Classify(eng, s, session.Client, banner, 0)
	require.Equal(t, []string{"ssh-2.0-openssh_8.9"}, s.Fields.Strings(schema.SSHVersion))
	require.True(t, s.IsSSH)

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	keyLenPrefix := []byte{0, 0, 0, 32}
	pkt := sshPacket(33, append(keyLenPrefix, key...))

	ProcessSSH(eng, s, session.Client, pkt)

	require.False(t, s.IsSSH)
	want := base64.StdEncoding.EncodeToString(key)
	require.Equal(t, []string{want}, s.Fields.Strings(schema.SSHKey))
}

func TestSSHNonKexPacketSkippedAndAdvances(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)
	s.IsSSH = true

	p1 := sshPacket(1, []byte("hello"))
	p2 := sshPacket(2, []byte("world"))
	ProcessSSH(eng, s, session.Client, append(p1, p2...))

	require.True(t, s.IsSSH)
	require.Empty(t, s.Fields.Strings(schema.SSHKey))
}

func TestSSHPartialPacketCarriesAcrossSegments(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)
	s.IsSSH = true

	pkt := sshPacket(1, []byte("0123456789"))
	ProcessSSH(eng, s, session.Client, pkt[:8])
	require.True(t, s.IsSSH)
	require.Greater(t, s.SSHLen, uint32(0))

	ProcessSSH(eng, s, session.Client, pkt[8:])
	require.Equal(t, uint32(0), s.SSHLen)
}
