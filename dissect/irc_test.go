package dissect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

func TestIRCJoinAndNick(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	ProcessIRC(eng, s, session.Client, []byte("JOIN #gophers\r\nNICK bob\r\n"))

	require.Equal(t, []string{"#gophers"}, s.Fields.Strings(schema.IRCChannel))
	require.Equal(t, []string{"bob"}, s.Fields.Strings(schema.IRCNick))
}

func TestIRCMidLineSkipsRestOfLine(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	ProcessIRC(eng, s, session.Client, []byte("JOIN #a"))
	require.True(t, s.IRCMidLine[session.Client])
	require.Equal(t, []string{"#a"}, s.Fields.Strings(schema.IRCChannel))

	ProcessIRC(eng, s, session.Client, []byte(" NICK stolen\r\nNICK real\r\n"))
	require.False(t, s.IRCMidLine[session.Client])
	require.Equal(t, []string{"real"}, s.Fields.Strings(schema.IRCNick))
}

func TestIRCUnrecognizedLineSkipped(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)

	ProcessIRC(eng, s, session.Client, []byte("PRIVMSG #x :hi\r\nNICK bob\r\n"))
	require.Equal(t, []string{"bob"}, s.Fields.Strings(schema.IRCNick))
}
