package dissect

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

func TestSMTPMIMEBase64Attachment(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)
	s.EnsureEmail()

	msg := "HELO x\r\n" +
		"MAIL FROM:<a@b>\r\n" +
		"RCPT TO:<c@d>\r\n" +
		"DATA\r\n" +
		"Content-Type: multipart/mixed; boundary=\"BND\"\r\n" +
		"\r\n" +
		"--BND\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		"aGVsbG8=\r\n" +
		"--BND--\r\n"

	ProcessSMTP(eng, s, session.Client, []byte(msg))

	require.Equal(t, []string{"a@b"}, s.Fields.Strings(schema.EmailSrc))
	require.Equal(t, []string{"c@d"}, s.Fields.Strings(schema.EmailDst))

	want := md5.Sum([]byte("hello"))
	require.Equal(t, []string{hex.EncodeToString(want[:])}, s.Fields.Strings(schema.EmailMD5))
}

func TestSMTPStartTLSTransitionsToTLS(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)
	s.EnsureEmail()

	ProcessSMTP(eng, s, session.Client, []byte("STARTTLS\r\n"))
	require.Equal(t, session.PhaseIgnore, s.Email.Dir[session.Client].Phase)
	require.Equal(t, session.PhaseTLSOK, s.Email.Dir[session.Server].Phase)

	ProcessSMTP(eng, s, session.Server, []byte("220 2.0.0 Ready to start TLS\r\n"))
	require.Nil(t, s.Email)
}

func TestSMTPHeaderSplitAcrossSegments(t *testing.T) {
	eng := newTestEngine()
	reg := schema.NewDefaultRegistry()
	s := session.New(session.FiveTuple{}, reg)
	s.EnsureEmail()

	ProcessSMTP(eng, s, session.Client, []byte("MAIL FROM:<"))
	ProcessSMTP(eng, s, session.Client, []byte("x@y>\r\n"))

	require.Equal(t, []string{"x@y"}, s.Fields.Strings(schema.EmailSrc))
}
