package plugin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aol/moloch/field"
	"github.com/aol/moloch/session"
)

type recordingHooks struct {
	NopHooks
	urls []string
}

func (r *recordingHooks) HTTPURL(_ *session.Session, _ session.Direction, url []byte) {
	r.urls = append(r.urls, string(url))
}

func newTestSession() *session.Session {
	reg := field.NewRegistry()
	return session.New(session.FiveTuple{}, reg)
}

func TestDispatcherOnlyFiresEnabledBits(t *testing.T) {
	h := &recordingHooks{}
	d := &Dispatcher{Hooks: h, Mask: BitHTTPURL}

	s := newTestSession()
	d.HTTPURL(s, session.Client, []byte("/a"))
	d.HTTPMessageBegin(s, session.Client) // not in mask, no-op, must not panic

	require.Equal(t, []string{"/a"}, h.urls)
}

func TestNilHooksNeverFire(t *testing.T) {
	d := &Dispatcher{Mask: BitHTTPURL | BitNewSession}
	s := newTestSession()
	require.NotPanics(t, func() {
		d.HTTPURL(s, session.Client, []byte("/a"))
		d.NewSession(s)
	})
}
