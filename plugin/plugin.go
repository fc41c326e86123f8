// Package plugin is the narrow hook surface dissectors fire named events
// through (§6). It is deliberately opaque to the core: the core only
// knows it has a Hooks implementation to call at the documented sites; it
// does not know or care what a concrete implementation does with them
// (submit to a scripting runtime, a Yara scan, a metrics counter, ...).
package plugin

import "github.com/aol/moloch/session"

// Bit is one hook in the dispatch bitmask, mirroring the design note's
// "plugin callback bitmask" created once at init.
type Bit uint32

const (
	BitNewSession Bit = 1 << iota
	BitHTTPMessageBegin
	BitHTTPURL
	BitHeaderField
	BitHeaderValue
	BitHeadersComplete
	BitHTTPBody
	BitHTTPMessageComplete
	BitSMTPHeader
	BitSMTPHeaderComplete
)

// Hooks is the full set of named events a dissector may fire. A
// concrete implementation only needs to act on the events it cares
// about; embedding NopHooks gives every method a free no-op body.
type Hooks interface {
	NewSession(s *session.Session)

	HTTPMessageBegin(s *session.Session, dir session.Direction)
	HTTPURL(s *session.Session, dir session.Direction, url []byte)
	HeaderField(s *session.Session, dir session.Direction, name []byte)
	HeaderValue(s *session.Session, dir session.Direction, name string, value []byte)
	HeadersComplete(s *session.Session, dir session.Direction)
	HTTPBody(s *session.Session, dir session.Direction, chunk []byte)
	HTTPMessageComplete(s *session.Session, dir session.Direction)

	SMTPHeader(s *session.Session, dir session.Direction, name, value string)
	SMTPHeaderComplete(s *session.Session, dir session.Direction)
}

// NopHooks implements Hooks with no-op bodies; embed it and override
// only the events a plugin host cares about.
type NopHooks struct{}

func (NopHooks) NewSession(*session.Session)                                {}
func (NopHooks) HTTPMessageBegin(*session.Session, session.Direction)       {}
func (NopHooks) HTTPURL(*session.Session, session.Direction, []byte)       {}
func (NopHooks) HeaderField(*session.Session, session.Direction, []byte)   {}
func (NopHooks) HeaderValue(*session.Session, session.Direction, string, []byte) {}
func (NopHooks) HeadersComplete(*session.Session, session.Direction)       {}
func (NopHooks) HTTPBody(*session.Session, session.Direction, []byte)     {}
func (NopHooks) HTTPMessageComplete(*session.Session, session.Direction)  {}
func (NopHooks) SMTPHeader(*session.Session, session.Direction, string, string) {}
func (NopHooks) SMTPHeaderComplete(*session.Session, session.Direction)   {}

// Dispatcher fires hooks only when the corresponding bit is set,
// avoiding the cost of a call through the interface for unused events.
type Dispatcher struct {
	Hooks Hooks
	Mask  Bit
}

func (d *Dispatcher) active(b Bit) bool {
	return d.Hooks != nil && d.Mask&b != 0
}

func (d *Dispatcher) NewSession(s *session.Session) {
	if d.active(BitNewSession) {
		d.Hooks.NewSession(s)
	}
}

func (d *Dispatcher) HTTPMessageBegin(s *session.Session, dir session.Direction) {
	if d.active(BitHTTPMessageBegin) {
		d.Hooks.HTTPMessageBegin(s, dir)
	}
}

func (d *Dispatcher) HTTPURL(s *session.Session, dir session.Direction, url []byte) {
	if d.active(BitHTTPURL) {
		d.Hooks.HTTPURL(s, dir, url)
	}
}

func (d *Dispatcher) HeaderField(s *session.Session, dir session.Direction, name []byte) {
	if d.active(BitHeaderField) {
		d.Hooks.HeaderField(s, dir, name)
	}
}

func (d *Dispatcher) HeaderValue(s *session.Session, dir session.Direction, name string, value []byte) {
	if d.active(BitHeaderValue) {
		d.Hooks.HeaderValue(s, dir, name, value)
	}
}

func (d *Dispatcher) HeadersComplete(s *session.Session, dir session.Direction) {
	if d.active(BitHeadersComplete) {
		d.Hooks.HeadersComplete(s, dir)
	}
}

func (d *Dispatcher) HTTPBody(s *session.Session, dir session.Direction, chunk []byte) {
	if d.active(BitHTTPBody) {
		d.Hooks.HTTPBody(s, dir, chunk)
	}
}

func (d *Dispatcher) HTTPMessageComplete(s *session.Session, dir session.Direction) {
	if d.active(BitHTTPMessageComplete) {
		d.Hooks.HTTPMessageComplete(s, dir)
	}
}

func (d *Dispatcher) SMTPHeader(s *session.Session, dir session.Direction, name, value string) {
	if d.active(BitSMTPHeader) {
		d.Hooks.SMTPHeader(s, dir, name, value)
	}
}

func (d *Dispatcher) SMTPHeaderComplete(s *session.Session, dir session.Direction) {
	if d.active(BitSMTPHeaderComplete) {
		d.Hooks.SMTPHeaderComplete(s, dir)
	}
}
