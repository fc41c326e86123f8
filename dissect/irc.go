// IRC line-oriented dissection (§4.8): JOIN/NICK extraction, with a
// per-direction "mid-line" bit that skips to the next LF before
// inspecting a fresh line -- set after every recognized line (and after an
// unrecognized line whose LF has not arrived yet; a complete unrecognized
// line is skipped directly) so only the start of each line is ever
// examined.
package dissect

import (
	"bytes"

	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

// ProcessIRC feeds newly arrived bytes for one direction of an IRC
// half-stream.
func ProcessIRC(eng *engine.Engine, s *session.Session, dir session.Direction, data []byte) {
	for len(data) > 0 {
		if s.IRCMidLine[dir] {
			idx := bytes.IndexByte(data, '\n')
			if idx < 0 {
				return
			}
			data = data[idx+1:]
			s.IRCMidLine[dir] = false
			continue
		}

		switch {
		case bytes.HasPrefix(data, []byte("JOIN ")):
			tok := tokenUpToSPOrEOL(data[len("JOIN "):])
			if len(tok) > 0 {
				s.Fields.AddString(schema.IRCChannel, string(tok), true)
			}
			s.IRCMidLine[dir] = true
		case bytes.HasPrefix(data, []byte("NICK ")):
			tok := tokenUpToSPOrEOL(data[len("NICK "):])
			if len(tok) > 0 {
				s.Fields.AddString(schema.IRCNick, string(tok), true)
			}
			s.IRCMidLine[dir] = true
		default:
			idx := bytes.IndexByte(data, '\n')
			if idx < 0 {
				s.IRCMidLine[dir] = true
				return
			}
			data = data[idx+1:]
		}
	}
}

// tokenUpToSPOrEOL extracts the leading token delimited by SP, CR or LF
// (or the end of the available bytes, if no delimiter has arrived yet).
func tokenUpToSPOrEOL(b []byte) []byte {
	for i, c := range b {
		if c == ' ' || c == '\r' || c == '\n' {
			return b[:i]
		}
	}
	return b
}
