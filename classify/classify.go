// Package classify implements the first-bytes protocol classifier
// (§4.9): a signature table matched against the start of each TCP
// half-stream, adding classification tags and, for some protocols,
// seeding per-session state or invoking a dissector directly.
package classify

import (
	"bytes"

	"github.com/aol/moloch/dissect"
	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

// Classify inspects data, the bytes accumulated so far at offset 0 of a
// half-stream, and adds any matching protocol tags. priorBytes is the
// number of bytes that had already accumulated at offset 0 before this
// call arrived (0 for the very first call for this half-stream);
// TLS classification's "and not first segment" guard (§4.9 table, last
// row) uses it the same way the original's hlf->count != hlf->count_new
// check does.
//
// Classification is additive: multiple signatures may match the same
// half-stream, and this function may be called again on the same
// half-stream's growing prefix as more bytes arrive at offset 0 (it is
// idempotent: re-running on an unchanged prefix yields the same tags).
func Classify(eng *engine.Engine, s *session.Session, dir session.Direction, data []byte, priorBytes int) {
	n := len(data)

	if n >= 3 && bytes.Equal(data[:3], []byte("SSH")) {
		s.IsSSH = true
		s.Fields.AddTag("protocol:ssh")
		captureSSHBanner(s, data)
	}

	if n >= 4 && bytes.Equal(data[:4], []byte("220 ")) {
		switch {
		case bytes.Contains(data[:n], []byte("LMTP")):
			s.Fields.AddTag("protocol:lmtp")
		case bytes.Contains(data[:n], []byte("SMTP")):
			s.Fields.AddTag("protocol:smtp")
			s.EnsureEmail()
		default:
			s.Fields.AddTag("protocol:ftp")
		}
	}

	if n >= 5 {
		if bytes.Equal(data[:5], []byte("HELO ")) || bytes.Equal(data[:5], []byte("EHLO ")) {
			s.Fields.AddTag("protocol:smtp")
			s.EnsureEmail()
		}
	}

	if n >= 9 {
		if (data[4] == 0xff || data[4] == 0xfe) && bytes.Equal(data[5:8], []byte("SMB")) {
			s.Fields.AddTag("protocol:smb")
		}
		if bytes.Equal(data[:9], []byte("+OK POP3 ")) {
			s.Fields.AddTag("protocol:pop3")
		}
	}

	if n >= 11 {
		if (data[0] == ':' && bytes.Contains(data[:n], []byte(" NOTICE "))) ||
			bytes.Equal(data[:11], []byte("NOTICE AUTH")) ||
			bytes.Equal(data[:5], []byte("NICK ")) ||
			bytes.Equal(data[:5], []byte("PASS ")) {
			s.Fields.AddTag("protocol:irc")
		}
	}

	if n >= 15 {
		// gh0st RAT: fixed-length Windows/Mac header variants, and an
		// "improved" variant with a zlib-stream magic (0x78 0x9c) after a
		// zeroed header window. Reproduced literally from the original
		// (SPEC_FULL §6): spec.md only names the tag, not the byte math.
		if data[13] == 0x78 &&
			(((data[8] == 0 && data[7] == 0) && (int(data[6])<<8|int(data[5])) == n) ||
				((data[5] == 0 && data[6] == 0) && (int(data[7])<<8|int(data[8])) == n)) {
			s.Fields.AddTag("protocol:gh0st")
		} else if data[7] == 0 && data[8] == 0 && data[11] == 0 && data[12] == 0 &&
			data[13] == 0x78 && data[14] == 0x9c {
			s.Fields.AddTag("protocol:gh0st-improved")
		}
	}

	if n >= 19 && bytes.Equal(data[:19], []byte("BitTorrent protocol")) {
		s.Fields.AddTag("protocol:bittorrent")
	}

	if n >= 30 && priorBytes > 0 &&
		data[0] == 0x16 && data[1] == 0x03 && data[2] <= 0x03 && data[5] == 2 {
		s.Fields.AddTag("protocol:tls")
		dissect.ProcessTLSRecord(eng, s, dir, data)
	}
}

// captureSSHBanner records the SSH version banner once per session
// (§4.5 phase 1): bytes up to CRLF or LF, lower-cased.
func captureSSHBanner(s *session.Session, data []byte) {
	if len(s.Fields.Strings(schema.SSHVersion)) > 0 {
		return
	}
	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		return
	}
	line := data[:end]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	s.Fields.AddString(schema.SSHVersion, string(bytes.ToLower(line)), false)
}
