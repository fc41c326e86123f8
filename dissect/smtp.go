// SMTP + MIME dissection (§4.6): a line-oriented state machine per
// direction covering the command phase, DATA header/body phase, and MIME
// multipart phase, with an incremental base64 decoder carrying leftover
// bits across lines for attachment MD5 hashing.
package dissect

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"net"
	"strings"

	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

// ProcessSMTP feeds newly arrived bytes for one direction of an SMTP
// half-stream. Once STARTTLS has been negotiated and the session's email
// state freed, further bytes on either direction are forwarded straight
// to the TLS dissector.
func ProcessSMTP(eng *engine.Engine, s *session.Session, dir session.Direction, data []byte) {
	if s.Email == nil {
		ProcessTLSRecord(eng, s, dir, data)
		return
	}
	st := s.EnsureEmail()
	d := &st.Dir[dir]

	if d.Phase == session.PhaseIgnore {
		return
	}
	if d.Phase == session.PhaseTLS {
		ProcessTLSRecord(eng, s, dir, data)
		return
	}

	for len(data) > 0 {
		line, rest, found := extractLineBuf(&d.LineBuf, data)
		data = rest
		if !found {
			return
		}

		switch d.Phase {
		case session.PhaseCMD:
			handleCMDLine(s, dir, d, line)
		case session.PhaseDataHeader, session.PhaseDataHeaderDone:
			handleHeaderLine2(eng, s, dir, d, line, session.PhaseData)
		case session.PhaseData, session.PhaseDataReturn:
			handleBodyLine(s, d, line, session.PhaseMIME, session.PhaseData)
		case session.PhaseMIME, session.PhaseMIMEDone:
			handleHeaderLine2(eng, s, dir, d, line, session.PhaseMIMEData)
		case session.PhaseMIMEData, session.PhaseMIMEDataReturn:
			handleMIMEDataLine(s, d, line)
		case session.PhaseTLSOK:
			d.Phase = session.PhaseTLS
			s.FreeEmail()
			ProcessTLSRecord(eng, s, dir, data)
			return
		}
	}
}

// extractLineBuf pulls one CRLF/LF-terminated line out of data, carrying
// any partial trailing line across calls in *buf.
func extractLineBuf(buf *[]byte, data []byte) (line, rest []byte, found bool) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		*buf = append(*buf, data...)
		return nil, nil, false
	}
	full := data[:idx]
	*buf = append(*buf, full...)
	if n := len(*buf); n > 0 && (*buf)[n-1] == '\r' {
		*buf = (*buf)[:n-1]
	}
	line = append([]byte{}, *buf...)
	*buf = (*buf)[:0]
	return line, data[idx+1:], true
}

func handleCMDLine(s *session.Session, dir session.Direction, d *session.EmailDirState, line []byte) {
	trimmed := bytes.TrimSpace(line)
	upper := strings.ToUpper(string(trimmed))

	switch {
	case strings.HasPrefix(upper, "MAIL FROM:"):
		if addr, ok := extractCommandAddr(trimmed); ok {
			s.Fields.AddString(schema.EmailSrc, strings.ToLower(addr), true)
		}
	case strings.HasPrefix(upper, "RCPT TO:"):
		if addr, ok := extractCommandAddr(trimmed); ok {
			s.Fields.AddString(schema.EmailDst, strings.ToLower(addr), true)
		}
	case upper == "DATA":
		d.Phase = session.PhaseDataHeader
	case strings.HasPrefix(upper, "STARTTLS"):
		d.Phase = session.PhaseIgnore
		s.Email.Dir[dir.Other()].Phase = session.PhaseTLSOK
	}
}

func extractCommandAddr(line []byte) (string, bool) {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return "", false
	}
	rest := bytes.TrimSpace(line[idx+1:])
	if lt := bytes.IndexByte(rest, '<'); lt >= 0 {
		if gt := bytes.IndexByte(rest[lt:], '>'); gt >= 0 {
			return string(rest[lt+1 : lt+gt]), true
		}
	}
	tok := tokenUpToSPOrEOL(rest)
	return string(tok), len(tok) > 0
}

// handleHeaderLine2 implements the DATA_HEADER/DATA_HEADER_DONE and
// MIME/MIME_DONE rows: blank line -> bodyPhase; "." while no header has
// been seen yet -> back to CMD; SP/TAB continuation -> fold; otherwise
// flush the pending header and parse a new one.
func handleHeaderLine2(eng *engine.Engine, s *session.Session, dir session.Direction, d *session.EmailDirState, line []byte, bodyPhase session.SMTPPhase) {
	if len(line) == 0 {
		flushSMTPHeader(eng, s, dir, d)
		eng.Plugins.SMTPHeaderComplete(s, dir)
		d.Phase = bodyPhase
		return
	}
	if string(line) == "." && d.HeaderName == "" {
		d.Phase = session.PhaseCMD
		return
	}
	if (line[0] == ' ' || line[0] == '\t') && d.HeaderName != "" {
		d.HeaderValue = append(d.HeaderValue, ' ')
		d.HeaderValue = append(d.HeaderValue, bytes.TrimSpace(line)...)
		return
	}

	flushSMTPHeader(eng, s, dir, d)

	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return // malformed header line, discarded; state resumes at next CRLF
	}
	d.HeaderName = strings.ToLower(strings.TrimSpace(string(line[:idx])))
	d.HeaderValue = append(d.HeaderValue[:0], bytes.TrimSpace(line[idx+1:])...)
	if d.Phase == session.PhaseDataHeader {
		d.Phase = session.PhaseDataHeaderDone
	} else if d.Phase == session.PhaseMIME {
		d.Phase = session.PhaseMIMEDone
	}
}

func flushSMTPHeader(eng *engine.Engine, s *session.Session, dir session.Direction, d *session.EmailDirState) {
	if d.HeaderName == "" {
		return
	}
	name := d.HeaderName
	value := strings.TrimSpace(string(d.HeaderValue))
	eng.Plugins.SMTPHeader(s, dir, name, value)

	switch name {
	case "to":
		for _, a := range parseAddrList(value) {
			s.Fields.AddString(schema.EmailDst, strings.ToLower(a), true)
		}
	case "cc":
		for _, a := range parseAddrList(value) {
			s.Fields.AddString(schema.EmailCC, strings.ToLower(a), true)
		}
	case "from":
		for _, a := range parseAddrList(value) {
			s.Fields.AddString(schema.EmailFrom, strings.ToLower(a), true)
		}
	case "message-id":
		mid := strings.Trim(value, "<>")
		s.Fields.AddString(schema.EmailMessageID, mid, true)
	case "subject":
		s.Fields.AddString(schema.EmailSubject, value, true)
	case "content-type":
		s.Fields.AddString(schema.EmailContentType, value, true)
		if b, ok := extractBoundary(value); ok {
			d.Boundaries = append(d.Boundaries, b)
		}
	case "content-disposition":
		if fn, ok := extractParam(value, "filename"); ok {
			d.Filename = fn
			s.Fields.AddString(schema.EmailFilename, fn, true)
		}
	case "content-transfer-encoding":
		if strings.Contains(strings.ToLower(value), "base64") {
			d.Base64 = true
		}
	default:
		for _, ipHeader := range eng.Config.SMTPIPHeaders {
			if strings.EqualFold(ipHeader, name) {
				ipStr := strings.Trim(value, "[]")
				if ip := net.ParseIP(ipStr); ip != nil && ip.To4() != nil {
					s.Fields.AddIPHash(schema.EmailIP, ip)
				}
			}
		}
	}

	d.HeaderName = ""
	d.HeaderValue = d.HeaderValue[:0]
}

func extractBoundary(value string) (string, bool) {
	return extractParam(value, "boundary")
}

// extractParam does a tolerant scan for key=value or key="value" inside a
// ;-separated parameter list.
func extractParam(value, key string) (string, bool) {
	lower := strings.ToLower(value)
	idx := strings.Index(lower, key+"=")
	if idx < 0 {
		return "", false
	}
	rest := value[idx+len(key)+1:]
	if len(rest) > 0 && rest[0] == '"' {
		if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
			return rest[1 : 1+end], true
		}
	}
	tok := tokenUpToSPOrEOL([]byte(rest))
	tok = bytes.TrimRight(tok, ";")
	return string(tok), len(tok) > 0
}

func parseAddrList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if lt := strings.IndexByte(part, '<'); lt >= 0 {
			if gt := strings.IndexByte(part[lt:], '>'); gt >= 0 {
				out = append(out, part[lt+1:lt+gt])
				continue
			}
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func matchesBoundary(line []byte, boundaries []string) bool {
	if !bytes.HasPrefix(line, []byte("--")) {
		return false
	}
	body := string(line[2:])
	body = strings.TrimSuffix(body, "--")
	for _, b := range boundaries {
		if b == body {
			return true
		}
	}
	return false
}

// handleBodyLine implements the DATA/DATA_RETURN row: "." ends the
// message, a boundary-matching "--" line enters MIME, anything else
// stays in the body phase.
func handleBodyLine(s *session.Session, d *session.EmailDirState, line []byte, mimePhase, stayPhase session.SMTPPhase) {
	switch {
	case string(line) == ".":
		d.Phase = session.PhaseCMD
	case matchesBoundary(line, d.Boundaries):
		d.Phase = mimePhase
	default:
		d.Phase = stayPhase
	}
}

// handleMIMEDataLine implements MIME_DATA/MIME_DATA_RETURN: feed
// base64-flagged lines through the incremental decoder, updating the
// attachment MD5; on a boundary match, finalize the attachment and
// return to MIME header parsing.
func handleMIMEDataLine(s *session.Session, d *session.EmailDirState, line []byte) {
	if matchesBoundary(line, d.Boundaries) {
		if d.Base64 {
			s.Fields.AddString(schema.EmailMD5, hex.EncodeToString(d.AttachMD5.Sum(nil)), true)
		}
		d.Base64 = false
		d.B64State = session.Base64State{}
		d.AttachMD5 = md5.New()
		d.Phase = session.PhaseMIME
		return
	}
	if d.Base64 {
		feedBase64(&d.B64State, d.AttachMD5, line)
	}
	d.Phase = session.PhaseMIMEData
}

// feedBase64 decodes as many complete 4-character groups as are
// available across b64.Save (leftover from prior calls) and line,
// writing the decoded bytes into h and carrying any remainder forward.
func feedBase64(b64 *session.Base64State, h hash.Hash, line []byte) {
	clean := make([]byte, 0, len(line))
	for _, c := range line {
		if c == '\r' || c == '\n' || c == ' ' || c == '\t' {
			continue
		}
		clean = append(clean, c)
	}
	buf := append(append([]byte{}, b64.Save[:b64.NSave]...), clean...)
	n := len(buf) - (len(buf) % 4)
	if n > 0 {
		decoded := make([]byte, base64.StdEncoding.DecodedLen(n))
		if dn, err := base64.StdEncoding.Decode(decoded, buf[:n]); err == nil {
			h.Write(decoded[:dn])
		}
	}
	leftover := buf[n:]
	b64.NSave = copy(b64.Save[:], leftover)
}
