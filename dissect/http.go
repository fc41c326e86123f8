// HTTP push-parser dissection (§4.4). One independent state machine per
// direction, driven a line at a time for the start-line and header
// phases and a chunk at a time for the body phase, so that reassembly
// boundary splits never change the resulting field-store contents.
package dissect

import (
	"bytes"
	"encoding/hex"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/field"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

// ProcessHTTP feeds newly arrived bytes for one direction of a half-stream
// into its HTTP push-parser. Safe to call repeatedly with arbitrarily
// split chunks of the same stream.
func ProcessHTTP(eng *engine.Engine, s *session.Session, dir session.Direction, data []byte) {
	st := s.EnsureHTTP()
	d := &st.Dir[dir]
	if !d.Live {
		return
	}

loop:
	for len(data) > 0 {
		switch d.Phase {
		case session.HTTPPhaseStartLine, session.HTTPPhaseHeaders:
			line, rest, found := extractLine(d, data)
			data = rest
			if !found {
				break loop
			}
			if d.Phase == session.HTTPPhaseStartLine {
				handleStartLine(eng, s, dir, d, line)
			} else {
				handleHeaderLine(eng, s, dir, d, line)
			}
		case session.HTTPPhaseBody:
			n := len(data)
			if d.HasCL && int64(n) > d.BodyRemaining {
				n = int(d.BodyRemaining)
			}
			chunk := data[:n]
			data = data[n:]
			handleBodyChunk(eng, s, dir, d, chunk)
			if d.HasCL {
				d.BodyRemaining -= int64(len(chunk))
				if d.BodyRemaining <= 0 {
					finishMessage(eng, s, dir, d)
				}
			}
		}
	}

	if !d.Live && !st.AnyLive() {
		s.HTTP = nil
	}
}

// maxLineBuf bounds the start-line/header line accumulator (§7c resource
// exhaustion): a half-stream that never produces a CRLF is a malformed
// grammar, not a slow header.
const maxLineBuf = 8192

// extractLine pulls one CRLF/LF-terminated line out of data, carrying any
// partial trailing line across calls in d.LineBuf. Returns found=false
// (consuming all of data into LineBuf) when no terminator has arrived yet.
// If the accumulator would grow past maxLineBuf without a terminator, the
// direction's parser is retired (§7d protocol assertion failure).
func extractLine(d *session.HTTPDirState, data []byte) (line, rest []byte, found bool) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		if len(d.LineBuf)+len(data) > maxLineBuf {
			d.Live = false
			return nil, nil, false
		}
		d.LineBuf = append(d.LineBuf, data...)
		return nil, nil, false
	}
	full := data[:idx]
	d.LineBuf = append(d.LineBuf, full...)
	if n := len(d.LineBuf); n > 0 && d.LineBuf[n-1] == '\r' {
		d.LineBuf = d.LineBuf[:n-1]
	}
	line = append([]byte{}, d.LineBuf...)
	d.LineBuf = d.LineBuf[:0]
	return line, data[idx+1:], true
}

func handleStartLine(eng *engine.Engine, s *session.Session, dir session.Direction, d *session.HTTPDirState, line []byte) {
	if len(line) == 0 {
		return // keep-alive filler between messages
	}
	d.ResetMessage()
	eng.Plugins.HTTPMessageBegin(s, dir)

	fields := bytes.SplitN(line, []byte(" "), 3)
	if len(fields) < 2 {
		d.Phase = session.HTTPPhaseHeaders
		return
	}
	if bytes.HasPrefix(fields[0], []byte("HTTP/")) {
		d.IsRequest = false
		d.Version = strings.TrimPrefix(string(fields[0]), "HTTP/")
		if len(fields) >= 2 {
			d.StatusCode = int(permissiveAtoi(string(fields[1])))
		}
	} else {
		d.IsRequest = true
		d.Method = string(fields[0])
		if len(fields) >= 2 {
			d.PendingURL = append(d.PendingURL, fields[1]...)
			eng.Plugins.HTTPURL(s, dir, d.PendingURL)
		}
		if len(fields) >= 3 {
			d.Version = strings.TrimPrefix(string(bytes.TrimSpace(fields[2])), "HTTP/")
		}
	}
	d.Phase = session.HTTPPhaseHeaders
}

func handleHeaderLine(eng *engine.Engine, s *session.Session, dir session.Direction, d *session.HTTPDirState, line []byte) {
	if len(line) == 0 {
		flushHeaderValue(eng, s, dir, d)
		completeHeaders(eng, s, dir, d)
		return
	}

	if (line[0] == ' ' || line[0] == '\t') && len(d.HeaderName) > 0 {
		d.HeaderValue = append(d.HeaderValue, ' ')
		d.HeaderValue = append(d.HeaderValue, bytes.TrimSpace(line)...)
		return
	}

	flushHeaderValue(eng, s, dir, d)

	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return // malformed header line, discarded; state resumes at next CRLF
	}
	name := bytes.TrimSpace(line[:idx])
	value := bytes.TrimSpace(line[idx+1:])

	eng.Plugins.HeaderField(s, dir, name)
	if !d.SeenAnyField && d.IsRequest && len(d.PendingURL) > 0 {
		eng.Plugins.HTTPURL(s, dir, d.PendingURL)
	}
	d.SeenAnyField = true

	d.HeaderName = d.HeaderName[:0]
	d.AppendHeaderName(name)
	lower := strings.ToLower(string(d.HeaderName))
	s.Fields.AddTag("http:header:" + lower)

	if lower == "host" {
		d.PendingHost = append(d.PendingHost[:0], "//"...)
		d.PendingHost = append(d.PendingHost, value...)
	}
	if lower == "content-length" {
		d.HasCL = true
		d.ContentLength = permissiveAtoi(string(value))
	}
	if lower == "content-encoding" && bytes.Contains(bytes.ToLower(value), []byte("gzip")) {
		d.GzipEncoded = true
	}

	var routed bool
	var hf engine.HeaderField
	if d.IsRequest {
		hf, routed = eng.Config.HTTPRequestHeaders[lower]
	} else {
		hf, routed = eng.Config.HTTPResponseHeaders[lower]
	}
	if routed {
		d.RoutingID = hf.ID
		d.RoutingType = hf.Type
		d.RoutingSet = true
		d.HeaderValue = append(d.HeaderValue[:0], value...)
		eng.Plugins.HeaderValue(s, dir, lower, d.HeaderValue)
	} else {
		d.RoutingSet = false
	}
}

// flushHeaderValue stores the currently pending header name/value into
// its routed field, per the type-specific rule in §4.4.
func flushHeaderValue(eng *engine.Engine, s *session.Session, dir session.Direction, d *session.HTTPDirState) {
	if !d.RoutingSet {
		return
	}
	d.RoutingSet = false
	value := strings.TrimSpace(string(d.HeaderValue))

	switch d.RoutingType {
	case field.TypeInt:
		s.Fields.AddInt(d.RoutingID, permissiveAtoi(value))
	case field.TypeIPHash:
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			ip := net.ParseIP(part)
			if ip == nil || ip.To4() == nil {
				s.Fields.AddTag("http:bad-xff")
				continue
			}
			s.Fields.AddIPHash(d.RoutingID, ip)
		}
	default:
		s.Fields.AddString(d.RoutingID, value, true)
	}
}

func completeHeaders(eng *engine.Engine, s *session.Session, dir session.Direction, d *session.HTTPDirState) {
	if d.IsRequest {
		s.Fields.AddTag("http:method:" + d.Method)
		s.Fields.AddString(schema.HTTPRequestVersion, d.Version, true)
	} else {
		s.Fields.AddTag("http:statuscode:" + strconv.Itoa(d.StatusCode))
		s.Fields.AddString(schema.HTTPResponseVersion, d.Version, true)
	}
	eng.Plugins.HeadersComplete(s, dir)

	if d.HasCL && d.ContentLength > 0 {
		d.Phase = session.HTTPPhaseBody
		d.BodyRemaining = d.ContentLength
		return
	}
	// No (or zero) content-length: this best-effort extractor treats the
	// message as bodiless rather than reading until connection close
	// (full RFC 7230 framing is out of scope).
	finishMessage(eng, s, dir, d)
}

func handleBodyChunk(eng *engine.Engine, s *session.Session, dir session.Direction, d *session.HTTPDirState, chunk []byte) {
	if !d.BodySniffed {
		sniffInput := chunk
		if d.GzipEncoded {
			if unz, ok := gunzipBestEffort(chunk); ok {
				sniffInput = unz
			}
		}
		if mime := eng.SniffMIME(sniffInput); mime != "" {
			s.Fields.AddTag("http:content:" + mime)
		}
		d.BodySniffed = true
	}
	if bytes.Contains(chunk, []byte("password=")) {
		s.Fields.AddTag("http:password")
	}
	d.BodyMD5.Write(chunk)
	d.BodySeen = true
	eng.Plugins.HTTPBody(s, dir, chunk)
}

// gunzipBestEffort attempts a one-shot gzip decode of a (possibly
// truncated) chunk, for MIME sniffing only; the raw chunk bytes are what
// feed the body MD5 regardless (§8: body MD5 is MD5 of the raw callback
// chunks).
func gunzipBestEffort(chunk []byte) ([]byte, bool) {
	zr, err := gzip.NewReader(bytes.NewReader(chunk))
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	out, _ := io.ReadAll(io.LimitReader(zr, 512))
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func finishMessage(eng *engine.Engine, s *session.Session, dir session.Direction, d *session.HTTPDirState) {
	s.Fields.AddTag("protocol:http")

	url := string(d.PendingURL)
	host := strings.ToLower(string(d.PendingHost)) // "//host[:port]" or empty, ascii-downed like the original's hostString

	for _, c := range d.PendingURL {
		if c < 0x20 {
			s.Fields.AddTag("http:control-char")
			break
		}
	}

	if host != "" {
		hostNoPort := strings.TrimPrefix(host, "//")
		if i := strings.IndexByte(hostNoPort, ':'); i >= 0 {
			hostNoPort = hostNoPort[:i]
		}
		switch {
		case strings.HasPrefix(url, "/"):
			s.Fields.AddString(schema.URLs, host+url, true)
			s.Fields.AddString(schema.Host, hostNoPort, true)
		case strings.Contains(url[:min(8, len(url))], hostNoPort):
			s.Fields.AddString(schema.URLs, url, true)
			s.Fields.AddString(schema.Host, hostNoPort, true)
		default:
			s.Fields.AddString(schema.URLs, host+";"+url, true)
			s.Fields.AddString(schema.Host, hostNoPort, true)
		}
	} else if url != "" {
		s.Fields.AddString(schema.URLs, url, true)
	}

	if d.BodySeen {
		s.Fields.AddString(schema.HTTPBodyMD5, hex.EncodeToString(d.BodyMD5.Sum(nil)), true)
	}

	eng.Plugins.HTTPMessageComplete(s, dir)
	d.Phase = session.HTTPPhaseStartLine
}

// permissiveAtoi parses a leading optional sign and run of digits,
// ignoring any trailing garbage; non-numeric input yields 0 (§4.4).
func permissiveAtoi(s string) int64 {
	s = strings.TrimSpace(s)
	i := 0
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return 0
	}
	v, err := strconv.ParseInt(s[start:i], 10, 64)
	if err != nil {
		return 0
	}
	if neg {
		return -v
	}
	return v
}
