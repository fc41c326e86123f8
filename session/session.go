// Package session defines the unit of accumulation dissectors operate on:
// a TCP/UDP flow's five-tuple, its typed field store, and the lazily
// created per-protocol state objects (HTTP, email/SMTP, SSH, IRC, TLS
// certificate set) a dissector attaches to it.
package session

import (
	"crypto/md5"
	"hash"
	"net"

	"github.com/google/uuid"

	"github.com/aol/moloch/field"
)

// Direction identifies which half-stream a callback represents.
type Direction int

const (
	Client Direction = 0
	Server Direction = 1
)

// Other returns the opposite direction.
func (d Direction) Other() Direction {
	if d == Client {
		return Server
	}
	return Client
}

// FiveTuple identifies a flow.
type FiveTuple struct {
	SrcIP    net.IP
	DstIP    net.IP
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8 // IP protocol number, e.g. 6=TCP, 17=UDP, 1=ICMP
}

// Session is the per-flow accumulation unit. Per-session state objects
// are created lazily on first dissector use (see EnsureHTTP/EnsureEmail/
// etc) and the whole Session is discarded by the caller at flow close --
// there is no explicit Close here because ownership (and any final-flush
// opportunity) belongs to the reassembler, outside this package.
type Session struct {
	ID    string
	Tuple FiveTuple

	Fields *field.Store

	HTTP  *HTTPState
	Email *EmailState
	TLS   *TLSState

	// SSH tracks the binary-phase parse state. IsSSH gates whether the
	// binary phase still runs at all; it is cleared once a host key has
	// been extracted or the dissector gives up (§4.5, §7d).
	IsSSH   bool
	SSHLen  uint32 // bytes still expected to complete the in-flight packet
	SSHCode byte

	// IRC tracks the "mid-line" skip bit per direction (§4.8).
	IRCMidLine [2]bool

	// Disabled gates whether a given direction's dissector should keep
	// receiving bytes at all (§7d: protocol assertion failures disable
	// further parsing for a session/direction, fields already collected
	// are preserved).
	disabled [2]map[string]bool
}

// New creates an empty session for the given five-tuple, bound to reg.
func New(tuple FiveTuple, reg *field.Registry) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Tuple:    tuple,
		Fields:   field.NewStore(reg),
		disabled: [2]map[string]bool{{}, {}},
	}
}

// Disable marks protocol as no longer active for direction dir. Further
// bytes for that (protocol, direction) pair should be discarded by the
// caller rather than parsed.
func (s *Session) Disable(dir Direction, protocol string) {
	s.disabled[dir][protocol] = true
}

// IsDisabled reports whether protocol has been disabled for dir.
func (s *Session) IsDisabled(dir Direction, protocol string) bool {
	return s.disabled[dir][protocol]
}

// EnsureHTTP lazily creates the HTTP state on first use.
func (s *Session) EnsureHTTP() *HTTPState {
	if s.HTTP == nil {
		s.HTTP = newHTTPState()
	}
	return s.HTTP
}

// EnsureEmail lazily creates the SMTP/MIME state on first use.
func (s *Session) EnsureEmail() *EmailState {
	if s.Email == nil {
		s.Email = newEmailState()
	}
	return s.Email
}

// FreeEmail releases SMTP state, e.g. on STARTTLS transition (§4.6).
func (s *Session) FreeEmail() {
	s.Email = nil
}

// EnsureTLS lazily creates the TLS certificate set on first use.
func (s *Session) EnsureTLS() *TLSState {
	if s.TLS == nil {
		s.TLS = newTLSState()
	}
	return s.TLS
}

// --- HTTP state -------------------------------------------------------

// HTTPPhase is the coarse push-parser phase for one direction.
type HTTPPhase int

const (
	HTTPPhaseStartLine HTTPPhase = iota
	HTTPPhaseHeaders
	HTTPPhaseBody
)

// HTTPDirState is the per-direction HTTP parsing scratch state.
type HTTPDirState struct {
	Phase    HTTPPhase
	InHeader bool
	InValue  bool
	InBody   bool
	Live     bool // whether this direction's parser is still accepting bytes

	LineBuf []byte // accumulates bytes until CRLF/LF for line-oriented phases

	HeaderName   []byte // bounded scratch buffer, ~40 bytes (§4.4, §7c)
	HeaderValue  []byte
	RoutingID    field.ID
	RoutingType  field.Type
	RoutingSet   bool
	GzipEncoded  bool

	PendingURL  []byte
	PendingHost []byte

	IsRequest     bool
	Method        string
	Version       string
	StatusCode    int
	HasCL         bool
	ContentLength int64
	BodyRemaining int64

	BodyMD5      hash.Hash
	BodySeen     bool
	BodySniffed  bool
	SeenAnyField bool
}

const maxHeaderNameLen = 40

// HTTPState holds both directions' HTTP push-parser scratch state.
type HTTPState struct {
	Dir [2]HTTPDirState
}

func newHTTPState() *HTTPState {
	hs := &HTTPState{}
	for i := range hs.Dir {
		hs.Dir[i].Live = true
		hs.Dir[i].BodyMD5 = md5.New()
	}
	return hs
}

// AnyLive reports whether at least one direction's parser is still live.
func (h *HTTPState) AnyLive() bool {
	return h.Dir[0].Live || h.Dir[1].Live
}

// ResetMessage clears per-message scratch state at message-begin.
func (d *HTTPDirState) ResetMessage() {
	d.Phase = HTTPPhaseStartLine
	d.InHeader = false
	d.InValue = false
	d.InBody = false
	d.HeaderName = d.HeaderName[:0]
	d.HeaderValue = d.HeaderValue[:0]
	d.RoutingSet = false
	d.GzipEncoded = false
	d.PendingURL = d.PendingURL[:0]
	d.PendingHost = d.PendingHost[:0]
	d.HasCL = false
	d.ContentLength = 0
	d.BodyRemaining = 0
	d.BodyMD5 = md5.New()
	d.BodySeen = false
	d.BodySniffed = false
	d.SeenAnyField = false
}

// AppendHeaderName appends to the bounded header-name scratch buffer,
// silently truncating past maxHeaderNameLen (§7c).
func (d *HTTPDirState) AppendHeaderName(b []byte) {
	room := maxHeaderNameLen - len(d.HeaderName)
	if room <= 0 {
		return
	}
	if len(b) > room {
		b = b[:room]
	}
	d.HeaderName = append(d.HeaderName, b...)
}

// --- Email / SMTP state -------------------------------------------------

// SMTPPhase is one of the 12 states of the SMTP/MIME push-parser (§4.6).
type SMTPPhase int

const (
	PhaseCMD SMTPPhase = iota
	PhaseDataHeader
	PhaseDataHeaderDone
	PhaseData
	PhaseDataReturn
	PhaseMIME
	PhaseMIMEDone
	PhaseMIMEData
	PhaseMIMEDataReturn
	PhaseTLSOK
	PhaseTLS
	PhaseIgnore
)

// Base64State carries an incremental RFC 4648 decoder's leftover bits
// across calls so arbitrary line splits within a MIME part produce
// bit-identical output to a single-shot decode (design note §9).
type Base64State struct {
	Save  [4]byte
	NSave int
}

// EmailDirState is the per-direction SMTP/MIME state.
type EmailDirState struct {
	Phase       SMTPPhase
	LineBuf     []byte
	Boundaries  []string // boundary stack, pushed per nested multipart
	Base64      bool
	B64State    Base64State
	AttachMD5   hash.Hash
	HeaderName  string
	HeaderValue []byte
	FoldOK      bool
	Filename    string
}

// EmailState holds both directions' SMTP/MIME parse state.
type EmailState struct {
	Dir [2]EmailDirState
}

func newEmailState() *EmailState {
	es := &EmailState{}
	for i := range es.Dir {
		es.Dir[i].AttachMD5 = md5.New()
	}
	return es
}

// --- TLS state ------------------------------------------------------

// TLSState holds the session's deduplicated certificate set.
type TLSState struct {
	seen  map[uint64]struct{}
	Certs []CertRecord
}

func newTLSState() *TLSState {
	return &TLSState{seen: make(map[uint64]struct{})}
}

// AddCert inserts rec unless an equal record (by stable hash of
// serial+issuer+subject) is already present. Returns false if it was a
// duplicate.
func (t *TLSState) AddCert(rec CertRecord) bool {
	h := rec.dedupHash()
	if _, ok := t.seen[h]; ok {
		return false
	}
	t.seen[h] = struct{}{}
	t.Certs = append(t.Certs, rec)
	return true
}
