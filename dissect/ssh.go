// SSH binary-phase dissection (§4.5 phase 2). The banner phase lives in
// classify.captureSSHBanner; this handles the post-banner binary packet
// stream: 4-byte length, 1-byte padding length (skipped), 1-byte message
// code, then either a captured key-exchange host key or a skipped packet
// body.
package dissect

import (
	"encoding/base64"

	"github.com/aol/moloch/bsb"
	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

const sshKexInit = 33

// ProcessSSH feeds newly arrived binary-phase bytes for one direction of
// an SSH half-stream. A partial in-flight packet body that straddles a
// segment boundary is carried in s.SSHLen across calls.
func ProcessSSH(eng *engine.Engine, s *session.Session, dir session.Direction, data []byte) {
	if !s.IsSSH {
		return
	}

	b := bsb.New(data)

	if s.SSHLen > 0 {
		skip := int(s.SSHLen)
		if skip > b.Remaining() {
			skip = b.Remaining()
		}
		b.Skip(skip)
		s.SSHLen -= uint32(skip)
		if s.SSHLen > 0 {
			return // packet body still incomplete
		}
	}

	for b.Remaining() >= 6 {
		head := b.WorkPtr()
		length := uint32(head[0])<<24 | uint32(head[1])<<16 | uint32(head[2])<<8 | uint32(head[3])
		code := head[5]
		b.Advance(6)

		if length < 2 {
			s.IsSSH = false // protocol assertion failure (§7d)
			return
		}
		bodyLen := int(length) - 2 // packet bytes left after padding-length+code

		if code == sshKexInit && length >= 8 && b.Remaining() >= 4 {
			klHead := b.WorkPtr()
			keyLen := int(klHead[0])<<24 | int(klHead[1])<<16 | int(klHead[2])<<8 | int(klHead[3])
			b.Advance(4)
			if keyLen < 0 || keyLen > b.Remaining() {
				s.IsSSH = false
				return
			}
			key := b.Slice(keyLen)
			if b.Error() {
				s.IsSSH = false
				return
			}
			s.Fields.AddString(schema.SSHKey, base64.StdEncoding.EncodeToString(key), true)
			s.IsSSH = false
			return
		}

		if bodyLen > b.Remaining() {
			s.SSHLen = uint32(bodyLen - b.Remaining())
			b.Skip(b.Remaining())
			return
		}
		b.Skip(bodyLen)
		if b.Error() {
			return
		}
	}
}
