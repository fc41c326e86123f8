// DNS datagram dissection (§4.7). Invoked once per UDP datagram reaching
// a DNS destination; validates the header, then walks the question
// section and, for responses, the answer section.
package dissect

import (
	"net"
	"strings"

	"github.com/aol/moloch/dnsname"
	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/schema"
	"github.com/aol/moloch/session"
)

var qclassNames = map[uint16]string{1: "IN", 2: "CS", 3: "CH", 4: "HS", 255: "ANY"}

var qtypeNames = map[uint16]string{
	1: "A", 2: "NS", 5: "CNAME", 6: "SOA", 12: "PTR", 15: "MX", 16: "TXT",
	28: "AAAA", 33: "SRV", 255: "ANY",
}

// ProcessDNS dissects a single UDP datagram payload (§4.7).
func ProcessDNS(eng *engine.Engine, s *session.Session, payload []byte) {
	if len(payload) < 18 {
		return
	}
	flags := payload[2]
	opcode := (flags >> 3) & 0x0f
	qr := flags&0x80 != 0
	if opcode != 0 {
		return
	}
	qdcount := int(payload[4])<<8 | int(payload[5])
	if qdcount < 1 || qdcount > 10 {
		return
	}

	s.Fields.AddTag("protocol:dns")

	offset := 12
	for i := 0; i < qdcount; i++ {
		name, consumed, ok := dnsname.Decode(payload, offset)
		if !ok {
			return
		}
		offset = consumed
		if offset+4 > len(payload) {
			return
		}
		qtype := uint16(payload[offset])<<8 | uint16(payload[offset+1])
		qclass := uint16(payload[offset+2])<<8 | uint16(payload[offset+3])
		offset += 4

		if cn, ok := qclassNames[qclass]; ok {
			s.Fields.AddTag("dns:qclass:" + cn)
		}
		if tn, ok := qtypeNames[qtype]; ok {
			s.Fields.AddTag("dns:qtype:" + tn)
		}
		s.Fields.AddString(schema.DNSHost, strings.ToLower(name), true)
	}

	if !qr {
		return
	}

	ancount := int(payload[6])<<8 | int(payload[7])
	for i := 0; i < ancount; i++ {
		_, consumed, ok := dnsname.Decode(payload, offset)
		if !ok {
			return
		}
		offset = consumed
		if offset+10 > len(payload) {
			return
		}
		rtype := uint16(payload[offset])<<8 | uint16(payload[offset+1])
		rclass := uint16(payload[offset+2])<<8 | uint16(payload[offset+3])
		rdlen := int(payload[offset+8])<<8 | int(payload[offset+9])
		rdataOffset := offset + 10
		offset = rdataOffset + rdlen
		if offset > len(payload) {
			return
		}

		switch {
		case rtype == 1 && rclass == 1 && rdlen == 4:
			rdata := payload[rdataOffset : rdataOffset+4]
			// Source bytes stored little-endian into the IPv4 value,
			// preserving the original decoder's existing (reversed)
			// semantics rather than "fixing" it (§9 Open Question).
			ip := net.IPv4(rdata[3], rdata[2], rdata[1], rdata[0])
			s.Fields.AddIPHash(schema.DNSIP, ip)
		case rtype == 5 && rclass == 1:
			cname, _, ok := dnsname.Decode(payload, rdataOffset)
			if ok {
				s.Fields.AddString(schema.DNSHost, strings.ToLower(cname), true)
			}
		}
	}
}
