// TLS certificate-chain dissection (§4.3). Invoked by the classifier on
// a half-stream whose first bytes match a TLS record header; scans the
// record layer for Handshake records carrying a Certificate message and
// parses each certificate as ASN.1.
package dissect

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aol/moloch/asn1ber"
	"github.com/aol/moloch/bsb"
	"github.com/aol/moloch/engine"
	"github.com/aol/moloch/session"
)

const (
	oidCommonName      = "2.5.4.3"
	oidOrgName         = "2.5.4.10"
	oidSubjectAltName  = "2.5.29.17"
	handshakeCertMsg   = 0x0b
	recordTypeHandshake = 22
)

var utf8Caser = cases.Lower(language.Und)

// ProcessTLSRecord scans the TLS record layer starting at data, descends
// into Handshake records, and parses any Certificate (type 0x0b)
// message's chain of X.509 certificates.
func ProcessTLSRecord(eng *engine.Engine, s *session.Session, dir session.Direction, data []byte) {
	rec := bsb.New(data)
	for rec.Remaining() > 5 {
		head := rec.WorkPtr()
		recType := head[0]
		recLen := int(head[3])<<8 | int(head[4])
		if recLen > rec.Remaining()-5 {
			recLen = rec.Remaining() - 5
		}
		rec.Advance(5)
		payload := rec.Slice(recLen)
		if rec.Error() {
			return
		}
		if recType == recordTypeHandshake {
			processHandshakeMessages(eng, s, dir, payload)
		}
	}
}

func processHandshakeMessages(eng *engine.Engine, s *session.Session, dir session.Direction, data []byte) {
	hs := bsb.New(data)
	for hs.Remaining() > 7 {
		head := hs.WorkPtr()
		msgType := head[0]
		msgLen := int(head[1])<<16 | int(head[2])<<8 | int(head[3])
		if msgLen > hs.Remaining()-4 {
			msgLen = hs.Remaining() - 4
		}
		hs.Advance(4)
		body := hs.Slice(msgLen)
		if hs.Error() {
			return
		}
		if msgType == handshakeCertMsg {
			processCertificateMessage(eng, s, dir, body)
		}
	}
}

// processCertificateMessage parses the Certificate handshake message
// body: a 3-byte total-length prefix followed by a sequence of
// (3-byte-length, DER cert) entries.
func processCertificateMessage(eng *engine.Engine, s *session.Session, dir session.Direction, data []byte) {
	if len(data) < 3 {
		return
	}
	b := bsb.New(data[3:])
	for b.Remaining() > 3 {
		head := b.WorkPtr()
		certLen := int(head[0])<<16 | int(head[1])<<8 | int(head[2])
		if certLen > b.Remaining()-3 {
			certLen = b.Remaining() - 3
		}
		b.Advance(3)
		der := b.Slice(certLen)
		if b.Error() {
			return
		}
		parseOneCertificate(eng, s, dir, der)
	}
}

func parseOneCertificate(eng *engine.Engine, s *session.Session, dir session.Direction, der []byte) {
	outer := bsb.New(der)
	top, ok := asn1ber.GetTLV(outer)
	if !ok || top.Tag != 16 { // SEQUENCE (Certificate)
		eng.LogDebugStage("malformed certificate: outer sequence", 1)
		return
	}

	cb := bsb.New(top.Value)
	tbs, ok := asn1ber.GetTLV(cb)
	if !ok || tbs.Tag != 16 { // SEQUENCE (tbsCertificate)
		eng.LogDebugStage("malformed certificate: tbsCertificate", 2)
		return
	}

	tb := bsb.New(tbs.Value)

	rec := session.CertRecord{}

	// optional context[0] version
	if peek, ok := peekTLV(tb); ok && peek.Tag == 0 && peek.Constructed {
		asn1ber.GetTLV(tb) // consume and discard
	}

	serial, ok := asn1ber.GetTLV(tb)
	if !ok || serial.Tag != 2 { // INTEGER
		eng.LogDebugStage("malformed certificate: serialNumber", 3)
		return
	}
	rec.Serial = append([]byte{}, serial.Value...)

	// signatureAlgorithm SEQUENCE, skip
	if _, ok := asn1ber.GetTLV(tb); !ok {
		eng.LogDebugStage("malformed certificate: signatureAlgorithm", 4)
		return
	}

	issuerTLV, ok := asn1ber.GetTLV(tb)
	if !ok || issuerTLV.Tag != 16 {
		eng.LogDebugStage("malformed certificate: issuer", 5)
		return
	}
	rec.Issuer = parseDN(eng, issuerTLV.Value)

	// validity SEQUENCE, skip
	if _, ok := asn1ber.GetTLV(tb); !ok {
		eng.LogDebugStage("malformed certificate: validity", 6)
		return
	}

	subjectTLV, ok := asn1ber.GetTLV(tb)
	if !ok || subjectTLV.Tag != 16 {
		eng.LogDebugStage("malformed certificate: subject", 7)
		return
	}
	rec.Subject = parseDN(eng, subjectTLV.Value)

	// subjectPublicKeyInfo SEQUENCE, skip
	if _, ok := asn1ber.GetTLV(tb); !ok {
		eng.LogDebugStage("malformed certificate: subjectPKI", 8)
		return
	}

	// remaining optional fields: issuerUniqueID, subjectUniqueID,
	// extensions (context[3]); walk whatever is left looking for
	// extensions.
	for tb.Remaining() > 0 {
		peek, ok := peekTLV(tb)
		if !ok {
			break
		}
		if peek.Tag == 3 && peek.Constructed { // context[3] extensions
			extTLV, _ := asn1ber.GetTLV(tb)
			// [3] wraps the Extensions SEQUENCE; hand its elements on.
			if extSeq, ok := asn1ber.GetTLV(bsb.New(extTLV.Value)); ok && extSeq.Tag == 16 {
				rec.AltNames = parseExtensions(eng, extSeq.Value)
			}
			break
		}
		if _, ok := asn1ber.GetTLV(tb); !ok {
			break
		}
	}

	tlsState := s.EnsureTLS()
	tlsState.AddCert(rec)
}

// peekTLV reads a TLV without consuming the cursor, by snapshotting and
// restoring position via a scratch BSB over the same remaining bytes.
func peekTLV(b *bsb.BSB) (asn1ber.TLV, bool) {
	scratch := bsb.New(b.WorkPtr())
	return asn1ber.GetTLV(scratch)
}

// parseDN walks a Name's RDNSequence two fixed levels deep (SET of
// AttributeTypeAndValue SEQUENCEs), collecting CN and O attribute values
// (§4.3). Structures nested deeper than that are not searched.
func parseDN(eng *engine.Engine, data []byte) session.DN {
	var dn session.DN
	b := bsb.New(data)
	for b.Remaining() > 0 {
		rdn, ok := asn1ber.GetTLV(b) // SET (RelativeDistinguishedName)
		if !ok {
			eng.LogDebugStage("malformed DN: RDN set", 9)
			break
		}
		if rdn.Tag != 17 { // SET
			continue
		}
		sb := bsb.New(rdn.Value)
		for sb.Remaining() > 0 {
			attr, ok := asn1ber.GetTLV(sb) // SEQUENCE (AttributeTypeAndValue)
			if !ok || attr.Tag != 16 {
				break
			}
			ab := bsb.New(attr.Value)
			oidTLV, ok := asn1ber.GetTLV(ab)
			if !ok || oidTLV.Tag != 6 { // OBJECT IDENTIFIER
				continue
			}
			oid := asn1ber.DecodeOID(oidTLV.Value)
			valTLV, ok := asn1ber.GetTLV(ab)
			if !ok {
				continue
			}
			switch oid {
			case oidCommonName:
				if cn, ok := decodeDirectoryString(valTLV); ok {
					dn.CommonNames = append(dn.CommonNames, cn)
				}
			case oidOrgName:
				if dn.OrgName == "" { // first-wins policy (§4.3)
					if cn, ok := decodeDirectoryString(valTLV); ok {
						dn.OrgName = cn.Value
						dn.OrgUTF8 = cn.UTF8
					}
				} else {
					eng.LogDebugStage("duplicate organizationName", 10)
				}
			}
		}
	}
	return dn
}

// decodeDirectoryString handles the string tags permitted for DN
// attribute values: UTF8String (12, UTF-8-aware lower-case),
// PrintableString (19) and T61String/teletexString (20) (ASCII
// lower-case), per §4.3.
func decodeDirectoryString(tlv asn1ber.TLV) (session.CommonName, bool) {
	switch tlv.Tag {
	case 12: // UTF8String
		if !utf8.Valid(tlv.Value) {
			return session.CommonName{}, false
		}
		return session.CommonName{Value: utf8Caser.String(string(tlv.Value)), UTF8: true}, true
	case 19, 20: // PrintableString, T61String
		return session.CommonName{Value: string(bytes.ToLower(tlv.Value)), UTF8: false}, true
	default:
		return session.CommonName{}, false
	}
}

// parseExtensions walks the elements of a Certificate's Extensions
// SEQUENCE (the contents inside the context[3] wrapper) looking for
// subjectAltName (2.5.29.17); its OCTET STRING payload is itself a
// nested SEQUENCE of GeneralName, and every primitive context-tag-2
// (dNSName) child is collected, lower-cased (§4.3).
func parseExtensions(eng *engine.Engine, data []byte) []string {
	var names []string
	b := bsb.New(data)
	for b.Remaining() > 0 {
		ext, ok := asn1ber.GetTLV(b) // SEQUENCE (Extension)
		if !ok || ext.Tag != 16 {
			break
		}
		eb := bsb.New(ext.Value)
		oidTLV, ok := asn1ber.GetTLV(eb)
		if !ok || oidTLV.Tag != 6 {
			continue
		}
		oid := asn1ber.DecodeOID(oidTLV.Value)
		if oid != oidSubjectAltName {
			continue
		}
		// optional critical BOOLEAN
		peek, ok := peekTLV(eb)
		if ok && peek.Tag == 1 {
			asn1ber.GetTLV(eb)
		}
		octTLV, ok := asn1ber.GetTLV(eb) // OCTET STRING wrapping the SAN sequence
		if !ok || octTLV.Tag != 4 {
			eng.LogDebugStage("malformed subjectAltName", 10)
			continue
		}
		sanBody := bsb.New(octTLV.Value)
		sanSeq, ok := asn1ber.GetTLV(sanBody)
		if !ok || sanSeq.Tag != 16 {
			continue
		}
		gb := bsb.New(sanSeq.Value)
		for gb.Remaining() > 0 {
			gn, ok := asn1ber.GetTLV(gb)
			if !ok {
				break
			}
			if gn.Tag == 2 && !gn.Constructed { // dNSName [2]
				names = append(names, string(bytes.ToLower(gn.Value)))
			}
		}
	}
	return names
}
