package session

import "github.com/aol/moloch/field"

// CommonName is one CN value extracted from a distinguished name, along
// with whether it came from a UTF8String (tag 12) field.
type CommonName struct {
	Value string
	UTF8  bool
}

// DN is a parsed X.501 distinguished name, reduced to the attributes the
// dissector cares about (§3, §4.3).
type DN struct {
	CommonNames []CommonName
	OrgName     string
	OrgUTF8     bool
}

// CertRecord is one parsed certificate from a TLS handshake Certificate
// message (§3, §4.3).
type CertRecord struct {
	Issuer   DN
	Subject  DN
	AltNames []string
	Serial   []byte
}

func dnBytes(dn DN) []byte {
	var out []byte
	for _, cn := range dn.CommonNames {
		out = append(out, cn.Value...)
		out = append(out, 0)
	}
	out = append(out, dn.OrgName...)
	return out
}

func (c CertRecord) dedupHash() uint64 {
	return field.StableHash(c.Serial, dnBytes(c.Issuer), dnBytes(c.Subject))
}
