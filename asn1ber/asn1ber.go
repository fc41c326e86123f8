// Package asn1ber implements a tolerant BER/DER TLV reader on top of
// bsb.BSB, plus OBJECT IDENTIFIER decoding. It is intentionally permissive:
// truncated or malformed input yields a nil value rather than an error,
// so certificate parsing (package dissect) can skip a bad element and
// keep going on the rest of the chain.
package asn1ber

import (
	"strconv"
	"strings"

	"github.com/aol/moloch/bsb"
)

// TLV is one decoded tag-length-value triple.
type TLV struct {
	Constructed bool
	Tag         int
	Value       []byte
}

// GetTLV reads one TLV from b. It returns ok=false on any underflow or on
// an indefinite-length (0x80) length octet, per the spec's "tolerant
// mode": a declared length exceeding what remains is clamped to what
// remains rather than treated as an error.
func GetTLV(b *bsb.BSB) (tlv TLV, ok bool) {
	if b.Remaining() < 2 {
		return TLV{}, false
	}

	first := b.U8()
	tlv.Constructed = (first>>5)&0x1 == 1

	tag := int(first & 0x1f)
	if tag == 0x1f {
		tag = 0
		for b.Remaining() > 0 {
			ch := b.U8()
			tag = (tag << 7) | int(ch&0x7f)
			if ch&0x80 == 0 {
				break
			}
		}
	}
	tlv.Tag = tag

	lenByte := b.U8()
	if b.Error() || lenByte == 0x80 {
		return TLV{}, false
	}

	var length int
	if lenByte&0x80 == 0 {
		length = int(lenByte)
	} else {
		cnt := int(lenByte & 0x7f)
		for cnt > 0 && b.Remaining() > 0 {
			length = (length << 8) | int(b.U8())
			cnt--
		}
	}
	if length < 0 {
		return TLV{}, false
	}
	if length > b.Remaining() {
		length = b.Remaining()
	}

	value := b.Slice(length)
	if b.Error() {
		return TLV{}, false
	}
	tlv.Value = value
	return tlv, true
}

// DecodeOID decodes the contents of an OBJECT IDENTIFIER value into its
// dotted-decimal string form. An empty or malformed value yields "".
func DecodeOID(value []byte) string {
	if len(value) == 0 {
		return ""
	}
	var parts []string
	var cur uint64
	haveFirst := false
	for _, c := range value {
		cur = (cur << 7) | uint64(c&0x7f)
		if c&0x80 != 0 {
			continue
		}
		if !haveFirst {
			haveFirst = true
			if cur > 40 {
				parts = append(parts, strconv.FormatUint(cur/40, 10))
				parts = append(parts, strconv.FormatUint(cur%40, 10))
			} else {
				parts = append(parts, strconv.FormatUint(cur, 10))
			}
		} else {
			parts = append(parts, strconv.FormatUint(cur, 10))
		}
		cur = 0
	}
	return strings.Join(parts, ".")
}

// EncodeOID is the inverse of DecodeOID, used only by round-trip tests.
func EncodeOID(dotted string) []byte {
	fields := strings.Split(dotted, ".")
	if len(fields) < 2 {
		return nil
	}
	var nums []uint64
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return nil
		}
		nums = append(nums, n)
	}
	first := nums[0]*40 + nums[1]
	nums = append([]uint64{first}, nums[2:]...)

	var out []byte
	for _, n := range nums {
		out = append(out, encodeBase128(n)...)
	}
	return out
}

func encodeBase128(n uint64) []byte {
	if n == 0 {
		return []byte{0}
	}
	var rev []byte
	for n > 0 {
		rev = append(rev, byte(n&0x7f))
		n >>= 7
	}
	out := make([]byte, len(rev))
	for i, b := range rev {
		v := b
		if i != 0 {
			v |= 0x80
		}
		out[len(rev)-1-i] = v
	}
	return out
}

// EncodeTLV encodes a definite-length TLV, used only by round-trip tests.
func EncodeTLV(tag int, constructed bool, value []byte) []byte {
	var out []byte
	first := byte(tag)
	if constructed {
		first |= 0x20
	}
	out = append(out, first)

	n := len(value)
	if n < 0x80 {
		out = append(out, byte(n))
	} else {
		var lb []byte
		for n > 0 {
			lb = append([]byte{byte(n & 0xff)}, lb...)
			n >>= 8
		}
		out = append(out, byte(0x80|len(lb)))
		out = append(out, lb...)
	}
	out = append(out, value...)
	return out
}
