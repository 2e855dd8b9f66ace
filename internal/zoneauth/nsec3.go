package zoneauth

import (
	"crypto/sha1" // #nosec G505 -- RFC 5155 NSEC3 hashing mandates SHA-1; there is no alternative digest to select
	"strings"
)

// hashName implements RFC 5155 §5's iterative NSEC3 hash: H(name | salt),
// then iterations more rounds of H(prev | salt). Ported from the teacher's
// packet.HashName.
func hashName(name string, iterations uint16, salt []byte) []byte {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}

	labels := strings.Split(strings.TrimSuffix(name, "."), ".")
	wireName := make([]byte, 0, 256)
	for _, l := range labels {
		wireName = append(wireName, byte(len(l)))
		wireName = append(wireName, []byte(l)...)
	}
	wireName = append(wireName, 0)

	h := sha1.New() // #nosec G401
	h.Write(wireName)
	h.Write(salt)
	res := h.Sum(nil)

	for i := uint16(0); i < iterations; i++ {
		h.Reset()
		h.Write(res)
		h.Write(salt)
		res = h.Sum(nil)
	}
	return res
}

// nsec3Base32Map is RFC 5155 §3.3's non-standard base32 alphabet (lowercase,
// RFC 4648's table0..v), distinct from RFC 4648 base32.
const nsec3Base32Map = "0123456789abcdefghijklmnopqrstuv"

// base32Encode encodes data using the NSEC3 owner-name alphabet.
func base32Encode(data []byte) string {
	var out strings.Builder
	var val uint32
	var bits uint8
	for _, b := range data {
		val = (val << 8) | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out.WriteByte(nsec3Base32Map[(val>>bits)&0x1F])
		}
	}
	if bits > 0 {
		out.WriteByte(nsec3Base32Map[(val<<(5-bits))&0x1F])
	}
	return out.String()
}
