package crypto

import "golang.org/x/crypto/sha3"

// KMAC-256 parameters from NIST SP 800-185 Section 4.
const (
	// KMACTagSize is the MAC output length in bytes (256-bit tag).
	KMACTagSize = 32

	// cSHAKE256Rate is the Keccak rate for cSHAKE256 in bytes,
	// used as the bytepad width W.
	cSHAKE256Rate = 136
)

// kmacFunctionName is the cSHAKE function-name string N fixed by SP 800-185.
var kmacFunctionName = []byte("KMAC")

// KMAC256 computes KMAC-256 with a 256-bit tag and an empty customization
// string, keyed by key and absorbing the segments in order. Per SP 800-185:
//
//	KMAC256(K, X, 256, "") = cSHAKE256(bytepad(encode_string(K), 136) ‖ X ‖ right_encode(256), 256, "KMAC", "")
//
// As with SHA3Sum256, segments are plain concatenation: absent segments
// contribute nothing.
func KMAC256(key [32]byte, segments ...[]byte) [KMACTagSize]byte {
	h := sha3.NewCShake256(kmacFunctionName, nil)
	h.Write(bytepad(encodeString(key[:]), cSHAKE256Rate))
	for _, seg := range segments {
		h.Write(seg)
	}
	h.Write(rightEncode(8 * KMACTagSize))

	var tag [KMACTagSize]byte
	h.Read(tag[:])
	return tag
}

// leftEncode encodes x as its minimal big-endian byte string preceded by
// the byte count (SP 800-185 Section 2.3.1).
func leftEncode(x uint64) []byte {
	n := 1
	for v := x >> 8; v != 0; v >>= 8 {
		n++
	}
	out := make([]byte, n+1)
	out[0] = byte(n)
	for i := n; i > 0; i-- {
		out[i] = byte(x)
		x >>= 8
	}
	return out
}

// rightEncode is leftEncode with the byte count appended instead.
func rightEncode(x uint64) []byte {
	n := 1
	for v := x >> 8; v != 0; v >>= 8 {
		n++
	}
	out := make([]byte, n+1)
	out[n] = byte(n)
	x2 := x
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(x2)
		x2 >>= 8
	}
	return out
}

// encodeString prefixes s with its bit length (SP 800-185 Section 2.3.2).
func encodeString(s []byte) []byte {
	return append(leftEncode(uint64(len(s))*8), s...)
}

// bytepad pads x to a multiple of w bytes after prepending left_encode(w)
// (SP 800-185 Section 2.3.3).
func bytepad(x []byte, w int) []byte {
	out := append(leftEncode(uint64(w)), x...)
	for len(out)%w != 0 {
		out = append(out, 0)
	}
	return out
}
