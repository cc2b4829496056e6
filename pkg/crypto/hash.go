package crypto

import "golang.org/x/crypto/sha3"

// HashSize is the SHA3-256 output length in bytes.
const HashSize = 32

// SHA3Sum256 computes SHA3-256 over the concatenation of the given
// segments in order. A nil or absent segment contributes nothing to the
// digest; SHA3Sum256(a, b) therefore equals SHA3Sum256 of a‖b.
func SHA3Sum256(segments ...[]byte) [HashSize]byte {
	h := sha3.New256()
	for _, seg := range segments {
		h.Write(seg)
	}
	var digest [HashSize]byte
	h.Sum(digest[:0])
	return digest
}
