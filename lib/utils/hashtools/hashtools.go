package hashtools

import (
	"encoding/base32"
	"encoding/base64"
	"io"

	"github.com/zeebo/blake3"
)

// like normal base32 just lowercase and without padding
var LowerBase32Set = "abcdefghijklmnopqrstuvwxyz234567"
var LowerBase32Enc = base32.
	NewEncoding(LowerBase32Set).
	WithPadding(base32.NoPadding)

// lowecase base32 set which preserves sorting order without padding
var LowerBase32HexSet = "0123456789abcdefghijklmnopqrstuv"
var LowerBase32HexEnc = base32.
	NewEncoding(LowerBase32HexSet).
	WithPadding(base32.NoPadding)

// custom base64 set (preserves sort order) without padding
var SBase64Set = "-" +
	"0123456789" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"_" +
	"abcdefghijklmnopqrstuvwxyz"
var SBase64Enc = base64.
	NewEncoding(SBase64Set).
	WithPadding(base64.NoPadding)

// DigestSize is size of content digest in bytes.
const DigestSize = 32

// Digest is BLAKE3-256 of article content.
type Digest [DigestSize]byte

func (d Digest) String() string {
	return LowerBase32Enc.EncodeToString(d[:])
}

// MakeDigest hashes everything r yields.
func MakeDigest(r io.Reader) (d Digest, e error) {
	h := blake3.New()
	if _, e = io.Copy(h, r); e != nil {
		return
	}
	h.Sum(d[:0])
	return
}

// DigestParts hashes concatenation of parts, each prefixed by its length
// so that boundaries can't be shifted between parts.
func DigestParts(parts ...[]byte) (d Digest) {
	h := blake3.New()
	var lb [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range lb {
			lb[i] = byte(n >> (8 * i))
		}
		h.Write(lb[:])
		h.Write(p)
	}
	h.Sum(d[:0])
	return
}
