package hashtools

import (
	"bytes"
	"io"
	"testing"
)

type zeroreader struct {
	n int64
}

var zbuf [65536]byte

func (r *zeroreader) Read(b []byte) (n int, e error) {
	if r.n == 0 {
		return 0, io.EOF
	}
	if int64(len(b)) > r.n {
		b = b[:r.n]
	}
	n = copy(b, zbuf[:])
	r.n -= int64(n)
	return
}

var sizes = []int64{0, 1, 1000, 65536, 1 << 20}

func TestMakeDigestMatchesParts(t *testing.T) {
	for _, sz := range sizes {
		d1, e := MakeDigest(&zeroreader{sz})
		if e != nil {
			t.Fatalf("MakeDigest err: %v", e)
		}
		d2, e := MakeDigest(bytes.NewReader(make([]byte, sz)))
		if e != nil {
			t.Fatalf("MakeDigest err: %v", e)
		}
		if d1 != d2 {
			t.Errorf("size %d: digests differ %s != %s", sz, d1, d2)
		}
	}
}

func TestDigestPartsBoundaries(t *testing.T) {
	a := DigestParts([]byte("ab"), []byte("c"))
	b := DigestParts([]byte("a"), []byte("bc"))
	if a == b {
		t.Errorf("shifted boundary produced same digest %s", a)
	}
	if a != DigestParts([]byte("ab"), []byte("c")) {
		t.Errorf("digest not deterministic")
	}
	if len(a.String()) != 52 {
		t.Errorf("unexpected encoded len %d", len(a.String()))
	}
}

func TestLowerBase32HexSortOrder(t *testing.T) {
	x := LowerBase32HexEnc.EncodeToString([]byte{0, 0, 1})
	y := LowerBase32HexEnc.EncodeToString([]byte{0, 0, 2})
	if !(x < y) {
		t.Errorf("expected %q < %q", x, y)
	}
}

func BenchmarkMakeDigest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, e := MakeDigest(&zeroreader{1 << 20}); e != nil {
			b.Fatal(e)
		}
	}
}
