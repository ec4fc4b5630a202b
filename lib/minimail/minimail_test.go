package minimail

import (
	"errors"
	"testing"
	"time"
)

var msgidTests = []struct {
	in    string
	valid bool
	out   FullMsgID
}{
	{"<abc@example.org>", true, "<abc@example.org>"},
	{"  <abc@example.org>\t", true, "<abc@example.org>"},
	{"<a.b.c$1@[127.0.0.1]>", true, "<a.b.c$1@[127.0.0.1]>"},
	{"abc@example.org", false, ""},
	{"<abc@example.org", false, ""},
	{"<abcexample.org>", false, ""},
	{"<@example.org>", false, ""},
	{"<abc@>", false, ""},
	{"<a@b@c>", false, ""},
	{"<a b@c>", false, ""},
	{"<a\x01b@c>", false, ""},
	{"<a\x7fb@c>", false, ""},
	{"<a<b@c>", false, ""},
	{"<a>b@c>", false, ""},
	{"<\xc3\xa4@c>", false, ""},
	{"", false, ""},
	{"<>", false, ""},
}

func TestParseMessageID(t *testing.T) {
	for i, tc := range msgidTests {
		id, err := ParseMessageID(tc.in)
		if tc.valid {
			if err != nil {
				t.Errorf("%d %q: unexpected err %v", i, tc.in, err)
				continue
			}
			if id != tc.out {
				t.Errorf("%d %q: got %q want %q", i, tc.in, id, tc.out)
			}
		} else {
			if !errors.Is(err, ErrMalformedIdentifier) {
				t.Errorf("%d %q: expected ErrMalformedIdentifier, got %v", i, tc.in, err)
			}
		}
	}
}

func TestTooLongMessageID(t *testing.T) {
	b := make([]byte, MaxMessageIDLen)
	for i := range b {
		b[i] = 'x'
	}
	s := "<" + string(b) + "@y>"
	if _, err := ParseMessageID(s); !errors.Is(err, ErrMalformedIdentifier) {
		t.Errorf("expected overlong id to fail, got %v", err)
	}
}

func TestNewMessageID(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	a := NewMessageID(now, "news.example.net")
	b := NewMessageID(now, "news.example.net")
	if a == b {
		t.Errorf("generated ids collide: %s", a)
	}
	for _, id := range []FullMsgID{a, b} {
		if !ValidMessageID(id) {
			t.Errorf("generated id %q is not valid", id)
		}
	}
	if a.Core().Full() != a {
		t.Errorf("core/full roundtrip broken for %q", a)
	}
}

func TestValidNodeName(t *testing.T) {
	for _, n := range []string{"localhost", "news.example.net"} {
		if !ValidNodeName(n) {
			t.Errorf("%q should be valid", n)
		}
	}
	for _, n := range []string{"", "a b", "a@b", "a>b"} {
		if ValidNodeName(n) {
			t.Errorf("%q should be invalid", n)
		}
	}
}
