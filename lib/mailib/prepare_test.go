package mailib

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"newsbase/lib/mail"
	"newsbase/lib/minimail"
	"newsbase/lib/store"
)

var testNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func hdrs(kv ...string) (H mail.HeaderList) {
	for i := 0; i+1 < len(kv); i += 2 {
		H.Add(kv[i], kv[i+1])
	}
	return
}

func TestPrepareDerivesIDAndDate(t *testing.T) {
	cfg := DefaultPrepareConfig
	cfg.NodeName = "news.example.org"
	in := hdrs("Subject", "Hello", "Newsgroups", "rec.arts.turtles")
	a, err := cfg.Prepare(in, []byte("hi"), testNow)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !minimail.ValidMessageID(a.MessageID) ||
		!strings.HasSuffix(string(a.MessageID), "@news.example.org>") {
		t.Errorf("bad generated id %q", a.MessageID)
	}
	if a.Headers.Get("Message-ID") != string(a.MessageID) {
		t.Error("Message-ID header not set")
	}
	if a.Headers.Get("Date") != mail.FormatDate(testNow) {
		t.Errorf("unexpected Date %q", a.Headers.Get("Date"))
	}
	if in.Has("Message-ID") || in.Has("Date") {
		t.Error("input headers modified")
	}
	if a.Snapshot.Subject != "Hello" || !a.Snapshot.Date.Equal(testNow) || a.Snapshot.Lines != 1 {
		t.Errorf("unexpected snapshot %s", spew.Sdump(a.Snapshot))
	}
	d, err := a.ComputeDigest()
	if err != nil || d != a.Digest {
		t.Error("digest mismatch")
	}
}

func TestPrepareKeepsGivenID(t *testing.T) {
	cfg := DefaultPrepareConfig
	a, err := cfg.Prepare(
		hdrs("Message-ID", " <abc@host> ", "Newsgroups", "a.b, c.d ,a.b"),
		nil, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if a.MessageID != "<abc@host>" {
		t.Errorf("unexpected id %q", a.MessageID)
	}
	if got := strings.Join(a.Newsgroups, " "); got != "a.b c.d" {
		t.Errorf("unexpected groups %q", got)
	}
	if a.Headers.Get("Newsgroups") != "a.b,c.d" {
		t.Errorf("Newsgroups not normalised: %q", a.Headers.Get("Newsgroups"))
	}
}

func TestPrepareErrors(t *testing.T) {
	cfg := DefaultPrepareConfig
	cfg.MaxBodySize = 10
	cfg.MaxGroups = 2
	tests := []struct {
		h    mail.HeaderList
		body string
		err  error
	}{
		{hdrs("Subject", "x"), "", mail.ErrMalformedHeaders},
		{hdrs("Newsgroups", " , "), "", mail.ErrMalformedHeaders},
		{hdrs("Newsgroups", "a b"), "", store.ErrInvalidGroupName},
		{hdrs("Newsgroups", "a b"), "", mail.ErrMalformedHeaders},
		{hdrs("Newsgroups", "a,b,c"), "", mail.ErrMalformedHeaders},
		{hdrs("Newsgroups", "a", "Message-ID", "no-brackets@x"), "", minimail.ErrMalformedIdentifier},
		{hdrs("Newsgroups", "a", "Message-ID", "<a b@x>"), "", minimail.ErrMalformedIdentifier},
		{hdrs("Newsgroups", "a", "Message-ID", "<a@x>", "Message-ID", "<b@x>"), "", mail.ErrMalformedHeaders},
		{hdrs("Newsgroups", "a", "Date", "yesterday"), "", mail.ErrMalformedHeaders},
		{hdrs("Newsgroups", "a", "Subject", "bad\nvalue"), "", mail.ErrMalformedHeaders},
		{hdrs("Newsgroups", "a"), "0123456789a", ErrArticleTooLarge},
	}
	for i, tc := range tests {
		_, err := cfg.Prepare(tc.h, []byte(tc.body), testNow)
		if !errors.Is(err, tc.err) {
			t.Errorf("%d: expected %v got %v", i, tc.err, err)
		}
	}
}

func TestPrepareRepeatedNewsgroups(t *testing.T) {
	cfg := DefaultPrepareConfig
	a, err := cfg.Prepare(
		hdrs("Newsgroups", "misc.a", "Subject", "x", "Newsgroups", "misc.b, misc.a"),
		nil, testNow)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got := strings.Join(a.Newsgroups, " "); got != "misc.a misc.b" {
		t.Errorf("unexpected groups %q", got)
	}
	if vs := a.Headers.GetAll("Newsgroups"); len(vs) != 1 || vs[0] != "misc.a,misc.b" {
		t.Errorf("Newsgroups not collapsed: %q", vs)
	}
}

func TestDecodeHeaderText(t *testing.T) {
	tests := map[string]string{
		"plain":                        "plain",
		"=?UTF-8?B?0L/RgNC40LLQtdGC?=": "\u043f\u0440\u0438\u0432\u0435\u0442",
		"=?ISO-8859-1?Q?caf=E9?= time": "caf\u00e9 time",
		"tab\there":                    "tab here",
		"=?x-unknown?Q?raw?=":          "=?x-unknown?Q?raw?=",
		"e\u0301":                      "\u00e9",
	}
	for in, exp := range tests {
		if got := DecodeHeaderText(in); got != exp {
			t.Errorf("%q: expected %q got %q", in, exp, got)
		}
	}
}

func TestCountLines(t *testing.T) {
	tests := map[string]int64{
		"":         0,
		"a":        1,
		"a\n":      1,
		"a\nb":     2,
		"a\n\nb\n": 3,
	}
	for in, exp := range tests {
		if got := CountLines([]byte(in)); got != exp {
			t.Errorf("%q: expected %d got %d", in, exp, got)
		}
	}
}
