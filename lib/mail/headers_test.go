package mail

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestHeaderListOps(t *testing.T) {
	var h HeaderList
	h.Add("subject", "one")
	h.Add("From", "a@b")
	h.Add("Subject", "two")

	if v := h.Get("SUBJECT"); v != "one" {
		t.Errorf("Get: got %q", v)
	}
	if vs := h.GetAll("Subject"); !reflect.DeepEqual(vs, []string{"one", "two"}) {
		t.Errorf("GetAll: got %q", vs)
	}
	if !h.Has("from") || h.Has("Date") {
		t.Error("Has misbehaves")
	}

	h.Set("Subject", "three")
	if vs := h.GetAll("Subject"); !reflect.DeepEqual(vs, []string{"three"}) {
		t.Errorf("Set: got %q", vs)
	}
	if h[0].K != "Subject" || h[0].O != "subject" {
		t.Errorf("Set should keep position and spelling, got %#v", h[0])
	}

	h.Set("Date", "now")
	if h[len(h)-1].K != "Date" {
		t.Errorf("Set of absent header should append, got %#v", h)
	}

	h.Del("subject")
	if h.Has("Subject") || len(h) != 2 {
		t.Errorf("Del: got %#v", h)
	}
}

func TestHeaderListCloneIndependent(t *testing.T) {
	h := HeaderList{{K: "A", V: "1"}}
	c := h.Clone()
	c[0].V = "2"
	if h[0].V != "1" {
		t.Error("clone shares storage")
	}
}

func TestHeaderListValidate(t *testing.T) {
	if err := (HeaderList{{K: "A", V: "ok"}}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (HeaderList{{K: "A", V: "bad\nvalue"}}).Validate(); err == nil {
		t.Error("expected error for LF in value")
	}
	if err := (HeaderList{{K: "Bad Name", V: "x"}}).Validate(); err == nil {
		t.Error("expected error for space in name")
	}
}

func TestCanonicalHeader(t *testing.T) {
	tests := map[string]string{
		"message-id":        "Message-ID",
		"MESSAGE-ID":        "Message-ID",
		"newsgroups":        "Newsgroups",
		"x-some-thing":      "X-Some-Thing",
		"nntp-posting-host": "NNTP-Posting-Host",
	}
	for in, exp := range tests {
		if got := CanonicalHeader(in); got != exp {
			t.Errorf("%q: expected %q got %q", in, exp, got)
		}
	}
}

func TestHeaderJSON(t *testing.T) {
	h := HeaderList{{K: "A", V: "b"}, {K: "Message-ID", V: "<x@y>", O: "message-id"}}
	b, err := json.Marshal(h)
	if err != nil {
		t.Fatal(err)
	}
	exp := `[["A","b"],{"k":"Message-ID","v":"\u003cx@y\u003e","h":"message-id"}]`
	if string(b) != exp {
		t.Errorf("expected %s got %s", exp, b)
	}
	var back HeaderList
	if err = json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, h) {
		t.Errorf("expected %#v got %#v", h, back)
	}
}

func TestSplitNewsgroups(t *testing.T) {
	got := SplitNewsgroups(" misc.test, comp.lang.go,,misc.test ,alt.x ")
	exp := []string{"misc.test", "comp.lang.go", "alt.x"}
	if !reflect.DeepEqual(got, exp) {
		t.Errorf("expected %q got %q", exp, got)
	}
	if SplitNewsgroups(" , ") != nil {
		t.Error("expected nil for empty list")
	}
}

func TestDate(t *testing.T) {
	tm := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)
	s := FormatDate(tm)
	if s != "Tue, 05 Mar 2024 07:08:09 +0000" {
		t.Errorf("unexpected format %q", s)
	}
	back, err := ParseDateX(s, false)
	if err != nil || !back.Equal(tm) {
		t.Errorf("parse back failed: %v %v", back, err)
	}
	if _, err = ParseDateX("05 Mar 2024 07:08:09", false); err == nil {
		t.Error("strict parse should fail")
	}
	if _, err = ParseDateX("05 Mar 2024 07:08:09", true); err != nil {
		t.Errorf("permissive parse failed: %v", err)
	}
}
