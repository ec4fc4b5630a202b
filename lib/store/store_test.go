package store

import (
	"context"
	"errors"
	"testing"
)

func TestValidGroupName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"rec.arts.turtles", true},
		{"x", true},
		{"alt.any.thing", true},
		{"example.test", true},
		{"to.bob", true},
		{"poster", true},
		{"comp.lang.c#", true},
		{"a..b", true},
		{"", false},
		{"a b", false},
		{"a\tb", false},
		{"a,b", false},
		{"a\x00b", false},
		{"a\x7fb", false},
	}
	for _, tc := range tests {
		if ok := ValidGroupName(tc.name); ok != tc.ok {
			t.Errorf("%q: expected %v got %v", tc.name, tc.ok, ok)
		}
	}
	if err := CheckGroupName("a,b"); !errors.Is(err, ErrInvalidGroupName) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestConventionalGroupName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"rec.arts.turtles", true},
		{"misc.test", true},
		{"alt.binaries.c++", true},
		{"x", true},
		{"", false},
		{".a", false},
		{"a.", false},
		{"a..b", false},
		{"comp.lang.c#", false},
		{"example", false},
		{"example.test", false},
		{"examples.test", true},
		{"poster", false},
		{"to.somehost", false},
		{"alt.any.thing", false},
		{"alt.anything", true},
	}
	for _, tc := range tests {
		if ok := ConventionalGroupName(tc.name); ok != tc.ok {
			t.Errorf("%q: expected %v got %v", tc.name, tc.ok, ok)
		}
	}
}

func TestRangeClip(t *testing.T) {
	tests := []struct {
		r         Range
		low, high int64
		exp       Range
		empty     bool
	}{
		{Range{1, 10}, 1, 5, Range{1, 5}, false},
		{Range{}, 3, 7, Range{3, 7}, false},
		{Range{5, 0}, 1, 9, Range{5, 9}, false},
		{Range{1, 2}, 4, 9, Range{4, 2}, true},
		{Range{}, 1, 0, Range{1, 0}, true},
	}
	for i, tc := range tests {
		got := tc.r.Clip(tc.low, tc.high)
		if got != tc.exp || got.Empty() != tc.empty {
			t.Errorf("%d: expected %v (empty %v) got %v", i, tc.exp, tc.empty, got)
		}
	}
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("connection reset")
	err := Unavailable(cause)
	if !IsRetryable(err) || !errors.Is(err, cause) {
		t.Errorf("wrapped error lost identity: %v", err)
	}
	if Unavailable(err) != err {
		t.Error("double wrap")
	}
	if Unavailable(nil) != nil {
		t.Error("nil should stay nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	if CtxErr(ctx) != nil {
		t.Error("live context reported error")
	}
	cancel()
	if err = CtxErr(ctx); !IsRetryable(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected %v", err)
	}
}

func TestPostingStatus(t *testing.T) {
	for _, s := range []string{"", "y", "n", "m"} {
		p, err := ParsePostingStatus(s)
		if err != nil || p.String() != s {
			t.Errorf("%q: got %v %v", s, p, err)
		}
	}
	if _, err := ParsePostingStatus("x"); err == nil {
		t.Error("expected error")
	}
}
