package main

import (
	"testing"

	"newsbase/lib/store"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		s    string
		want store.Range
		ok   bool
	}{
		{"5", store.Range{Lo: 5, Hi: 5}, true},
		{"5-", store.Range{Lo: 5}, true},
		{"-7", store.Range{Hi: 7}, true},
		{"3-9", store.Range{Lo: 3, Hi: 9}, true},
		{"x-9", store.Range{}, false},
		{"3-y", store.Range{}, false},
	}
	for _, tt := range tests {
		r, err := parseRange(tt.s)
		if (err == nil) != tt.ok || (tt.ok && r != tt.want) {
			t.Errorf("%q: %+v %v", tt.s, r, err)
		}
	}
}

func TestColorMode(t *testing.T) {
	if colorModeOf("on") == colorModeOf("off") || colorModeOf("") != colorModeOf("auto") {
		t.Error("color modes mixed up")
	}
}
