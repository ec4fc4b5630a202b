package mail

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	au "newsbase/lib/utils/text/asciiutils"
)

var ErrMalformedHeaders = errors.New("malformed headers")

func headerErr(s string) error {
	return fmt.Errorf("%s: %w", s, ErrMalformedHeaders)
}

var (
	errMissingColon        = headerErr("missing colon in header")
	errEmptyHeaderName     = headerErr("empty header name")
	errInvalidContinuation = headerErr("invalid header continuation")
	errEmptyFold           = headerErr("empty folding lines aren't allowed")
	errUnterminatedHead    = headerErr("unterminated header block")
	errHeadTooLarge        = headerErr("header block too large")
)

func errInvalidHeaderContent(k string, v []byte) error {
	return fmt.Errorf("invalid %q header content %#q: %w", k, v, ErrMalformedHeaders)
}

func errInvalidHeaderName(k []byte) error {
	return fmt.Errorf("invalid header name %#q: %w", k, ErrMalformedHeaders)
}

/*
 * some utility stuff
 */

func ValidHeaderName(h []byte) bool {
	return len(h) != 0 && au.IsPrintableASCIISlice(h, ':')
}

func validHeaderContent(b []byte) bool {
	has8bit := false
	for _, c := range b {
		if c == '\000' || c == '\r' || c == '\n' {
			return false
		}
		if c&0x80 != 0 {
			has8bit = true
		}
	}
	return !has8bit || utf8.Valid(b)
}

/*
 * header list stuff
 */

// HeaderListVal is single header line.
// K is canonical name, O is original spelling if it differs.
type HeaderListVal struct {
	K string `json:"k"`
	V string `json:"v"`
	O string `json:"h,omitempty"`
}

// HeaderList keeps headers in order they were seen.
type HeaderList []HeaderListVal

func (hv HeaderListVal) MarshalJSON() ([]byte, error) {
	if hv.O == "" {
		return json.Marshal([2]string{hv.K, hv.V})
	}
	type plain HeaderListVal
	return json.Marshal(plain(hv))
}

func (hv *HeaderListVal) UnmarshalJSON(b []byte) (err error) {
	var l [2]string
	if err = json.Unmarshal(b, &l); err == nil {
		*hv = HeaderListVal{K: l[0], V: l[1]}
		return
	}
	type plain HeaderListVal
	var p plain
	if err = json.Unmarshal(b, &p); err != nil {
		return
	}
	*hv = HeaderListVal(p)
	return
}

// Name returns header name how it should be written.
func (hv HeaderListVal) Name() string {
	if hv.O != "" {
		return hv.O
	}
	return hv.K
}

// NewHeaderVal canonicalises name.
func NewHeaderVal(name, value string) HeaderListVal {
	k, o := mapCanonicalOriginalHeader(name)
	return HeaderListVal{K: k, V: value, O: o}
}

func (hl HeaderList) index(name string) int {
	k, _ := mapCanonicalOriginalHeader(name)
	for i := range hl {
		if hl[i].K == k || au.EqualFoldString(hl[i].K, name) {
			return i
		}
	}
	return -1
}

// Get returns first value of header, case-insensitive.
func (hl HeaderList) Get(name string) string {
	if i := hl.index(name); i >= 0 {
		return hl[i].V
	}
	return ""
}

func (hl HeaderList) Has(name string) bool {
	return hl.index(name) >= 0
}

// GetAll returns all values of header in order.
func (hl HeaderList) GetAll(name string) (vals []string) {
	k, _ := mapCanonicalOriginalHeader(name)
	for i := range hl {
		if hl[i].K == k {
			vals = append(vals, hl[i].V)
		}
	}
	return
}

// Add appends header line.
func (hl *HeaderList) Add(name, value string) {
	*hl = append(*hl, NewHeaderVal(name, value))
}

// Set replaces value of first header with given name and drops others.
// If there's no such header, it's appended.
func (hl *HeaderList) Set(name, value string) {
	i := hl.index(name)
	if i < 0 {
		hl.Add(name, value)
		return
	}
	(*hl)[i].V = value
	k := (*hl)[i].K
	l := (*hl)[:i+1]
	for _, x := range (*hl)[i+1:] {
		if x.K != k {
			l = append(l, x)
		}
	}
	*hl = l
}

// Del removes all headers with given name.
func (hl *HeaderList) Del(name string) {
	k, _ := mapCanonicalOriginalHeader(name)
	l := (*hl)[:0]
	for _, x := range *hl {
		if x.K != k {
			l = append(l, x)
		}
	}
	*hl = l
}

func (hl HeaderList) Clone() HeaderList {
	if hl == nil {
		return nil
	}
	return append(HeaderList(nil), hl...)
}

// Validate checks headers built by hand, not read by ReadHeaders.
func (hl HeaderList) Validate() error {
	for _, h := range hl {
		if !ValidHeaderName([]byte(h.Name())) {
			return errInvalidHeaderName([]byte(h.Name()))
		}
		if !validHeaderContent([]byte(h.V)) {
			return errInvalidHeaderContent(h.K, []byte(h.V))
		}
	}
	return nil
}

// Canonicalize fixes up names of headers built by hand.
func (hl HeaderList) Canonicalize() {
	for i := range hl {
		hl[i] = NewHeaderVal(hl[i].Name(), hl[i].V)
	}
}
