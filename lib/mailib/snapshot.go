package mailib

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/unicode/norm"

	"newsbase/lib/mail"
	"newsbase/lib/store"
)

var wordDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		cod, err := ianaindex.MIME.Encoding(charset)
		if err != nil {
			return nil, err
		}
		if cod == nil {
			return nil, fmt.Errorf("unsupported charset %q", charset)
		}
		return cod.NewDecoder().Reader(input), nil
	},
}

// DecodeHeaderText decodes RFC 2047 encoded-words and normalises result
// so that it fits into single overview field.
func DecodeHeaderText(s string) string {
	if d, err := wordDecoder.DecodeHeader(s); err == nil {
		s = d
	}
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\r' || r == '\n' {
			return ' '
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

// MakeSnapshot builds overview summary.
// headSize is length of serialized header block.
func MakeSnapshot(H mail.HeaderList, headSize int, body []byte) (s store.Snapshot) {
	s.Subject = DecodeHeaderText(H.Get("Subject"))
	s.From = DecodeHeaderText(H.Get("From"))
	if t, err := mail.ParseDateX(H.Get("Date"), true); err == nil {
		s.Date = t.UTC()
	}
	s.References = strings.Join(mail.SplitReferences(H.Get("References")), " ")
	s.Bytes = int64(headSize + len(body))
	s.Lines = CountLines(body)
	return
}
