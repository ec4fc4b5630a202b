package mail

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

var ErrHeaderLineTooLong = errors.New("header line is too long")

// MaxHeaderLineLen is hard cap on single written header line.
const MaxHeaderLineLen = 16 << 10

// WriteHeaders writes headers in stored order followed by empty line.
// Values are written as is; folding done by reader is not restored.
func WriteHeaders(w io.Writer, H HeaderList) (err error) {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	for _, h := range H {
		n := h.Name()
		if len(n)+2+len(h.V) > MaxHeaderLineLen {
			return fmt.Errorf("%q: %w", n, ErrHeaderLineTooLong)
		}
		bw.WriteString(n)
		bw.WriteString(": ")
		bw.WriteString(h.V)
		bw.WriteByte('\n')
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

// HeadersBytes returns serialized header block.
func HeadersBytes(H HeaderList) ([]byte, error) {
	var b bytes.Buffer
	if err := WriteHeaders(&b, H); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
