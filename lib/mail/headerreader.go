package mail

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	au "newsbase/lib/utils/text/asciiutils"
)

// DefaultHeadLimit is used when ReadHeaders gets non-positive limit.
const DefaultHeadLimit = 64 << 10

// ReadHeaders reads header block up to and including empty line.
// Body remains in br. Total consumed size is capped by headlimit.
func ReadHeaders(br *bufio.Reader, headlimit int) (H HeaderList, e error) {
	if headlimit <= 0 {
		headlimit = DefaultHeadLimit
	}

	var (
		cur   bytes.Buffer // current logical line content
		name  string       // current canonical name, "" if none
		orig  string
		total int
	)

	finishCurrent := func() error {
		if name == "" {
			return nil
		}
		v := cur.Bytes()
		if !validHeaderContent(v) {
			return errInvalidHeaderContent(name, v)
		}
		H = append(H, HeaderListVal{
			K: name,
			V: string(au.TrimWSBytes(v)),
			O: orig,
		})
		name, orig = "", ""
		cur.Reset()
		return nil
	}

	for {
		line, err := br.ReadSlice('\n')
		total += len(line)
		if total > headlimit {
			return nil, errHeadTooLarge
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			// overlong physical line, keep pulling until LF
			buf := append([]byte(nil), line...)
			for errors.Is(err, bufio.ErrBufferFull) {
				line, err = br.ReadSlice('\n')
				total += len(line)
				if total > headlimit {
					return nil, errHeadTooLarge
				}
				buf = append(buf, line...)
			}
			line = buf
		}
		if err != nil {
			if err == io.EOF {
				return nil, errUnterminatedHead
			}
			return nil, err
		}

		line = line[:len(line)-1] // LF
		if len(line) != 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		if len(line) == 0 {
			// empty line terminates headers
			if e = finishCurrent(); e != nil {
				return nil, e
			}
			return H, nil
		}

		if line[0] == ' ' || line[0] == '\t' {
			// logical continuation
			if name == "" {
				return nil, errInvalidContinuation
			}
			if len(au.TrimWSBytes(line)) == 0 ||
				len(au.TrimWSBytes(cur.Bytes())) == 0 {

				return nil, errEmptyFold
			}
			cur.Write(line)
			continue
		}

		if e = finishCurrent(); e != nil {
			return nil, e
		}

		nn := bytes.IndexByte(line, ':')
		if nn < 0 {
			return nil, errMissingColon
		}
		hn := nn
		// strip possible whitespace before ':'
		for hn != 0 && (line[hn-1] == ' ' || line[hn-1] == '\t') {
			hn--
		}
		if hn == 0 {
			return nil, errEmptyHeaderName
		}
		if !ValidHeaderName(line[:hn]) {
			return nil, errInvalidHeaderName(line[:hn])
		}
		name, orig = mapCanonicalOriginalHeader(string(line[:hn]))

		nn++
		for nn < len(line) && (line[nn] == ' ' || line[nn] == '\t') {
			nn++
		}
		cur.Write(line[nn:])
	}
}
