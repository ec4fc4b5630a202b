package minimail

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"newsbase/lib/utils/hashtools"
	au "newsbase/lib/utils/text/asciiutils"
)

// message-ID types kept in small package so that everything
// can use them without pulling in whole header machinery

type FullMsgID string // msgid including < and >
type CoreMsgID string // msgid excluding < and >

const MaxMessageIDLen = 250

var ErrMalformedIdentifier = errors.New("malformed message-id")

func (id FullMsgID) Core() CoreMsgID {
	if len(id) < 2 {
		return ""
	}
	return CoreMsgID(id[1 : len(id)-1])
}

func (id CoreMsgID) Full() FullMsgID {
	return FullMsgID("<" + id + ">")
}

// ValidMessageID checks <local@domain> shape:
// printable ASCII without whitespace or control bytes,
// exactly one @ with both sides non-empty.
func ValidMessageID(id FullMsgID) bool {
	if len(id) < 5 || len(id) > MaxMessageIDLen ||
		id[0] != '<' || id[len(id)-1] != '>' {

		return false
	}
	core := string(id.Core())
	if !au.IsPrintableASCIIStr(core, '>') || strings.IndexByte(core, '<') >= 0 {
		return false
	}
	at := strings.IndexByte(core, '@')
	return at > 0 && at < len(core)-1 &&
		strings.IndexByte(core[at+1:], '@') < 0
}

// ParseMessageID trims surrounding whitespace and validates.
func ParseMessageID(s string) (FullMsgID, error) {
	id := FullMsgID(au.TrimWSString(s))
	if !ValidMessageID(id) {
		return "", xerrors.Errorf("%q: %w", s, ErrMalformedIdentifier)
	}
	return id, nil
}

// ValidNodeName checks whether name can be used as domain part of generated IDs.
func ValidNodeName(name string) bool {
	return name != "" && len(name) < MaxMessageIDLen/2 &&
		au.IsPrintableASCIIStr(name, '>') &&
		strings.IndexByte(name, '@') < 0 &&
		strings.IndexByte(name, '<') < 0
}

// NewMessageID generates fresh ID: TAI64-like timestamp and random part.
func NewMessageID(t time.Time, node string) FullMsgID {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(0x4000000000000000+t.Unix()))

	var r [10]byte
	if _, err := crand.Read(r[:]); err != nil {
		// fall back to nanoseconds; still unique enough with timestamp part
		binary.BigEndian.PutUint64(r[:], uint64(t.UnixNano()))
	}

	return FullMsgID("<" +
		hashtools.LowerBase32HexEnc.EncodeToString(b[:]) + "." +
		hashtools.LowerBase32HexEnc.EncodeToString(r[:]) + "@" + node + ">")
}
