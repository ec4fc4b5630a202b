package boltstore

import (
	"encoding/binary"
	"time"

	"github.com/fxamacker/cbor/v2"

	"newsbase/lib/mail"
	"newsbase/lib/store"
	"newsbase/lib/utils/hashtools"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// keep sub-second precision of posting times
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("boltstore: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("boltstore: CBOR decoder initialization failed: " + err.Error())
	}
}

type groupRec struct {
	Posting     string    `cbor:"1,keyasint,omitempty"`
	Description string    `cbor:"2,keyasint,omitempty"`
	Low         int64     `cbor:"3,keyasint"`
	High        int64     `cbor:"4,keyasint"`
	Created     time.Time `cbor:"5,keyasint"`
}

type overviewRec struct {
	MessageID string         `cbor:"1,keyasint"`
	Snapshot  store.Snapshot `cbor:"2,keyasint"`
	PostedAt  time.Time      `cbor:"3,keyasint"`
}

type articleRec struct {
	Headers    mail.HeaderList  `cbor:"1,keyasint"`
	Body       []byte           `cbor:"2,keyasint"`
	Newsgroups []string         `cbor:"3,keyasint"`
	PostedAt   time.Time        `cbor:"4,keyasint"`
	Poster     string           `cbor:"5,keyasint,omitempty"`
	Digest     hashtools.Digest `cbor:"6,keyasint"`
}

func numKey(n int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

func keyNum(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func refKey(msgid, group string) []byte {
	k := make([]byte, 0, len(msgid)+1+len(group))
	k = append(k, msgid...)
	k = append(k, 0)
	return append(k, group...)
}
