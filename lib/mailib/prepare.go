package mailib

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"newsbase/lib/mail"
	"newsbase/lib/minimail"
	"newsbase/lib/store"
)

var ErrArticleTooLarge = errors.New("article too large")

type PrepareConfig struct {
	NodeName    string // domain part of generated message-IDs
	MaxBodySize int    // 0 means no limit
	MaxGroups   int    // crosspost limit, 0 means no limit
	StrictDate  bool   // reject Date values only permissive parser accepts
}

var DefaultPrepareConfig = PrepareConfig{
	NodeName:    "localhost",
	MaxBodySize: 4 << 20,
	MaxGroups:   16,
}

func malformed(f string, args ...interface{}) error {
	return fmt.Errorf(f+": %w", append(args, mail.ErrMalformedHeaders)...)
}

// Prepare validates submission and builds article ready to be stored.
// Message-ID and Date are added when absent. Input headers aren't modified.
// PostedAt and Poster are left for caller.
func (cfg *PrepareConfig) Prepare(
	H mail.HeaderList, body []byte, now time.Time) (*store.Article, error) {

	if cfg.MaxBodySize > 0 && len(body) > cfg.MaxBodySize {
		return nil, xerrors.Errorf(
			"body of %d bytes exceeds %d: %w",
			len(body), cfg.MaxBodySize, ErrArticleTooLarge)
	}

	H = H.Clone()
	H.Canonicalize()
	if err := H.Validate(); err != nil {
		return nil, err
	}

	// singular headers
	for _, k := range [...]string{"Message-ID", "Date", "Subject", "From"} {
		if len(H.GetAll(k)) > 1 {
			return nil, malformed("multiple %s headers", k)
		}
	}

	// repeated Newsgroups headers add up into one list
	ngs := mail.SplitNewsgroups(strings.Join(H.GetAll("Newsgroups"), ","))
	if len(ngs) == 0 {
		return nil, malformed("missing Newsgroups")
	}
	if cfg.MaxGroups > 0 && len(ngs) > cfg.MaxGroups {
		return nil, malformed("too many newsgroups (%d > %d)", len(ngs), cfg.MaxGroups)
	}
	for _, g := range ngs {
		if err := store.CheckGroupName(g); err != nil {
			return nil, fmt.Errorf("Newsgroups: %w: %w", mail.ErrMalformedHeaders, err)
		}
	}
	H.Set("Newsgroups", strings.Join(ngs, ","))

	var msgid minimail.FullMsgID
	if H.Has("Message-ID") {
		var err error
		msgid, err = minimail.ParseMessageID(H.Get("Message-ID"))
		if err != nil {
			return nil, err
		}
		H.Set("Message-ID", string(msgid))
	} else {
		msgid = minimail.NewMessageID(now, cfg.NodeName)
		H.Set("Message-ID", string(msgid))
	}

	if d := H.Get("Date"); d != "" {
		if _, err := mail.ParseDateX(d, !cfg.StrictDate); err != nil {
			return nil, malformed("Date %q", d)
		}
	} else {
		H.Set("Date", mail.FormatDate(now))
	}

	a := &store.Article{
		MessageID:  msgid,
		Headers:    H,
		Body:       body,
		Newsgroups: ngs,
	}
	hb, err := mail.HeadersBytes(H)
	if err != nil {
		return nil, malformed("%v", err)
	}
	a.Snapshot = MakeSnapshot(H, len(hb), body)
	if a.Digest, err = a.ComputeDigest(); err != nil {
		return nil, err
	}
	return a, nil
}

// CountLines counts body lines, last one may lack LF.
func CountLines(body []byte) int64 {
	n := int64(bytes.Count(body, []byte{'\n'}))
	if len(body) != 0 && body[len(body)-1] != '\n' {
		n++
	}
	return n
}
