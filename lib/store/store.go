// Package store defines persistent data model of news backend
// and transactional substrate interface implemented by backends.
package store

import (
	"context"
	"fmt"
	"time"

	"newsbase/lib/mail"
	"newsbase/lib/minimail"
	"newsbase/lib/utils/hashtools"
)

type PostingStatus byte

const (
	PostingUnset     PostingStatus = 0
	PostingAllowed   PostingStatus = 'y'
	PostingDenied    PostingStatus = 'n'
	PostingModerated PostingStatus = 'm'
)

func (p PostingStatus) String() string {
	if p == PostingUnset {
		return ""
	}
	return string(rune(p))
}

// ParsePostingStatus accepts y/n/m as in active file, and empty for unset.
func ParsePostingStatus(s string) (PostingStatus, error) {
	switch s {
	case "":
		return PostingUnset, nil
	case "y":
		return PostingAllowed, nil
	case "n":
		return PostingDenied, nil
	case "m":
		return PostingModerated, nil
	}
	return 0, fmt.Errorf("invalid posting status %q", s)
}

// Group is newsgroup with its watermarks.
// Empty group has Low == High+1.
type Group struct {
	Name        string
	Posting     PostingStatus
	Description string
	Low         int64
	High        int64
	Created     time.Time
}

// Count estimates number of articles, as NNTP GROUP does.
func (g Group) Count() int64 {
	if g.High < g.Low {
		return 0
	}
	return g.High - g.Low + 1
}

// Snapshot is denormalised summary stored with overview row.
type Snapshot struct {
	Subject    string    `cbor:"1,keyasint"`
	From       string    `cbor:"2,keyasint"`
	Date       time.Time `cbor:"3,keyasint"`
	References string    `cbor:"4,keyasint,omitempty"`
	Bytes      int64     `cbor:"5,keyasint"`
	Lines      int64     `cbor:"6,keyasint"`
}

type OverviewRow struct {
	Group     string
	Number    int64
	MessageID minimail.FullMsgID
	Snapshot
	PostedAt time.Time
}

type ArticleRef struct {
	Group  string
	Number int64
}

func (r ArticleRef) String() string {
	return fmt.Sprintf("%s:%d", r.Group, r.Number)
}

type Article struct {
	MessageID  minimail.FullMsgID
	Headers    mail.HeaderList
	Body       []byte
	Newsgroups []string
	PostedAt   time.Time
	Poster     string
	Digest     hashtools.Digest
	Snapshot   Snapshot

	// Xref is filled on fetch; not stored.
	Xref []ArticleRef
}

// ComputeDigest returns digest over serialized headers and body.
func (a *Article) ComputeDigest() (hashtools.Digest, error) {
	hb, err := mail.HeadersBytes(a.Headers)
	if err != nil {
		return hashtools.Digest{}, err
	}
	return hashtools.DigestParts(hb, a.Body), nil
}

// Range of article numbers, inclusive. Zero bound means open end.
type Range struct {
	Lo int64
	Hi int64
}

var AllRange = Range{}

// Clip intersects r with [low, high].
func (r Range) Clip(low, high int64) Range {
	if r.Lo < low {
		r.Lo = low
	}
	if r.Hi <= 0 || r.Hi > high {
		r.Hi = high
	}
	return r
}

func (r Range) Empty() bool {
	return r.Hi < r.Lo
}

// Tx is single backend transaction.
// Methods observe context Tx was started with.
type Tx interface {
	CreateGroup(g Group) error
	GetGroup(name string) (Group, error)
	ListGroups(fn func(Group) error) error
	SetGroupPosting(name string, p PostingStatus) error
	// NextArticleNumber atomically advances high water of group
	// and returns new value.
	NextArticleNumber(group string) (int64, error)
	SetLowWater(group string, low int64) error

	InsertOverview(row OverviewRow) error
	// ScanOverview calls fn for rows lo <= num <= hi ascending, up to limit
	// (non-positive limit means no limit).
	ScanOverview(group string, lo, hi int64, limit int, fn func(OverviewRow) error) error
	// ScanExpired calls fn for rows num <= maxNum posted before cutoff, ascending.
	ScanExpired(group string, maxNum int64, cutoff time.Time, limit int, fn func(OverviewRow) error) error
	// OverviewLowest returns lowest present article number.
	OverviewLowest(group string) (num int64, ok bool, err error)
	DeleteOverview(group string, num int64) error

	// InsertArticle stores article unless its message-ID is already
	// known either as article or in history; returns whether it was stored.
	InsertArticle(a *Article) (bool, error)
	GetArticle(id minimail.FullMsgID) (*Article, error)
	ArticleRefs(id minimail.FullMsgID) ([]ArticleRef, error)
	// DeleteArticleIfUnreferenced removes article if no overview rows
	// point to it anymore.
	DeleteArticleIfUnreferenced(id minimail.FullMsgID) (bool, error)

	AddHistory(id minimail.FullMsgID, at time.Time) error
	PruneHistory(before time.Time) (int64, error)
}

// Backend is transactional substrate.
// Update commits if fn returns nil and rolls back otherwise,
// including when ctx is done before commit.
type Backend interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}
