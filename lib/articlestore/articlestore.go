// Package articlestore persists articles keyed by message-ID and fans
// them out into groups atomically.
package articlestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"newsbase/lib/acl"
	"newsbase/lib/groupindex"
	"newsbase/lib/mail"
	"newsbase/lib/mailib"
	"newsbase/lib/minimail"
	"newsbase/lib/store"
	"newsbase/lib/utils/logx"
)

type Config struct {
	Backend store.Backend
	Index   *groupindex.Index
	ACL     *acl.Engine
	Prepare mailib.PrepareConfig
	// HideUnreadable reports unreadable articles as absent on fetch.
	HideUnreadable bool
	// ExpireBatch is number of rows removed per expiry transaction.
	ExpireBatch int
	Logger      logx.LoggerX
	Now         func() time.Time
}

var DefaultConfig = Config{
	Prepare:     mailib.DefaultPrepareConfig,
	ExpireBatch: 500,
}

type Store struct {
	b     store.Backend
	idx   *groupindex.Index
	acl   *acl.Engine
	prep  mailib.PrepareConfig
	hide  bool
	batch int
	log   logx.Logger
	clock monoClock
}

func New(cfg Config) *Store {
	s := &Store{
		b:     cfg.Backend,
		idx:   cfg.Index,
		acl:   cfg.ACL,
		prep:  cfg.Prepare,
		hide:  cfg.HideUnreadable,
		batch: cfg.ExpireBatch,
		log:   logx.NewLogToX(cfg.Logger, "articlestore"),
	}
	s.clock.now = cfg.Now
	if s.clock.now == nil {
		s.clock.now = time.Now
	}
	if s.acl == nil {
		s.acl = acl.NewEngine(nil)
	}
	if s.idx == nil {
		s.idx = groupindex.New(groupindex.Config{
			Backend: cfg.Backend,
			ACL:     s.acl,
			Logger:  cfg.Logger,
		})
	}
	if s.batch <= 0 {
		s.batch = DefaultConfig.ExpireBatch
	}
	return s
}

// monoClock hands out non-decreasing timestamps at storage precision.
type monoClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (c *monoClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// Post stores article and allocates its number in every target group,
// all in one transaction. Already known message-ID is accepted
// without storing anything.
func (s *Store) Post(
	ctx context.Context, H mail.HeaderList, body []byte, poster acl.Identity) (
	minimail.FullMsgID, error) {

	now := s.clock.next()
	a, err := s.prep.Prepare(H, body, now)
	if err != nil {
		return "", err
	}
	a.PostedAt = now
	a.Poster = string(poster)

	// fixed order of group row locks avoids deadlocks between crossposts
	groups := append([]string(nil), a.Newsgroups...)
	sort.Strings(groups)

	var (
		dup  bool
		nums []int64
	)
	err = s.b.Update(ctx, func(tx store.Tx) error {
		pol := s.acl.Snapshot()
		for _, gn := range groups {
			g, err := tx.GetGroup(gn)
			if err != nil {
				return err
			}
			if err = pol.Check(poster, acl.OpPost, groupindex.GroupInfo(g)); err != nil {
				return err
			}
		}

		stored, err := tx.InsertArticle(a)
		if err != nil {
			return err
		}
		if !stored {
			dup = true
			return nil
		}

		nums = nums[:0]
		for _, gn := range groups {
			n, err := s.idx.Allocate(tx, gn, a.MessageID, a.Snapshot, a.PostedAt)
			if err != nil {
				return err
			}
			nums = append(nums, n)
		}
		return nil
	})
	if err != nil {
		if xerrors.Is(err, acl.ErrAccessDenied) {
			s.log.LogPrintf(logx.INFO, "post %s denied: %v", a.MessageID, err)
		}
		return "", xerrors.Errorf("post %s: %w", a.MessageID, err)
	}

	if dup {
		s.log.LogPrintf(logx.DEBUG, "post %s: already have it", a.MessageID)
		return a.MessageID, nil
	}
	s.log.LogPrintf(logx.INFO, "posted %s by %s into %v as %v",
		a.MessageID, poster, groups, nums)
	return a.MessageID, nil
}

// Fetch returns article if requester may read at least one of its groups.
func (s *Store) Fetch(
	ctx context.Context, id string, requester acl.Identity) (*store.Article, error) {

	msgid, err := minimail.ParseMessageID(id)
	if err != nil {
		return nil, err
	}

	var (
		a        *store.Article
		readable bool
	)
	err = s.b.View(ctx, func(tx store.Tx) (err error) {
		a, err = tx.GetArticle(msgid)
		if err != nil {
			return
		}
		if a.Xref, err = tx.ArticleRefs(msgid); err != nil {
			return
		}
		if len(a.Xref) == 0 {
			// cancelled between reads
			return xerrors.Errorf("%s: %w", msgid, store.ErrArticleNotFound)
		}
		pol := s.acl.Snapshot()
		readable = false
		for _, r := range a.Xref {
			g, err := tx.GetGroup(r.Group)
			if err != nil {
				return err
			}
			if pol.CanRead(requester, groupindex.GroupInfo(g)) {
				readable = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !readable {
		if s.hide {
			return nil, xerrors.Errorf("%s: %w", msgid, store.ErrArticleNotFound)
		}
		s.log.LogPrintf(logx.INFO, "fetch of %s by %s denied", msgid, requester)
		return nil, acl.Denied(requester, acl.OpRead, string(msgid))
	}

	d, err := a.ComputeDigest()
	if err != nil || d != a.Digest {
		s.log.LogPrintf(logx.ERROR, "article %s fails digest check", msgid)
		return nil, xerrors.Errorf("%s: %w", msgid, store.ErrIntegrity)
	}

	hb, _ := mail.HeadersBytes(a.Headers)
	a.Snapshot = mailib.MakeSnapshot(a.Headers, len(hb), a.Body)
	return a, nil
}

// reapArticle deletes article once no group refers to it and remembers its ID.
func (s *Store) reapArticle(tx store.Tx, id minimail.FullMsgID, now time.Time) (bool, error) {
	deleted, err := tx.DeleteArticleIfUnreferenced(id)
	if err != nil || !deleted {
		return false, err
	}
	return true, tx.AddHistory(id, now)
}

// Expire removes rows of group posted before cutoff, deleting articles
// which are left without rows in any group, and advances low water.
// Only rows existing when sweep started are considered.
func (s *Store) Expire(ctx context.Context, group string, cutoff time.Time) (int, error) {
	g, err := s.idx.Group(ctx, group)
	if err != nil {
		return 0, err
	}
	hwStart := g.High
	now := s.clock.next()

	total, reaped := 0, 0
	for {
		n := 0
		err = s.b.Update(ctx, func(tx store.Tx) error {
			n = 0
			var ids []minimail.FullMsgID
			err := tx.ScanExpired(group, hwStart, cutoff, s.batch,
				func(r store.OverviewRow) error {
					n++
					ids = append(ids, r.MessageID)
					return tx.DeleteOverview(r.Group, r.Number)
				})
			if err != nil {
				return err
			}
			for _, id := range ids {
				del, err := s.reapArticle(tx, id, now)
				if err != nil {
					return err
				}
				if del {
					reaped++
				}
			}
			_, err = s.idx.AdvanceLowWater(tx, group)
			return err
		})
		if err != nil {
			return total, xerrors.Errorf("expire %q: %w", group, err)
		}
		total += n
		if n < s.batch {
			break
		}
	}
	if total != 0 {
		s.log.LogPrintf(logx.INFO,
			"expired %d rows from %q (before %s), %d articles removed",
			total, group, cutoff.Format(time.RFC3339), reaped)
	}
	return total, nil
}

// Cancel removes article from every group. Allowed for its poster and admins.
func (s *Store) Cancel(ctx context.Context, id string, requester acl.Identity) error {
	msgid, err := minimail.ParseMessageID(id)
	if err != nil {
		return err
	}
	now := s.clock.next()
	err = s.b.Update(ctx, func(tx store.Tx) error {
		a, err := tx.GetArticle(msgid)
		if err != nil {
			return err
		}
		pol := s.acl.Snapshot()
		isPoster := requester != acl.Anonymous && a.Poster == string(requester)
		if !isPoster && !pol.Allowed(requester, acl.OpCancel, acl.GroupInfo{}) {
			return acl.Denied(requester, acl.OpCancel, string(msgid))
		}
		refs, err := tx.ArticleRefs(msgid)
		if err != nil {
			return err
		}
		for _, r := range refs {
			if err = tx.DeleteOverview(r.Group, r.Number); err != nil {
				return err
			}
			if _, err = s.idx.AdvanceLowWater(tx, r.Group); err != nil {
				return err
			}
		}
		_, err = s.reapArticle(tx, msgid, now)
		return err
	})
	if err != nil {
		return xerrors.Errorf("cancel %s: %w", msgid, err)
	}
	s.log.LogPrintf(logx.NOTICE, "cancelled %s by %s", msgid, requester)
	return nil
}

// PruneHistory forgets removed message-IDs older than before,
// allowing them to be accepted again.
func (s *Store) PruneHistory(ctx context.Context, before time.Time) (n int64, err error) {
	err = s.b.Update(ctx, func(tx store.Tx) (e error) {
		n, e = tx.PruneHistory(before)
		return
	})
	if err == nil && n != 0 {
		s.log.LogPrintf(logx.INFO, "pruned %d history entries", n)
	}
	return
}
