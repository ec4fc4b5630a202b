// Package groupindex maintains per-group article numbering,
// watermarks and overview rows.
package groupindex

import (
	"context"
	"iter"
	"time"

	"newsbase/lib/acl"
	"newsbase/lib/minimail"
	"newsbase/lib/store"
	"newsbase/lib/utils/logx"
)

type Config struct {
	Backend  store.Backend
	ACL      *acl.Engine
	PageSize int // rows fetched per read transaction while listing
	Logger   logx.LoggerX
}

var DefaultConfig = Config{
	PageSize: 256,
}

type Index struct {
	b    store.Backend
	acl  *acl.Engine
	page int
	log  logx.Logger
}

func New(cfg Config) *Index {
	x := &Index{
		b:    cfg.Backend,
		acl:  cfg.ACL,
		page: cfg.PageSize,
		log:  logx.NewLogToX(cfg.Logger, "groupindex"),
	}
	if x.acl == nil {
		x.acl = acl.NewEngine(nil)
	}
	if x.page <= 0 {
		x.page = DefaultConfig.PageSize
	}
	return x
}

func GroupInfo(g store.Group) acl.GroupInfo {
	return acl.GroupInfo{Name: g.Name, Posting: g.Posting}
}

// Allocate assigns next number in group and stores overview row.
// It runs in caller's transaction so that it commits together with article.
func (x *Index) Allocate(
	tx store.Tx, group string, id minimail.FullMsgID,
	snap store.Snapshot, postedAt time.Time) (int64, error) {

	num, err := tx.NextArticleNumber(group)
	if err != nil {
		return 0, err
	}
	err = tx.InsertOverview(store.OverviewRow{
		Group:     group,
		Number:    num,
		MessageID: id,
		Snapshot:  snap,
		PostedAt:  postedAt,
	})
	if err != nil {
		return 0, err
	}
	return num, nil
}

// AdvanceLowWater moves low water past removed rows. It never goes back.
// Empty group gets high+1.
func (x *Index) AdvanceLowWater(tx store.Tx, group string) (int64, error) {
	g, err := tx.GetGroup(group)
	if err != nil {
		return 0, err
	}
	low, ok, err := tx.OverviewLowest(group)
	if err != nil {
		return 0, err
	}
	if !ok {
		low = g.High + 1
	}
	if low <= g.Low {
		return g.Low, nil
	}
	if err = tx.SetLowWater(group, low); err != nil {
		return 0, err
	}
	return low, nil
}

func (x *Index) Group(ctx context.Context, name string) (g store.Group, err error) {
	err = x.b.View(ctx, func(tx store.Tx) (e error) {
		g, e = tx.GetGroup(name)
		return
	})
	return
}

func (x *Index) Watermarks(ctx context.Context, group string) (low, high int64, err error) {
	g, err := x.Group(ctx, group)
	if err != nil {
		return 0, 0, err
	}
	return g.Low, g.High, nil
}

// Groups returns all groups ordered by name.
func (x *Index) Groups(ctx context.Context) (gs []store.Group, err error) {
	err = x.b.View(ctx, func(tx store.Tx) error {
		gs = gs[:0]
		return tx.ListGroups(func(g store.Group) error {
			gs = append(gs, g)
			return nil
		})
	})
	return
}

func (x *Index) CreateGroup(ctx context.Context, g store.Group) error {
	if g.Created.IsZero() {
		g.Created = time.Now().UTC()
	}
	err := x.b.Update(ctx, func(tx store.Tx) error {
		return tx.CreateGroup(g)
	})
	if err == nil {
		x.log.LogPrintf(logx.NOTICE, "created group %q (%s)", g.Name, g.Posting)
		if !store.ConventionalGroupName(g.Name) {
			x.log.LogPrintf(logx.NOTICE, "group name %q isn't RFC 5536 style", g.Name)
		}
	}
	return err
}

func (x *Index) SetPosting(ctx context.Context, group string, p store.PostingStatus) error {
	return x.b.Update(ctx, func(tx store.Tx) error {
		return tx.SetGroupPosting(group, p)
	})
}

// List returns rows of group within r, clipped to watermarks at call time.
// Group existence and read permission are checked before returning.
// Sequence reads in pages, each in its own read transaction, so it holds
// no transaction between pages and may be abandoned at any point.
func (x *Index) List(
	ctx context.Context, id acl.Identity, group string, r store.Range) (
	iter.Seq2[store.OverviewRow, error], error) {

	g, err := x.Group(ctx, group)
	if err != nil {
		return nil, err
	}
	if err = x.acl.Snapshot().Check(id, acl.OpRead, GroupInfo(g)); err != nil {
		x.log.LogPrintf(logx.INFO, "list denied: %v", err)
		return nil, err
	}
	r = r.Clip(g.Low, g.High)

	return func(yield func(store.OverviewRow, error) bool) {
		lo := r.Lo
		for !r.Empty() && lo <= r.Hi {
			var rows []store.OverviewRow
			err := x.b.View(ctx, func(tx store.Tx) error {
				rows = rows[:0]
				return tx.ScanOverview(group, lo, r.Hi, x.page,
					func(row store.OverviewRow) error {
						rows = append(rows, row)
						return nil
					})
			})
			if err != nil {
				yield(store.OverviewRow{}, err)
				return
			}
			for _, row := range rows {
				if !yield(row, nil) {
					return
				}
			}
			if len(rows) < x.page {
				return
			}
			lo = rows[len(rows)-1].Number + 1
		}
	}, nil
}

// Collect drains sequence returned by List.
func Collect(seq iter.Seq2[store.OverviewRow, error]) (rows []store.OverviewRow, err error) {
	for row, e := range seq {
		if e != nil {
			return rows, e
		}
		rows = append(rows, row)
	}
	return
}
