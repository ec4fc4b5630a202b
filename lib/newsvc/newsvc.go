// Package newsvc is the entry point protocol layers call into.
// It wires article store, group index and access control over one backend.
package newsvc

import (
	"bufio"
	"context"
	"io"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"

	"newsbase/lib/acl"
	"newsbase/lib/articlestore"
	"newsbase/lib/groupindex"
	"newsbase/lib/mail"
	"newsbase/lib/mailib"
	"newsbase/lib/minimail"
	"newsbase/lib/store"
	"newsbase/lib/utils/logx"
)

type Config struct {
	Backend store.Backend
	Policy  *acl.Policy // nil means acl.DefaultPolicyConfig
	Prepare mailib.PrepareConfig

	HideUnreadable bool
	// OpTimeout bounds backend transactions when caller's context has no deadline.
	OpTimeout   time.Duration
	HeadLimit   int // raw header block limit for PostRaw
	ExpireBatch int
	PageSize    int

	Registerer prometheus.Registerer // nil leaves metrics unregistered
	Logger     logx.LoggerX
	Now        func() time.Time
}

var DefaultConfig = Config{
	Prepare:     mailib.DefaultPrepareConfig,
	OpTimeout:   30 * time.Second,
	HeadLimit:   mail.DefaultHeadLimit,
	ExpireBatch: articlestore.DefaultConfig.ExpireBatch,
	PageSize:    groupindex.DefaultConfig.PageSize,
}

type Service struct {
	acl   *acl.Engine
	idx   *groupindex.Index
	as    *articlestore.Store
	prep  mailib.PrepareConfig
	headl int
	m     *metrics
	log   logx.Logger
}

func New(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, xerrors.New("newsvc: no backend")
	}
	if cfg.Prepare.NodeName != "" && !minimail.ValidNodeName(cfg.Prepare.NodeName) {
		return nil, xerrors.Errorf("newsvc: invalid node name %q", cfg.Prepare.NodeName)
	}
	b := deadlineBackend{Backend: cfg.Backend, timeout: cfg.OpTimeout}
	eng := acl.NewEngine(cfg.Policy)
	idx := groupindex.New(groupindex.Config{
		Backend:  b,
		ACL:      eng,
		PageSize: cfg.PageSize,
		Logger:   cfg.Logger,
	})
	as := articlestore.New(articlestore.Config{
		Backend:        b,
		Index:          idx,
		ACL:            eng,
		Prepare:        cfg.Prepare,
		HideUnreadable: cfg.HideUnreadable,
		ExpireBatch:    cfg.ExpireBatch,
		Logger:         cfg.Logger,
		Now:            cfg.Now,
	})
	s := &Service{
		acl:   eng,
		idx:   idx,
		as:    as,
		prep:  cfg.Prepare,
		headl: cfg.HeadLimit,
		m:     newMetrics(cfg.Registerer),
		log:   logx.NewLogToX(cfg.Logger, "newsvc"),
	}
	if s.headl <= 0 {
		s.headl = mail.DefaultHeadLimit
	}
	return s, nil
}

// SetPolicy swaps access policy. Operations in flight keep the one they started with.
func (s *Service) SetPolicy(p *acl.Policy) {
	s.acl.Load(p)
	s.log.LogPrint(logx.NOTICE, "access policy replaced")
}

func (s *Service) Post(
	ctx context.Context, H mail.HeaderList, body []byte, id acl.Identity) (
	msgid minimail.FullMsgID, err error) {

	defer func(t time.Time) { s.m.observe("post", t, err) }(time.Now())
	return s.as.Post(ctx, H, body, id)
}

// PostRaw reads header block, empty line and body from r.
func (s *Service) PostRaw(
	ctx context.Context, r io.Reader, id acl.Identity) (
	msgid minimail.FullMsgID, err error) {

	defer func(t time.Time) { s.m.observe("post", t, err) }(time.Now())

	br := bufio.NewReader(r)
	H, err := mail.ReadHeaders(br, s.headl)
	if err != nil {
		return "", err
	}
	var lr io.Reader = br
	if s.prep.MaxBodySize > 0 {
		lr = io.LimitReader(br, int64(s.prep.MaxBodySize)+1)
	}
	body, err := io.ReadAll(lr)
	if err != nil {
		return "", xerrors.Errorf("reading body: %w", err)
	}
	if s.prep.MaxBodySize > 0 && len(body) > s.prep.MaxBodySize {
		return "", xerrors.Errorf(
			"body exceeds %d bytes: %w", s.prep.MaxBodySize, ErrArticleTooLarge)
	}
	return s.as.Post(ctx, H, body, id)
}

func (s *Service) Fetch(
	ctx context.Context, msgid string, id acl.Identity) (a *store.Article, err error) {

	defer func(t time.Time) { s.m.observe("fetch", t, err) }(time.Now())
	return s.as.Fetch(ctx, msgid, id)
}

// List returns overview rows of group within r, ascending by number.
func (s *Service) List(
	ctx context.Context, group string, r store.Range, id acl.Identity) (
	seq iter.Seq2[store.OverviewRow, error], err error) {

	defer func(t time.Time) { s.m.observe("list", t, err) }(time.Now())
	return s.idx.List(ctx, id, group, r)
}

func (s *Service) Watermarks(ctx context.Context, group string) (low, high int64, err error) {
	defer func(t time.Time) { s.m.observe("watermarks", t, err) }(time.Now())
	return s.idx.Watermarks(ctx, group)
}

// Expire removes rows of group older than cutoff, returning how many.
func (s *Service) Expire(ctx context.Context, group string, cutoff time.Time) (n int, err error) {
	defer func(t time.Time) { s.m.observe("expire", t, err) }(time.Now())
	n, err = s.as.Expire(ctx, group, cutoff)
	s.m.expired.Add(float64(n))
	return
}

func (s *Service) Cancel(ctx context.Context, msgid string, id acl.Identity) (err error) {
	defer func(t time.Time) { s.m.observe("cancel", t, err) }(time.Now())
	return s.as.Cancel(ctx, msgid, id)
}

func (s *Service) PruneHistory(ctx context.Context, before time.Time) (n int64, err error) {
	defer func(t time.Time) { s.m.observe("prune", t, err) }(time.Now())
	return s.as.PruneHistory(ctx, before)
}

func (s *Service) Groups(ctx context.Context) ([]store.Group, error) {
	return s.idx.Groups(ctx)
}

// CreateGroup is administrative; callers are trusted.
func (s *Service) CreateGroup(ctx context.Context, g store.Group) error {
	if err := store.CheckGroupName(g.Name); err != nil {
		return err
	}
	return s.idx.CreateGroup(ctx, g)
}

func (s *Service) SetPosting(ctx context.Context, group string, p store.PostingStatus) error {
	return s.idx.SetPosting(ctx, group, p)
}
