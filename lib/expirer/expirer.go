// Package expirer runs retention sweeps over groups on cron schedule.
package expirer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"newsbase/lib/store"
	"newsbase/lib/utils/logx"
)

var ErrSchedule = errors.New("invalid retention schedule")

// Rule keeps articles of groups matching Pattern for MaxAge.
// Zero MaxAge keeps them forever.
type Rule struct {
	Pattern string
	MaxAge  time.Duration
}

type Schedule struct {
	Cron        string
	Rules       []Rule
	HistoryKeep time.Duration // zero keeps history forever
}

var DefaultSchedule = Schedule{
	Cron:        "17 3 * * *",
	HistoryKeep: 30 * 24 * time.Hour,
}

type compiledRule struct {
	g      glob.Glob
	maxAge time.Duration
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	cr := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		p := r.Pattern
		if p == "" {
			p = "**"
		}
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, xerrors.Errorf("pattern %q: %v: %w", r.Pattern, err, ErrSchedule)
		}
		if r.MaxAge < 0 {
			return nil, xerrors.Errorf("pattern %q: negative age: %w", r.Pattern, ErrSchedule)
		}
		cr = append(cr, compiledRule{g: g, maxAge: r.MaxAge})
	}
	return cr, nil
}

func (s Schedule) Validate() error {
	if s.Cron != "" && !gronx.IsValid(s.Cron) {
		return xerrors.Errorf("cron %q: %w", s.Cron, ErrSchedule)
	}
	if s.HistoryKeep < 0 {
		return xerrors.Errorf("negative history keep: %w", ErrSchedule)
	}
	_, err := compileRules(s.Rules)
	return err
}

// Target is what sweeps operate on; newsvc.Service satisfies it.
type Target interface {
	Groups(ctx context.Context) ([]store.Group, error)
	Expire(ctx context.Context, group string, cutoff time.Time) (int, error)
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	Target   Target
	Schedule Schedule
	Parallel int // groups swept at once
	Logger   logx.LoggerX
	Now      func() time.Time
}

type Expirer struct {
	t     Target
	cron  string
	rules []compiledRule
	hist  time.Duration
	par   int
	now   func() time.Time
	log   logx.Logger

	mu sync.Mutex // one sweep at a time
}

func New(cfg Config) (*Expirer, error) {
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, err
	}
	rules, _ := compileRules(cfg.Schedule.Rules)
	e := &Expirer{
		t:     cfg.Target,
		cron:  cfg.Schedule.Cron,
		rules: rules,
		hist:  cfg.Schedule.HistoryKeep,
		par:   cfg.Parallel,
		now:   cfg.Now,
		log:   logx.NewLogToX(cfg.Logger, "expirer"),
	}
	if e.par <= 0 {
		e.par = 4
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// MaxAge returns retention of group, false if no rule limits it.
func (e *Expirer) MaxAge(group string) (time.Duration, bool) {
	for _, r := range e.rules {
		if r.g.Match(group) {
			return r.maxAge, r.maxAge > 0
		}
	}
	return 0, false
}

type Result struct {
	Groups  int   // groups swept
	Rows    int   // overview rows removed
	History int64 // history entries forgotten
}

// RunOnce sweeps every group with limited retention as of now,
// then prunes history. Failure in one group doesn't stop others.
func (e *Expirer) RunOnce(ctx context.Context, now time.Time) (res Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups, err := e.t.Groups(ctx)
	if err != nil {
		return res, xerrors.Errorf("listing groups: %w", err)
	}

	var (
		eg   errgroup.Group
		rmu  sync.Mutex
		errs []error
	)
	eg.SetLimit(e.par)
	for _, g := range groups {
		age, ok := e.MaxAge(g.Name)
		if !ok {
			continue
		}
		name := g.Name
		eg.Go(func() error {
			n, err := e.t.Expire(ctx, name, now.Add(-age))
			rmu.Lock()
			defer rmu.Unlock()
			res.Groups++
			res.Rows += n
			if err != nil {
				e.log.LogPrintf(logx.ERROR, "sweeping %q: %v", name, err)
				errs = append(errs, err)
			}
			return nil
		})
	}
	eg.Wait()

	if e.hist > 0 {
		n, herr := e.t.PruneHistory(ctx, now.Add(-e.hist))
		res.History = n
		if herr != nil {
			e.log.LogPrintf(logx.ERROR, "pruning history: %v", herr)
			errs = append(errs, herr)
		}
	}

	e.log.LogPrintf(logx.INFO, "sweep done: %d groups, %d rows, %d history",
		res.Groups, res.Rows, res.History)
	return res, errors.Join(errs...)
}

// Run sweeps on every cron tick until ctx is done.
func (e *Expirer) Run(ctx context.Context) error {
	if e.cron == "" {
		e.log.LogPrint(logx.NOTICE, "no cron schedule, retention disabled")
		<-ctx.Done()
		return nil
	}
	e.log.LogPrintf(logx.INFO, "retention on %q", e.cron)
	for {
		next, err := gronx.NextTickAfter(e.cron, e.now(), false)
		if err != nil {
			return xerrors.Errorf("cron %q: %w", e.cron, err)
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		if _, err = e.RunOnce(ctx, e.now()); err != nil && ctx.Err() == nil {
			e.log.LogPrintf(logx.WARN, "sweep finished with errors: %v", err)
		}
	}
}
