package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"newsbase/lib/acl"
	"newsbase/lib/expirer"
	"newsbase/lib/mail"
	"newsbase/lib/store"
	"newsbase/lib/utils/logx"
)

func flagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func identityFlag(fs *pflag.FlagSet) *string {
	return fs.String("as", os.Getenv("NEWSBASE_IDENTITY"), "identity to act as (default $NEWSBASE_IDENTITY)")
}

// withService opens service for one-shot command.
func (e *env) withService(fn func(ctx context.Context) error) error {
	ctx := context.Background()
	if err := e.open(ctx); err != nil {
		return err
	}
	defer e.close()
	return fn(ctx)
}

func runInitDB(e *env, args []string) error {
	if err := flagSet("initdb").Parse(args); err != nil {
		return err
	}
	return e.withService(func(context.Context) error {
		e.log.LogPrintf(logx.NOTICE, "database ready (%s)", e.cfg.Database.Driver)
		return nil
	})
}

func runNewGroup(e *env, args []string) error {
	fs := flagSet("newgroup")
	posting := fs.String("posting", "", "posting status: y, n or m (default: decided by access policy)")
	descr := fs.String("description", "", "group description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("newgroup: need exactly one group name")
	}
	p, err := store.ParsePostingStatus(*posting)
	if err != nil {
		return err
	}
	return e.withService(func(ctx context.Context) error {
		return e.svc.CreateGroup(ctx, store.Group{
			Name:        fs.Arg(0),
			Posting:     p,
			Description: *descr,
		})
	})
}

func runGroups(e *env, args []string) error {
	if err := flagSet("groups").Parse(args); err != nil {
		return err
	}
	return e.withService(func(ctx context.Context) error {
		gs, err := e.svc.Groups(ctx)
		if err != nil {
			return err
		}
		w := bufio.NewWriter(os.Stdout)
		for _, g := range gs {
			fmt.Fprintf(w, "%s %d %d %s\n", g.Name, g.High, g.Low, g.Posting)
		}
		return w.Flush()
	})
}

func runPost(e *env, args []string) error {
	fs := flagSet("post")
	as := identityFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	var r io.Reader = os.Stdin
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return e.withService(func(ctx context.Context) error {
		id, err := e.svc.PostRaw(ctx, r, acl.Identity(*as))
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	})
}

func runCat(e *env, args []string) error {
	fs := flagSet("cat")
	as := identityFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("cat: need message-ID")
	}
	return e.withService(func(ctx context.Context) error {
		a, err := e.svc.Fetch(ctx, fs.Arg(0), acl.Identity(*as))
		if err != nil {
			return err
		}
		w := bufio.NewWriter(os.Stdout)
		var xref strings.Builder
		for i, r := range a.Xref {
			if i != 0 {
				xref.WriteByte(' ')
			}
			fmt.Fprintf(&xref, "%s:%d", r.Group, r.Number)
		}
		H := a.Headers.Clone()
		H.Set("Xref", xref.String())
		if err = mail.WriteHeaders(w, H); err != nil {
			return err
		}
		w.Write(a.Body)
		return w.Flush()
	})
}

func parseRange(s string) (r store.Range, err error) {
	lo, hi, dash := strings.Cut(s, "-")
	if lo != "" {
		if r.Lo, err = strconv.ParseInt(lo, 10, 64); err != nil {
			return
		}
	}
	if !dash {
		r.Hi = r.Lo
		return
	}
	if hi != "" {
		r.Hi, err = strconv.ParseInt(hi, 10, 64)
	}
	return
}

func runOver(e *env, args []string) error {
	fs := flagSet("over")
	as := identityFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("over: need group and optional range")
	}
	r := store.AllRange
	if fs.NArg() == 2 {
		var err error
		if r, err = parseRange(fs.Arg(1)); err != nil {
			return fmt.Errorf("over: bad range %q: %w", fs.Arg(1), err)
		}
	}
	return e.withService(func(ctx context.Context) error {
		seq, err := e.svc.List(ctx, fs.Arg(0), r, acl.Identity(*as))
		if err != nil {
			return err
		}
		w := bufio.NewWriter(os.Stdout)
		defer w.Flush()
		for row, err := range seq {
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
				row.Number, row.Subject, row.From, mail.FormatDate(row.Date),
				row.MessageID, row.References, row.Bytes, row.Lines)
		}
		return nil
	})
}

func runCancel(e *env, args []string) error {
	fs := flagSet("cancel")
	as := identityFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("cancel: need message-ID")
	}
	return e.withService(func(ctx context.Context) error {
		return e.svc.Cancel(ctx, fs.Arg(0), acl.Identity(*as))
	})
}

func runExpire(e *env, args []string) error {
	fs := flagSet("expire")
	group := fs.String("group", "", "sweep only this group")
	days := fs.Float64("days", 0, "with --group: keep articles this many days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return e.withService(func(ctx context.Context) error {
		now := time.Now()
		if *group != "" {
			if *days <= 0 {
				return fmt.Errorf("expire: --group needs positive --days")
			}
			cutoff := now.Add(-time.Duration(*days * float64(24*time.Hour)))
			n, err := e.svc.Expire(ctx, *group, cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d rows expired\n", *group, n)
			return nil
		}
		exp, err := expirer.New(expirer.Config{
			Target:   e.svc,
			Schedule: e.cfg.Schedule(),
			Parallel: e.cfg.Retention.Parallel,
			Logger:   e.lx,
		})
		if err != nil {
			return err
		}
		res, err := exp.RunOnce(ctx, now)
		fmt.Printf("%d groups swept, %d rows expired, %d history entries pruned\n",
			res.Groups, res.Rows, res.History)
		return err
	})
}
