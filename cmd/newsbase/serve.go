package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"newsbase/lib/expirer"
	"newsbase/lib/newscfg"
	"newsbase/lib/newsvc"
	"newsbase/lib/utils/logx"
)

func runServe(e *env, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := e.cfg.Backend(e.lx)
	if err != nil {
		return err
	}
	e.b = b
	defer e.close()

	nc, err := e.cfg.ServiceConfig()
	if err != nil {
		return err
	}
	nc.Backend = b
	nc.Logger = e.lx
	nc.Registerer = prometheus.DefaultRegisterer
	svc, err := newsvc.New(nc)
	if err != nil {
		return err
	}
	e.svc = svc

	exp, err := expirer.New(expirer.Config{
		Target:   svc,
		Schedule: e.cfg.Schedule(),
		Parallel: e.cfg.Retention.Parallel,
		Logger:   e.lx,
	})
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return exp.Run(ctx) })
	eg.Go(func() error { return e.reloadOnHUP(ctx) })
	if addr := e.cfg.Metrics.Listen; addr != "" {
		server := &http.Server{Addr: addr, Handler: promhttp.Handler()}
		eg.Go(func() error {
			e.log.LogPrintf(logx.INFO, "metrics on http://%s/metrics", addr)
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(sctx)
		})
	}

	e.log.LogPrint(logx.NOTICE, "serving")
	err = eg.Wait()
	e.log.LogPrint(logx.NOTICE, "shutting down")
	return err
}

// reloadOnHUP re-reads access policy from config file on SIGHUP.
// Other sections need restart.
func (e *env) reloadOnHUP(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
		}
		if e.path == "" {
			e.log.LogPrint(logx.WARN, "SIGHUP without config file, nothing to reload")
			continue
		}
		cfg, err := newscfg.Load(e.path)
		if err != nil {
			e.log.LogPrintf(logx.ERROR, "reload: %v; keeping old policy", err)
			continue
		}
		p, err := cfg.Policy()
		if err != nil {
			e.log.LogPrintf(logx.ERROR, "reload: %v; keeping old policy", err)
			continue
		}
		e.svc.SetPolicy(p)
	}
}
