package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"newsbase/lib/newscfg"
	"newsbase/lib/newsvc"
	"newsbase/lib/store"
	fl "newsbase/lib/utils/filelogger"
	"newsbase/lib/utils/logx"
)

type command struct {
	name  string
	usage string
	run   func(e *env, args []string) error
}

var commands = []command{
	{"serve", "run service: retention loop, metrics, policy reload on SIGHUP", runServe},
	{"initdb", "create database schema", runInitDB},
	{"newgroup", "[--posting y|n|m] [--description text] GROUP", runNewGroup},
	{"groups", "list groups with watermarks", runGroups},
	{"post", "[--as ID] [FILE]  post article read from FILE or stdin", runPost},
	{"cat", "[--as ID] MSGID  print article", runCat},
	{"over", "[--as ID] GROUP [LO-HI]  print overview rows", runOver},
	{"cancel", "[--as ID] MSGID  remove article from all groups", runCancel},
	{"expire", "[--group GROUP --days N]  run retention sweep once", runExpire},
}

// env is what every subcommand starts with.
type env struct {
	cfg  *newscfg.Config
	lx   logx.LoggerX
	log  logx.Logger
	path string

	b   store.Backend
	svc *newsvc.Service
}

func (e *env) open(ctx context.Context) error {
	b, err := e.cfg.Backend(e.lx)
	if err != nil {
		return err
	}
	nc, err := e.cfg.ServiceConfig()
	if err != nil {
		b.Close()
		return err
	}
	nc.Backend = b
	nc.Logger = e.lx
	svc, err := newsvc.New(nc)
	if err != nil {
		b.Close()
		return err
	}
	e.b, e.svc = b, svc
	return nil
}

func (e *env) close() {
	if e.b != nil {
		if err := e.b.Close(); err != nil {
			e.log.LogPrintf(logx.ERROR, "closing database: %v", err)
		}
	}
}

func usage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: newsbase [flags] COMMAND [args]\n\nflags:\n")
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.usage)
	}
}

func colorModeOf(s string) fl.UseColor {
	switch s {
	case "on":
		return fl.ColorOn
	case "off":
		return fl.ColorOff
	}
	return fl.ColorAuto
}

func run() error {
	gfs := pflag.NewFlagSet("newsbase", pflag.ContinueOnError)
	gfs.SetInterspersed(false)
	cfgPath := gfs.StringP("config", "c", "", "config file (default $NEWSBASE_CONFIG)")
	envFile := gfs.String("env-file", ".env", "environment file loaded when present")
	logLevel := gfs.String("log-level", "", "override log.level")
	gfs.Usage = func() { usage(gfs) }
	if err := gfs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", *envFile, err)
	}
	if *cfgPath == "" {
		*cfgPath = os.Getenv("NEWSBASE_CONFIG")
	}

	args := gfs.Args()
	if len(args) == 0 {
		usage(gfs)
		return fmt.Errorf("no command")
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage(gfs)
		return fmt.Errorf("unknown command %q", args[0])
	}

	e := &env{path: *cfgPath}
	if err := e.loadConfig(); err != nil {
		return err
	}
	if *logLevel != "" {
		e.cfg.Log.Level = *logLevel
	}
	lvl, err := logx.ParseLevel(e.cfg.Log.Level)
	if err != nil {
		return err
	}
	lgr, err := fl.NewFileLogger(os.Stderr, lvl, colorModeOf(e.cfg.Log.Color))
	if err != nil {
		return fmt.Errorf("fl.NewFileLogger error: %w", err)
	}
	e.lx = lgr
	e.log = logx.NewLogToX(lgr, "main")

	return cmd.run(e, args[1:])
}

func (e *env) loadConfig() (err error) {
	if e.path == "" {
		cfg := newscfg.DefaultConfig
		e.cfg = &cfg
		return nil
	}
	e.cfg, err = newscfg.Load(e.path)
	return
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "newsbase: %v\n", err)
		if newsvc.IsRetryable(err) {
			os.Exit(75) // EX_TEMPFAIL
		}
		os.Exit(1)
	}
}
