package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pagetint/internal/background"
	"pagetint/internal/config"
	"pagetint/internal/tab"
)

type envKey struct{}

// appEnv is what every subcommand needs.
type appEnv struct {
	cfg      *config.Config
	log      *zap.Logger
	closeLog func() error
	start    time.Time
}

func envFromContext(ctx context.Context) *appEnv {
	if env, ok := ctx.Value(envKey{}).(*appEnv); ok {
		return env
	}
	panic("environment not found in context")
}

func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	env := envFromContext(ctx)
	var err error

	configFile := cmd.String("config")
	if env.cfg, err = config.Load(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		env.cfg.Logging.Level = "debug"
		env.cfg.Engine.Debug = true
	}
	if env.log, env.closeLog, err = env.cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.log.Debug("Program started", zap.Strings("args", os.Args))
	if configFile == "" {
		env.log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, _ *cli.Command) (err error) {
	env := envFromContext(ctx)
	if env.log != nil {
		env.log.Debug("Program ended", zap.Duration("elapsed", time.Since(env.start)))
		_ = env.log.Sync()
	}
	if env.closeLog != nil {
		if er := env.closeLog(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close log file: %w", er))
		}
	}
	return
}

var errWasHandled bool

func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	if env := envFromContext(ctx); env.log != nil {
		env.log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.WithValue(context.Background(), envKey{}, &appEnv{start: time.Now()}),
		os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            "pagetint",
		Usage:           "indexes the color relevant CSS selectors of web pages",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "debug logging and engine diagnostics"},
		},
		Commands: []*cli.Command{
			{
				Name:      "scan",
				Usage:     "Scans a page and reports its selector index",
				ArgsUsage: "URL",
				Action:    runScan,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "match", Aliases: []string{"m"}, Usage: "report matched selectors for elements selected by `QUERY`"},
					&cli.BoolFlag{Name: "selectors", Aliases: []string{"s"}, Usage: "print every indexed selector"},
					&cli.DurationFlag{Name: "wait", Value: 20 * time.Second, Usage: "how long to wait for external stylesheets"},
				},
			},
			{
				Name:   "serve",
				Usage:  "Runs the background service over HTTP",
				Action: runServe,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "listen on `ADDR` instead of the configured address"},
				},
			},
			{
				Name:      "dumpconfig",
				Usage:     "Dumps either default or actual configuration (YAML)",
				ArgsUsage: "DESTINATION",
				Action:    outputConfiguration,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
			},
		},
	}

	var err error
	defer func() {
		stop()
		if err != nil {
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

func runScan(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	pageURL := cmd.Args().First()
	if pageURL == "" {
		return errors.New("scan: page URL is required")
	}

	doc, err := tab.LoadPage(ctx, pageURL, env.cfg, env.log)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	tb, err := tab.Open(env.cfg, doc, env.log)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	defer func() {
		if er := tb.Close(); er != nil {
			env.log.Warn("Unable to close page cleanly", zap.Error(er))
		}
	}()

	tb.Settle(ctx, cmd.Duration("wait"))
	report(os.Stdout, tb, cmd.Bool("selectors"), cmd.StringSlice("match"))
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	addr := cmd.String("listen")
	if addr == "" {
		addr = env.cfg.Background.Listen
	}

	svc := tab.NewService(env.cfg.Background, env.log)
	defer svc.Close()
	srv := &http.Server{
		Addr:              addr,
		Handler:           background.NewServer(svc, env.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	env.log.Info("Background service listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env.log.Info("Shutting down")
	return srv.Shutdown(shutdownCtx)
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) error {
	env := envFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}
	fname := cmd.Args().Get(0)

	var (
		err   error
		data  []byte
		state string
	)
	out := os.Stdout
	if fname != "" {
		out, err = os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer out.Close()
	}

	if cmd.Bool("default") {
		state = "default"
		var cfg *config.Config
		if cfg, err = config.Defaults(); err == nil {
			data, err = config.Dump(cfg)
		}
	} else {
		state = "actual"
		data, err = config.Dump(env.cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}
	if fname == "" {
		fname = "STDOUT"
	}
	env.log.Info("Outputing configuration", zap.String("state", state), zap.String("file", fname))

	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
