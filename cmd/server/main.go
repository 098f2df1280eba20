package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/ravkav-bridge/auth"
	"github.com/jrsteele09/ravkav-bridge/export"
	"github.com/jrsteele09/ravkav-bridge/internal/config"
	"github.com/jrsteele09/ravkav-bridge/server"
	"github.com/jrsteele09/ravkav-bridge/sessions"
	"github.com/jrsteele09/ravkav-bridge/upstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type options struct {
	configPath string
	port       string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("ravkav-bridge", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "YAML settings file (environment variables take precedence)")
	flagSet.StringVarP(&opts.port, "port", "p", "", "listen port, overrides PORT")
	return opts, flagSet.Parse(args)
}

func run(opts options) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := loadConfig(opts)
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, err := newHandler(ctx, c)
	if err != nil {
		return err
	}

	addr := c.GetPort()
	if opts.port != "" {
		addr = ":" + strings.TrimPrefix(opts.port, ":")
	}

	httpServer := &http.Server{Addr: addr, Handler: handler}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(httpServer) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func loadConfig(opts options) (config.Config, error) {
	if opts.configPath == "" {
		return config.New(), nil
	}
	return config.NewFromFile(opts.configPath)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newHandler wires the session store, upstream client, login flow and export pipeline into the HTTP server.
func newHandler(ctx context.Context, c config.Config) (http.Handler, error) {
	repo := sessions.NewInMemoryRepo()
	sessions.StartSweeper(ctx, repo, c.GetSessionMaxAge(), c.GetSessionSweepInterval(), time.Now)

	client := upstream.NewClient(c.GetUpstreamBaseURL(), c.GetUpstreamClientVersion(), c.GetUpstreamTimeout())

	policy := export.AbortOnFirstError
	if c.GetContinueOnError() {
		policy = export.ContinueOnError
	}
	if err := os.MkdirAll(c.GetExportWorkDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating export work dir: %w", err)
	}
	pipeline := export.NewPipeline(
		export.NewChromeRenderer(c.GetChromePath()),
		export.NewPDFCPUMerger(),
		c.GetExportWorkDir(),
		export.WithErrorPolicy(policy),
		export.WithRenderTimeout(c.GetRenderTimeout()),
	)

	return server.New(c, server.Deps{
		Sessions:     repo,
		Login:        auth.NewFlow(client),
		Transactions: client,
		Exporter:     pipeline,
	})
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
