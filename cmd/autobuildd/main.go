package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/autobuildd/internal/config"
	"git.home.luguber.info/inful/autobuildd/internal/engine"
	"git.home.luguber.info/inful/autobuildd/internal/httpapi"
	"git.home.luguber.info/inful/autobuildd/internal/version"
)

// CLI is the root command definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.json"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve ServeCmd `cmd:"" help:"Poll configured repositories and serve build status over HTTP"`
}

// Global is the context passed to every subcommand.
type Global struct {
	Logger *slog.Logger
}

// AfterApply runs after flag parsing; sets up the default logger once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// ServeCmd starts the polling/discovery/build engine and its HTTP status surface.
type ServeCmd struct {
	StoreDir    string `name:"store-dir" help:"Root directory for nix store artifact serving" default:"/nix/store"`
	FrontendDir string `name:"frontend-dir" help:"Static frontend asset directory" default:"./frontend"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	settings, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	recorder, metricsHandler := newRecorder()

	eng := engine.New(settings, recorder, g.Logger)
	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)
	srv := httpapi.New(addr, eng, s.StoreDir, s.FrontendDir, recorder, g.Logger, metricsHandler)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng.Start(ctx)
	g.Logger.Info("serving", "addr", addr)

	errCh := srv.Start()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		g.Logger.Info("shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		g.Logger.Error("http server shutdown", "error", err)
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("engine shutdown: %w", err)
	}

	return nil
}

func main() {
	cli := &CLI{}
	parser := kong.Parse(cli,
		kong.Description("autobuildd: polls configured git repositories, discovers build targets, and dispatches builds."),
		kong.Vars{"version": version.Version},
	)

	globals := &Global{Logger: slog.Default()}

	if err := parser.Run(globals, cli); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
