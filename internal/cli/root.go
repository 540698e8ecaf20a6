package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"arborescence/internal/config"
	"arborescence/internal/format"
	"arborescence/internal/model"
	"arborescence/internal/mutate"
	"arborescence/internal/remote"
	"arborescence/internal/store"
	"arborescence/internal/tree"
	"arborescence/internal/tui"

	"github.com/spf13/cobra"
)

type App struct {
	Server     string
	DB         string
	APIKey     string
	PrettyJSON bool
	Format     string
	LogLevel   string
	LogFile    string
	NoColor    bool

	cfg config.Config
	log *slog.Logger
	// logClose releases the --log-file handle.
	logClose func() error
}

// backend is what the client commands write through: a local store or the
// HTTP client of a running `arbo serve`.
type backend interface {
	remote.Remote
	remote.Classifier
}

func NewRootCmd() *cobra.Command {
	app := &App{cfg: config.Load()}

	cmd := &cobra.Command{
		Use:          "arbo",
		Short:        "Ordered Section / Title / Sub-Title taxonomy editor",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open the terminal editor
  arbo

  # Print the tree as an indented outline
  arbo tree --format outline

  # Run the HTTP service and edit against it
  arbo serve --db ./arbo.sqlite
  arbo --server http://localhost:8091
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		app.cfg.Format = app.Format
		app.cfg.LogLevel = app.LogLevel
		app.cfg.DB = app.DB
		app.cfg.ServerURL = app.Server
		if err := app.cfg.Validate(); err != nil {
			return err
		}
		return app.setupLogging(cmd.ErrOrStderr())
	}
	cmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app.logClose != nil {
			return app.logClose()
		}
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.Server, "server", app.cfg.ServerURL, "Base URL of an `arbo serve` instance (default: edit the local database)")
	cmd.PersistentFlags().StringVar(&app.DB, "db", app.cfg.DB, "SQLite file path or postgres:// DSN")
	cmd.PersistentFlags().StringVar(&app.APIKey, "api-key", app.cfg.APIKey, "Bearer key for --server (and required by `serve` when set)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", app.cfg.Format, "Output format (json|outline)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", app.cfg.LogLevel, "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&app.LogFile, "log-file", app.cfg.LogFile, "Write logs to this file (the editor otherwise logs nothing)")
	cmd.PersistentFlags().BoolVar(&app.NoColor, "no-color", app.cfg.NoColor, "Disable colors in the editor")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTreeCmd(app))
	cmd.AddCommand(newNodesCmd(app))
	cmd.AddCommand(newRefsCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

func (app *App) setupLogging(stderr io.Writer) error {
	lvl, err := config.ParseLogLevel(app.LogLevel)
	if err != nil {
		return err
	}
	w := stderr
	if app.LogFile != "" {
		f, err := os.OpenFile(app.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = f
		app.logClose = f.Close
	}
	app.log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	return nil
}

func (app *App) logger() *slog.Logger {
	if app.log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return app.log
}

// openBackend returns the client-side backend and a func releasing it.
func openBackend(ctx context.Context, app *App) (backend, func() error, error) {
	if strings.TrimSpace(app.Server) != "" {
		c := remote.NewClient(app.Server, app.APIKey).WithHTTPClient(&http.Client{Timeout: app.cfg.ClientTimeout})
		return c, func() error { return nil }, nil
	}
	st, err := store.Open(ctx, app.DB, app.logger())
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

// withCoordinator loads the tree into a fresh coordinator and runs fn with it.
func withCoordinator(cmd *cobra.Command, app *App, fn func(ctx context.Context, c *mutate.Coordinator, b backend) error) error {
	ctx := cmdContext(cmd)
	b, closeFn, err := openBackend(ctx, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer func() { _ = closeFn() }()

	m, err := tree.New(nil)
	if err != nil {
		return writeErr(cmd, err)
	}
	c := mutate.New(m, b, app.logger())
	if err := c.Load(ctx); err != nil {
		return writeErr(cmd, err)
	}
	if err := fn(ctx, c, b); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

// commit runs a requested mutation to completion.
func commit(ctx context.Context, p *mutate.Pending, err error) (mutate.Result, error) {
	if err != nil {
		return mutate.Result{}, err
	}
	return p.Run(ctx)
}

func runTUI(cmd *cobra.Command, app *App) error {
	ctx := cmdContext(cmd)
	b, closeFn, err := openBackend(ctx, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer func() { _ = closeFn() }()

	// The alt screen owns the terminal; only log when asked to log to a file.
	log := slog.New(slog.DiscardHandler)
	if app.LogFile != "" {
		log = app.logger()
	}
	m, err := tree.New(nil)
	if err != nil {
		return err
	}
	c := mutate.New(m, b, log)
	return tui.Run(ctx, c, tui.Options{
		Logger:          log,
		MinDragDistance: app.cfg.MinDragDistance,
		NoColor:         app.NoColor,
	})
}

func parseLevelFlag(s string) (model.Level, error) {
	l, err := model.ParseLevel(s)
	if err != nil {
		return "", fmt.Errorf("invalid --level %q (want section, title or sub-title)", s)
	}
	return l, nil
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
