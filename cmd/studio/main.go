package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studio/internal/app"
	"studio/internal/config"
	"studio/internal/logging"
	"studio/internal/upload"
)

// Set by ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env carries the global flags and what they resolve to.
type env struct {
	cfgPath string
	apiBase string
	verbose bool

	cfg *config.AppConfig
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "studio",
		Short:         "Research library client",
		Long:          "studio uploads papers to a research backend, browses the library, chats with\ncited answers and shows library analytics. Without a subcommand it opens the TUI.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), e)
		},
	}
	root.PersistentFlags().StringVar(&e.cfgPath, "config", "", "path to YAML config (default ./studio.yaml or ~/.config/studio/config.yaml)")
	root.PersistentFlags().StringVar(&e.apiBase, "api", "", "backend base URL, overrides api.base_url")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "Open the terminal UI",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTUI(cmd.Context(), e)
			},
		},
		newUploadCmd(e),
		newChatCmd(e),
		newLibraryCmd(e),
		newAnalyticsCmd(e),
		newServeCmd(e),
		newConfigCmd(e),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "studio %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
			},
		},
	)
	return root
}

// load resolves configuration and the logger. console sends log records to
// stderr as well, which only the line-oriented commands want.
func (e *env) load(console bool) error {
	if e.cfg != nil {
		return nil
	}
	var (
		cfg *config.AppConfig
		err error
	)
	if e.cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(e.cfgPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if e.apiBase != "" {
		cfg.API.BaseURL = e.apiBase
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}
	if e.verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Console = cfg.Log.Console || console
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	e.cfg, e.log = cfg, log
	return nil
}

// open loads configuration and assembles the client session.
func (e *env) open(console bool, notify upload.Notifier) (*app.App, error) {
	if err := e.load(console); err != nil {
		return nil, err
	}
	return app.New(e.cfg, e.log, notify)
}
