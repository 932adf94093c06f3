// Package cli implements the piiscrub command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/faheem-arif/pii-scrubber/pkg/config"
	"github.com/faheem-arif/pii-scrubber/pkg/logging"
	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
)

// Version is set at build time.
var Version = "dev"

// App carries the streams and state shared by every command.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Engine defaults to scrub.NewEngine.
	Engine *scrub.Engine

	configPath string
	logLevel   string
	noDotEnv   bool

	cfg    *config.Config
	logger *log.Logger
}

// NewApp returns an App bound to the process streams.
func NewApp() *App {
	return &App{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// NewRootCmd builds the command tree.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "piiscrub",
		Short: "Detect and scrub secrets and personal data from text",
		Long: `piiscrub finds credentials and personal data in text and replaces them.

Modes:
  redact      [EMAIL_REDACTED]
  token-map   [[EMAIL:1]] plus a mapping log that can restore the input
  hash        EMAIL_SHA256:<hex>, salted with PIISCRUB_HASH_SALT`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.setup,
	}

	root.SetIn(app.In)
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "config file (default ~/.piiscrub/config.yaml)")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&app.noDotEnv, "no-dotenv", false, "do not load .env from the working directory")

	root.AddCommand(
		newScrubCmd(app),
		newRestoreCmd(app),
		newDiffCmd(app),
		newDetectorsCmd(app),
		newVersionCmd(app),
	)
	return root
}

// setup loads .env and configuration and builds the logger.
func (a *App) setup(cmd *cobra.Command, args []string) error {
	if !a.noDotEnv {
		if err := config.LoadDotEnv(".env"); err != nil {
			return err
		}
	}

	projectDir, _ := os.Getwd()
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFrom(a.configPath, projectDir)
	} else {
		a.cfg, err = config.Load(projectDir)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	opts := logging.DefaultOptions()
	opts.Output = a.Err
	opts.Prefix = "piiscrub"
	opts.Level = a.cfg.Logging.Level
	opts.JSON = a.cfg.Logging.JSON
	opts.ReportTimestamp = false
	if a.logLevel != "" {
		opts.Level = a.logLevel
	}
	a.logger = logging.New(opts)

	if a.Engine == nil {
		a.Engine = scrub.NewEngine()
	}
	return nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	app := NewApp()
	if err := NewRootCmd(app).Execute(); err != nil {
		fmt.Fprintf(app.Err, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(app.Out, "piiscrub %s\n", Version)
			return nil
		},
	}
}
