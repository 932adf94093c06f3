package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/faheem-arif/pii-scrubber/pkg/batch"
	"github.com/faheem-arif/pii-scrubber/pkg/redact"
	"github.com/faheem-arif/pii-scrubber/pkg/scrub"
)

type scrubFlags struct {
	mode        string
	keepLast    int
	aggressive  bool
	salt        string
	maxMatches  int
	outDir      string
	report      bool
	mapping     string
	concurrency int
}

func newScrubCmd(app *App) *cobra.Command {
	var f scrubFlags

	cmd := &cobra.Command{
		Use:   "scrub [file...]",
		Short: "Scrub files or standard input",
		Long: `Scrub detects secrets and personal data and replaces them.

Without file arguments (or with "-") the input is read from stdin and the
scrubbed text is written to stdout. In token-map mode --mapping names the file
that receives the mapping log.

With file arguments every file is scrubbed independently and written as
<name>.scrubbed<ext> next to the input or into --out.

Mapping files contain the original values. Protect them like the input.

	Examples:
	  cat app.log | piiscrub scrub > app.clean.log
	  piiscrub scrub --mode token-map --mapping app.mapping.jsonl < app.log
	  piiscrub scrub --report --out scrubbed/ logs/*.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := f.options(cmd, app.cfg.ScrubOptions())
			if err := opts.Validate(); err != nil {
				return err
			}
			opts.Mode, _ = redact.ParseMode(string(opts.Mode))

			if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
				return app.scrubStream(opts, f)
			}
			if f.mapping != "" {
				return errors.New("--mapping applies to stdin input; file mode writes <name>.mapping.jsonl")
			}
			return app.scrubFiles(cmd, opts, f, args)
		},
	}

	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "redact, token-map or hash (default from config)")
	cmd.Flags().IntVar(&f.keepLast, "keep-last", 0, "append the last N characters of each value (0-64)")
	cmd.Flags().BoolVar(&f.aggressive, "aggressive", false, "lower detection thresholds")
	cmd.Flags().StringVar(&f.salt, "salt", "", "hash salt (prefer PIISCRUB_HASH_SALT)")
	cmd.Flags().IntVar(&f.maxMatches, "max-matches", 0, "candidate cap (default scales with input size)")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "output directory for file mode")
	cmd.Flags().BoolVar(&f.report, "report", false, "write the JSON report (stderr for stdin input)")
	cmd.Flags().StringVar(&f.mapping, "mapping", "", "mapping log destination for stdin input in token-map mode")
	cmd.Flags().IntVarP(&f.concurrency, "jobs", "j", 0, "files scrubbed in parallel (default GOMAXPROCS)")

	return cmd
}

// options overlays explicitly set flags on the configured defaults.
func (f scrubFlags) options(cmd *cobra.Command, base scrub.Options) scrub.Options {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		base.Mode = scrub.Mode(f.mode)
	}
	if flags.Changed("keep-last") {
		base.KeepLast = f.keepLast
	}
	if flags.Changed("aggressive") {
		base.Aggressive = f.aggressive
	}
	if flags.Changed("salt") {
		base.HashSalt = f.salt
	}
	if flags.Changed("max-matches") {
		base.MaxMatches = f.maxMatches
	}
	return base
}

func (a *App) scrubStream(opts scrub.Options, f scrubFlags) error {
	if opts.Mode == scrub.ModeTokenMap && f.mapping == "" {
		return errors.New("token-map mode on stdin requires --mapping <file>")
	}

	data, err := io.ReadAll(a.In)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	result, err := a.Engine.Scrub(string(data), opts)
	if err != nil {
		return err
	}

	if result.HasMapping() {
		mapping, err := result.MappingJSONL()
		if err != nil {
			return err
		}
		if err := os.WriteFile(f.mapping, []byte(mapping), 0o600); err != nil {
			return fmt.Errorf("writing mapping: %w", err)
		}
		a.warnMapping(f.mapping)
	}

	if _, err := io.WriteString(a.Out, result.ScrubbedText); err != nil {
		return err
	}

	for _, w := range result.Report.Warnings {
		a.logger.Warn(w)
	}
	if f.report {
		report, err := result.Report.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Err, string(report))
	}

	a.logger.Debug("scrubbed stdin",
		"mode", result.Mode,
		"findings", result.Report.TotalFindings,
		"categories", result.Report.Categories(),
	)
	return nil
}

func (a *App) scrubFiles(cmd *cobra.Command, opts scrub.Options, f scrubFlags, paths []string) error {
	runner := &batch.Runner{
		Engine:      a.Engine,
		Options:     opts,
		OutDir:      f.outDir,
		Concurrency: f.concurrency,
		WriteReport: f.report,
		Logger:      a.logger,
	}

	results, err := runner.Run(cmd.Context(), paths)
	if err != nil {
		return err
	}

	for _, res := range results {
		fmt.Fprintf(a.Out, "%s -> %s (%d findings)\n", res.Input, res.Scrubbed, res.Findings)
		if res.Mapping != "" {
			a.warnMapping(res.Mapping)
		}
	}
	return nil
}

func (a *App) warnMapping(path string) {
	fmt.Fprintf(a.Err, "warning: %s contains original values; protect it like the input\n", path)
}
