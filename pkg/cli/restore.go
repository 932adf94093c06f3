package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/faheem-arif/pii-scrubber/pkg/redact"
)

func newRestoreCmd(app *App) *cobra.Command {
	var (
		mappingPath string
		keepLast    int
	)

	cmd := &cobra.Command{
		Use:   "restore [file]",
		Short: "Restore token-map output from its mapping log",
		Long: `Restore replaces [[CATEGORY:n]] placeholders with the values recorded in
the mapping log. --keep-last must match the value used when scrubbing.

	Examples:
	  piiscrub restore --mapping app.mapping.jsonl app.scrubbed.log
	  piiscrub restore --mapping m.jsonl --keep-last 4 < scrubbed.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mappingPath == "" {
				return errors.New("--mapping is required")
			}

			mapping, err := os.ReadFile(mappingPath)
			if err != nil {
				return fmt.Errorf("reading mapping: %w", err)
			}
			records, err := redact.ParseJSONL(mapping)
			if err != nil {
				return fmt.Errorf("parsing mapping: %w", err)
			}

			var scrubbed []byte
			if len(args) == 0 || args[0] == "-" {
				scrubbed, err = io.ReadAll(app.In)
			} else {
				scrubbed, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			restored := redact.Restore(string(scrubbed), records, keepLast)
			app.logger.Debug("restored", "records", len(records))
			_, err = io.WriteString(app.Out, restored)
			return err
		},
	}

	cmd.Flags().StringVar(&mappingPath, "mapping", "", "mapping log written by scrub (required)")
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep-last value used when scrubbing")

	return cmd
}
