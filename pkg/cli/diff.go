package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/faheem-arif/pii-scrubber/pkg/diff"
)

func newDiffCmd(app *App) *cobra.Command {
	var (
		unified bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "diff <original> <scrubbed>",
		Short: "Show what scrubbing changed",
		Long: `Diff compares an input with its scrubbed output line by line and prints
the changed rows. --unified prints a patch with a similarity score instead.

The output contains original values.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			original, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			scrubbed, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			if unified {
				res := diff.Compare(string(original), string(scrubbed))
				fmt.Fprintf(app.Out, "# lines %d/%d, changed %d, similarity %.3f\n",
					res.LineCount1, res.LineCount2, res.ChangedLines, res.Similarity)
				fmt.Fprint(app.Out, res.UnifiedDiff)
				return nil
			}

			rows := diff.ChangedRows(diff.BuildLineDiff(string(original), string(scrubbed), limit))
			for _, row := range rows {
				fmt.Fprintf(app.Out, "%d\n- %s\n+ %s\n", row.Line, row.Left, row.Right)
			}
			if len(rows) == 0 {
				fmt.Fprintln(app.Out, "no changes")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&unified, "unified", "u", false, "print a unified patch")
	cmd.Flags().IntVar(&limit, "limit", diff.DefaultLimit, "maximum rows compared")

	return cmd
}
