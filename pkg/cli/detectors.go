package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/faheem-arif/pii-scrubber/pkg/scanners"
)

func newDetectorsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "detectors",
		Short: "List detectors in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{"ID", "CATEGORY", "SEVERITY"}, "\t"))
			for _, sc := range app.Engine.Scanners {
				fmt.Fprintf(w, "%s\t%s\t%d\n", sc.Name(), sc.Category(), scanners.SeverityFor(sc.Category()))
			}
			return w.Flush()
		},
	}
}
