package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	syncpkg "github.com/kimhsiao/tijara/backend/internal/sync"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-entity sync state from the local database",
		Long: `Show pending operations, open requests, stored records and watermarks
for every entity. Reads the local database directly, so it works whether or
not the sync core is running.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withPrinter(rootOpts, func(cmd *cobra.Command, args []string, p *Printer) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses, err := a.engine.Status(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read status", err)
			}
			return p.Success(statuses, func(w io.Writer) { renderStatus(w, statuses) })
		}),
	}
}

func renderStatus(w io.Writer, statuses []*syncpkg.EntityStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tSTATE\tPENDING\tREQUEST\tRECORDS\tWATERMARK")
	for _, s := range statuses {
		request := "-"
		if s.ActiveRequest != nil {
			request = s.ActiveRequest.ID
		}
		watermark := "-"
		if s.Watermark != nil {
			watermark = s.Watermark.UTC().Format(time.RFC3339)
		}
		pending := "-"
		if s.Push {
			pending = fmt.Sprint(s.Pending)
		}
		records := "-"
		if s.Pull {
			records = fmt.Sprint(s.Records)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.Entity, s.State, pending, request, records, watermark)
	}
	tw.Flush()
}
