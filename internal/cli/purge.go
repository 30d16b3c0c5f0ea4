package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/tijara/backend/internal/errors"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	OlderThan time.Duration
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete pushed operations the server confirmed",
		Long: `Delete operations that were pushed under a request the server resolved
as success and that are older than --older-than. Pending operations and
operations of unresolved or failed requests are never deleted.

Example:
  tijara-sync purge --older-than 720h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withPrinter(rootOpts, func(cmd *cobra.Command, args []string, p *Printer) error {
			if opts.OlderThan <= 0 {
				return WrapExitError(ExitCommandError, "invalid --older-than",
					errors.New(errors.ErrInvalid, "must be positive"))
			}

			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			cutoff := time.Now().Add(-opts.OlderThan)
			n, err := a.repo.PurgePushed(cmd.Context(), cutoff.UnixMilli())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to purge operations", err)
			}

			return p.Success(map[string]interface{}{"deleted": n, "before": cutoff.UTC()}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %d pushed operations created before %s\n", n, cutoff.UTC().Format(time.RFC3339))
			})
		}),
	}

	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 30*24*time.Hour, "minimum age of purged operations")

	return cmd
}
