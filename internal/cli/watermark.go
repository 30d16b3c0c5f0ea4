package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	syncpkg "github.com/kimhsiao/tijara/backend/internal/sync"
)

// NewWatermarkCommand creates the watermark command group.
func NewWatermarkCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or reset pull watermarks",
	}
	cmd.AddCommand(newWatermarkListCommand(rootOpts))
	cmd.AddCommand(newWatermarkResetCommand(rootOpts))
	return cmd
}

type watermarkRow struct {
	Entity    string     `json:"entity"`
	Watermark *time.Time `json:"watermark"`
	Corrupt   bool       `json:"corrupt,omitempty"`
}

func newWatermarkListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the watermark of every pullable entity",
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

			var rows []watermarkRow
			for _, entity := range a.engine.Registry().PullEntities() {
				row := watermarkRow{Entity: entity}
				wm, err := a.engine.Watermarks().Get(cmd.Context(), entity)
				switch {
				case errors.Is(err, errors.ErrPullDecode):
					// the next pull ignores it and starts from the floor
					logging.WarnWithCode("Ignoring corrupt watermark", string(errors.ErrPullDecode), err,
						map[string]interface{}{"entity": entity})
					row.Corrupt = true
				case err != nil:
					return WrapExitError(ExitFailure, "failed to read watermark of "+entity, err)
				default:
					row.Watermark = wm
				}
				rows = append(rows, row)
			}

			return p.Success(rows, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ENTITY\tWATERMARK")
				for _, r := range rows {
					value := "-"
					if r.Corrupt {
						value = "- (corrupt)"
					}
					if r.Watermark != nil {
						value = r.Watermark.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\n", r.Entity, value)
				}
				tw.Flush()
			})
		}),
	}
}

func newWatermarkResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <entity>",
		Short: "Forget an entity's watermark so the next pull starts from its floor",
		Long: `Forget an entity's watermark. The next pull of the entity fetches
everything since its floor (epoch, or the lookback window for orders).

Example:
  tijara-sync watermark reset products`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withPrinter(rootOpts, func(cmd *cobra.Command, args []string, p *Printer) error {
			entity := args[0]
			spec, ok := syncpkg.LookupEntity(entity)
			if !ok {
				return WrapExitError(ExitCommandError, "cannot reset watermark",
					errors.Newf(errors.ErrUnknownQueueItem, "unknown entity %q", entity))
			}
			if !spec.Pull {
				return WrapExitError(ExitCommandError, "cannot reset watermark",
					errors.Newf(errors.ErrUnsupportedDirection, "%s is never pulled", entity))
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

			if err := a.engine.Watermarks().Reset(cmd.Context(), entity); err != nil {
				return WrapExitError(ExitFailure, "failed to reset watermark", err)
			}
			return p.Success(map[string]interface{}{"entity": entity, "reset": true}, func(w io.Writer) {
				fmt.Fprintf(w, "Watermark of %s reset\n", entity)
			})
		}),
	}
}
