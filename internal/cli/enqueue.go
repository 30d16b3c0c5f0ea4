package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	syncpkg "github.com/kimhsiao/tijara/backend/internal/sync"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	*RootOptions
	APIAddr string
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue <item>",
		Short: "Queue a sync item on the running sync core",
		Long: `Queue a sync item such as "orders-push" or "products-pull".

The item is sent to the local API of a running "tijara-sync run"; the queue
itself is owned by that process.

Example:
  tijara-sync enqueue orders-push
  tijara-sync enqueue products-pull --api 127.0.0.1:9090`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withPrinter(rootOpts, func(cmd *cobra.Command, args []string, p *Printer) error {
			return runEnqueue(cmd.Context(), opts, args[0], p)
		}),
	}

	cmd.Flags().StringVar(&opts.APIAddr, "api", "", "local API address (default: api.listen from the config)")

	return cmd
}

// validateItem checks item against the built-in entities before any I/O.
func validateItem(item string) error {
	_, err := syncpkg.NewRegistry(nil, nil).Parse(item)
	return err
}

func runEnqueue(ctx context.Context, opts *EnqueueOptions, item string, p *Printer) error {
	if err := validateItem(item); err != nil {
		return WrapExitError(ExitCommandError, "cannot enqueue", err)
	}

	addr := opts.APIAddr
	if addr == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return err
		}
		addr = cfg.API.Listen
	}

	if err := postEnqueue(ctx, apiURL(addr, "/sync/queue"), item); err != nil {
		return WrapExitError(ExitFailure, "failed to enqueue "+item, err)
	}

	return p.Success(map[string]interface{}{"item": item, "queued": true}, func(w io.Writer) {
		fmt.Fprintf(w, "Queued %s\n", item)
	})
}

func apiURL(addr, path string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/") + path
	}
	return "http://" + addr + path
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func postEnqueue(ctx context.Context, url, item string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, err := json.Marshal(map[string]string{"item": item})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrTransport, "local API unreachable, is the sync core running?", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return nil
	}
	var apiErr apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != "" {
		return errors.New(errors.ErrorCode(apiErr.Code), apiErr.Error)
	}
	return errors.Newf(errors.ErrInternal, "local API returned %d", resp.StatusCode)
}
