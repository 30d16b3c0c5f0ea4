package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kimhsiao/tijara/backend/internal/api"
	"github.com/kimhsiao/tijara/backend/internal/config"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	syncpkg "github.com/kimhsiao/tijara/backend/internal/sync"
	"github.com/kimhsiao/tijara/backend/internal/sync/assets"
	"github.com/kimhsiao/tijara/backend/internal/sync/events"
	"github.com/kimhsiao/tijara/backend/internal/sync/network"
	"github.com/kimhsiao/tijara/backend/internal/sync/queue"
	"github.com/kimhsiao/tijara/backend/internal/sync/scheduler"
)

// shutdownTimeout bounds the HTTP server drain on exit.
const shutdownTimeout = 10 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Listen       string
	NoAPI        bool
	InitialSweep bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher, the sweep and the local API",
		Long: `Run the terminal sync core in the foreground.

Opens the local database and the persistent queue, then starts the queue
dispatcher, the periodic sweep and the loopback control API. SIGINT and
SIGTERM stop the loops after the item in flight finishes.

Example:
  tijara-sync run --config /etc/tijara/sync.yaml
  tijara-sync run -c sync.yaml --listen 127.0.0.1:9090 -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "override api.listen from the config")
	cmd.Flags().BoolVar(&opts.NoAPI, "no-api", false, "do not start the local API")
	cmd.Flags().BoolVar(&opts.InitialSweep, "initial-sweep", true, "sweep once at startup")

	return cmd
}

// daemon is the fully wired sync core.
type daemon struct {
	*app
	queue     *queue.PersistentQueue
	hub       *api.Hub
	monitor   *network.HTTPMonitor
	scheduler *scheduler.Scheduler
}

// buildDaemon wires every component from cfg.
func buildDaemon(ctx context.Context, cfg *config.Config) (*daemon, error) {
	var uploader assets.Uploader
	if cfg.Assets.Enabled() {
		minioCfg, err := cfg.Assets.MinIOConfig()
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid assets config", err)
		}
		store, err := assets.NewMinIOStore(ctx, minioCfg)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect to object storage", err)
		}
		uploader = assets.NewContentUploader(store)
	}

	a, err := openApp(cfg)
	if err != nil {
		return nil, err
	}
	a.engine = syncpkg.NewEngine(a.repo, a.client, uploader, &syncpkg.PushConfig{
		MaxOperationsPerRequest: cfg.Sync.MaxOperationsPerRequest,
	})
	registry := a.engine.Registry()

	q, err := queue.Open(cfg.QueueDir(), cfg.Sync.QueueMaxSize, func(item string) error {
		_, err := registry.Parse(item)
		return err
	})
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open queue", err)
	}

	hub := api.NewHub()
	bus := events.NewBus(events.LogObserver{}, events.TelemetryObserver{}, hub)
	monitor := network.NewHTTPMonitor(a.client, network.DefaultProbeTimeout)

	var enqueue scheduler.EnqueueFunc
	if cfg.Sync.SweepEnqueuePushes {
		enqueue = q.Enqueue
	}
	dispatcher := scheduler.NewDispatcher(q, registry, monitor, bus)
	sweep := scheduler.NewSweep(registry, a.repo, enqueue, monitor, bus)
	sched := scheduler.New(dispatcher, sweep, &scheduler.Config{
		QueueInterval: cfg.Sync.QueueInterval,
		SweepInterval: cfg.Sync.SweepInterval,
	})

	return &daemon{app: a, queue: q, hub: hub, monitor: monitor, scheduler: sched}, nil
}

func (d *daemon) Close() {
	d.hub.Close()
	if err := d.queue.Close(); err != nil {
		logging.Warn("Failed to close queue", map[string]interface{}{"error": err.Error()})
	}
	d.app.Close()
}

// server builds the local API bound to ctx.
func (d *daemon) server(ctx context.Context) *api.Server {
	return api.NewServer(api.Deps{
		Status:      d.engine,
		Queue:       d.queue,
		Scheduler:   d.scheduler,
		Online:      d.monitor,
		Recorder:    d.engine.Outbox(d.queue.Enqueue),
		Hub:         d.hub,
		Version:     Version,
		BaseContext: ctx,
	})
}

func runDaemon(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.API.Listen = opts.Listen
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logging.Info("Received signal, shutting down", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	d, err := buildDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	logging.Info("Starting terminal sync core", map[string]interface{}{"config": cfg.String(), "version": Version})

	g, gctx := errgroup.WithContext(ctx)

	d.scheduler.Start(gctx)
	if opts.InitialSweep {
		d.scheduler.TriggerSweep(gctx)
	}

	if !opts.NoAPI {
		srv := d.server(gctx).HTTPServer(cfg.API.Listen)
		g.Go(func() error {
			logging.Info("Local API listening", map[string]interface{}{"addr": cfg.API.Listen})
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("local API: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Sync core started. Press Ctrl-C to stop.")

	g.Go(func() error {
		<-gctx.Done()
		d.scheduler.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "sync core stopped", err)
	}
	logging.Info("Terminal sync core stopped", nil)
	return nil
}
