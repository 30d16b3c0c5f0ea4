package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/tijara/backend/internal/config"
	"github.com/kimhsiao/tijara/backend/internal/crypto"
	"github.com/kimhsiao/tijara/backend/internal/db"
	"github.com/kimhsiao/tijara/backend/internal/logging"
	syncpkg "github.com/kimhsiao/tijara/backend/internal/sync"
	"github.com/kimhsiao/tijara/backend/internal/sync/remote"
)

// loadConfig reads the config file, applies flag overrides, decrypts the
// secrets and configures logging.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if err := cfg.ResolveSecrets(crypto.MachineID()); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve secrets", err)
	}

	level := logging.ParseLevel(cfg.Log.Level)
	if opts.Verbose {
		level = logging.LevelDebug
	}
	logging.Init(os.Stderr, level)
	return cfg, nil
}

// app is the local state shared by the offline commands.
type app struct {
	cfg      *config.Config
	database *db.DB
	repo     *db.Repository
	client   *remote.Client
	engine   *syncpkg.Engine
}

func newRemoteClient(cfg *config.Config) *remote.Client {
	return remote.NewClient(&remote.Config{
		BaseURL:    cfg.Remote.BaseURL,
		Token:      cfg.Remote.Token,
		DeviceID:   cfg.Terminal.DeviceID,
		TenantID:   cfg.Terminal.TenantID,
		LocationID: cfg.Terminal.LocationID,
		Timeout:    cfg.Remote.Timeout,
	})
}

// openApp opens the terminal database. The returned engine has no asset
// uploader and is meant for local inspection.
func openApp(cfg *config.Config) (*app, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	repo := db.NewRepository(database.DB)
	client := newRemoteClient(cfg)
	return &app{
		cfg:      cfg,
		database: database,
		repo:     repo,
		client:   client,
		engine: syncpkg.NewEngine(repo, client, nil, &syncpkg.PushConfig{
			MaxOperationsPerRequest: cfg.Sync.MaxOperationsPerRequest,
		}),
	}, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		logging.Warn("Failed to close prepared statements", map[string]interface{}{"error": err.Error()})
	}
	if err := a.database.Close(); err != nil {
		logging.Warn("Failed to close database", map[string]interface{}{"error": err.Error()})
	}
}

// withPrinter adapts fn to cobra, reporting failures in JSON mode.
func withPrinter(opts *RootOptions, fn func(cmd *cobra.Command, args []string, p *Printer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p := &Printer{Format: opts.Format, Out: cmd.OutOrStdout()}
		err := fn(cmd, args, p)
		if err != nil {
			p.Failure(err)
		}
		return err
	}
}
