// Package config loads the terminal sync configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kimhsiao/tijara/backend/internal/crypto"
	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/sync/assets"
)

// Config is the terminal sync configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Terminal TerminalConfig `yaml:"terminal"`
	Remote   RemoteConfig   `yaml:"remote"`
	Assets   AssetsConfig   `yaml:"assets"`
	Sync     SyncConfig     `yaml:"sync"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
}

// TerminalConfig identifies the terminal to the central API.
type TerminalConfig struct {
	TenantID   string `yaml:"tenant_id"`
	LocationID string `yaml:"location_id"`
	DeviceID   string `yaml:"device_id"`
}

// RemoteConfig holds the central API connection.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token,omitempty"` // plaintext, discouraged
	TokenEncrypted string        `yaml:"token_encrypted"`
	Timeout        time.Duration `yaml:"timeout"`
}

// AssetsConfig holds object storage settings. Assets are disabled without a bucket.
type AssetsConfig struct {
	assets.ProviderConfig `yaml:",inline"`
	SecretKeyEncrypted    string `yaml:"secret_key_encrypted"`
}

// Enabled reports whether asset upload is configured.
func (a *AssetsConfig) Enabled() bool {
	return a.Bucket != ""
}

// SyncConfig holds scheduling settings.
type SyncConfig struct {
	QueueInterval           time.Duration `yaml:"queue_interval"`
	SweepInterval           time.Duration `yaml:"sweep_interval"`
	MaxOperationsPerRequest int           `yaml:"max_operations_per_request"`
	SweepEnqueuePushes      bool          `yaml:"sweep_enqueue_pushes"`
	QueueMaxSize            int           `yaml:"queue_max_size"`
}

// APIConfig holds the local control API settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
		},
		Assets: AssetsConfig{
			ProviderConfig: assets.ProviderConfig{Provider: assets.ProviderMinIO},
		},
		Sync: SyncConfig{
			QueueInterval:      2 * time.Second,
			SweepInterval:      20 * time.Minute,
			SweepEnqueuePushes: true,
			QueueMaxSize:       1000,
		},
		API: APIConfig{Listen: "127.0.0.1:8090"},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfig, "failed to read config "+path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrConfig, "failed to parse config "+path, err)
	}

	// relative data dirs are resolved against the config file
	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(filepath.Dir(path), cfg.DataDir)
	}
	return cfg, nil
}

// ResolveSecrets decrypts the encrypted secrets with the machine key.
// A plaintext value already set wins over its encrypted form.
func (c *Config) ResolveSecrets(machineID string) error {
	if c.Remote.Token == "" && c.Remote.TokenEncrypted != "" {
		token, err := crypto.DecryptSecret(c.Remote.TokenEncrypted, machineID)
		if err != nil {
			return errors.Wrap(errors.ErrCryptoFailed, "failed to decrypt remote.token_encrypted", err)
		}
		c.Remote.Token = token
	}
	if c.Assets.SecretKey == "" && c.Assets.SecretKeyEncrypted != "" {
		secret, err := crypto.DecryptSecret(c.Assets.SecretKeyEncrypted, machineID)
		if err != nil {
			return errors.Wrap(errors.ErrCryptoFailed, "failed to decrypt assets.secret_key_encrypted", err)
		}
		c.Assets.SecretKey = secret
	}
	return nil
}

// Validate checks the settings needed to run the sync loops.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return errors.New(errors.ErrConfig, "data_dir is required")
	case c.Remote.BaseURL == "":
		return errors.New(errors.ErrConfig, "remote.base_url is required")
	case c.Sync.QueueInterval <= 0:
		return errors.New(errors.ErrConfig, "sync.queue_interval must be positive")
	case c.Sync.SweepInterval <= 0:
		return errors.New(errors.ErrConfig, "sync.sweep_interval must be positive")
	case c.Sync.MaxOperationsPerRequest < 0:
		return errors.New(errors.ErrConfig, "sync.max_operations_per_request must not be negative")
	}
	if c.Assets.Enabled() {
		if _, err := c.Assets.MinIOConfig(); err != nil {
			return errors.Wrap(errors.ErrConfig, "invalid assets section", err)
		}
	}
	return nil
}

// QueueDir is the directory of the persistent dispatch queue.
func (c *Config) QueueDir() string {
	return filepath.Join(c.DataDir, "queue")
}

// String summarizes the configuration without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("data_dir=%s remote=%s assets=%t api=%s", c.DataDir, c.Remote.BaseURL, c.Assets.Enabled(), c.API.Listen)
}
