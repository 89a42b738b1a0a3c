// Package config loads client configuration from a config file and
// LEDGERLINE_-prefixed environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the full client configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	OAuth   *OAuthConfig  `mapstructure:"oauth"`
}

// APIConfig locates the backend and bounds its calls.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	LivenessTimeout time.Duration `mapstructure:"liveness_timeout"`
}

// StorageConfig locates the credentials directory.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// OAuthConfig describes a federated login provider.
type OAuthConfig struct {
	Provider    string   `mapstructure:"provider"`
	ClientID    string   `mapstructure:"client_id"`
	RedirectURL string   `mapstructure:"redirect_url"`
	Scopes      []string `mapstructure:"scopes"`
}

// Load reads configuration from an optional file path (falling back to
// ~/.config/ledgerline/config.yaml) with environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDGERLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", "https://api.ledgerline.io")
	v.SetDefault("api.request_timeout", 30*time.Second)
	v.SetDefault("api.liveness_timeout", 3*time.Second)
	v.SetDefault("storage.dir", defaultStorageDir())
	v.SetDefault("logging.level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ledgerline"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; defaults and env cover it.
		// An explicitly named file that cannot be read is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "[Load] reading config file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "[Load] unmarshalling config")
	}
	return cfg, nil
}

func defaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ledgerline"
	}
	return filepath.Join(home, ".config", "ledgerline", "credentials")
}
