// Package config loads nucleicore settings from an optional YAML file and
// NUCLEICORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"nucleicore/internal/blob"
)

const envPrefix = "NUCLEICORE"

// Config is the resolved application configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Blob    BlobConfig    `mapstructure:"blob"`
	Log     LogConfig     `mapstructure:"log"`
	Stats   StatsConfig   `mapstructure:"stats"`
	RuleSet string        `mapstructure:"ruleset" validate:"omitempty,file"`
	Verbose bool          `mapstructure:"verbose"`
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// BlobConfig selects the export blob store.
type BlobConfig struct {
	Driver string        `mapstructure:"driver" validate:"oneof=fs s3 memory"`
	FSRoot string        `mapstructure:"fs_root" validate:"required_if=Driver fs"`
	S3     blob.S3Config `mapstructure:"s3"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type StatsConfig struct {
	// Workers bounds concurrent per-member statistic computation; 0 means
	// GOMAXPROCS.
	Workers int `mapstructure:"workers" validate:"gte=0,lte=1024"`
}

// validate caches struct info across loads.
var validate = validator.New()

// explicit env names kept from the env-only store factories
var envAliases = map[string]string{
	"storage.sqlite_path":       "NUCLEICORE_SQLITE_PATH",
	"storage.postgres_dsn":      "NUCLEICORE_POSTGRES_DSN",
	"blob.s3.access_key_id":     "AWS_ACCESS_KEY_ID",
	"blob.s3.secret_access_key": "AWS_SECRET_ACCESS_KEY",
	"blob.s3.session_token":     "AWS_SESSION_TOKEN",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "./nucleicore.db")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.fs_root", "./blobdata")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("blob.s3.session_token", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("stats.workers", 0)
	v.SetDefault("ruleset", "")
	v.SetDefault("verbose", false)
}

// New returns a viper instance with defaults and environment bindings
// applied. Callers may bind flags on it before passing it to Load.
func New() *viper.Viper {
	keys := strings.NewReplacer(".", "_")
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(keys)
	v.AutomaticEnv()
	for key, alias := range envAliases {
		_ = v.BindEnv(key, envPrefix+"_"+strings.ToUpper(keys.Replace(key)), alias)
	}
	setDefaults(v)
	return v
}

// Load reads the config file at path (when non-empty), overlays the
// environment and validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Blob.Driver == string(blob.DriverS3) && c.Blob.S3.Bucket == "" {
		return errors.New("invalid config: blob.s3.bucket required when blob.driver is s3")
	}
	return nil
}

// BlobStoreConfig converts the blob section for blob.OpenConfig.
func (c Config) BlobStoreConfig() blob.Config {
	return blob.Config{Driver: blob.Driver(c.Blob.Driver), FSRoot: c.Blob.FSRoot, S3: c.Blob.S3}
}

// SlogLevel maps the configured level, raised to debug when Verbose is set.
func (c Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
