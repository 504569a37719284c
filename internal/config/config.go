package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for the mock server.
type Config struct {
	// Server configuration
	Listen    string `mapstructure:"listen"`
	TLSListen string `mapstructure:"tls_listen"`
	LogLevel  string `mapstructure:"log_level"`

	// TLS configuration
	EnableTLS bool   `mapstructure:"enable_tls"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`

	// Storage configuration
	Root              string `mapstructure:"root"`
	RetainFilesOnExit bool   `mapstructure:"retain_files_on_exit"`

	// Region reported by GetBucketLocation and CreateBucket.
	Region string `mapstructure:"region"`

	// InitialBuckets are created at startup, comma-separated.
	InitialBuckets string `mapstructure:"initial_buckets"`

	// ValidKMSKeys are the KMS key references accepted on aws:kms writes,
	// comma-separated.
	ValidKMSKeys string `mapstructure:"valid_kms_keys"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// InitialBucketNames returns the parsed initial bucket list.
func (c *Config) InitialBucketNames() []string {
	return splitList(c.InitialBuckets)
}

// ValidKMSKeyIDs returns the parsed KMS key reference list.
func (c *Config) ValidKMSKeyIDs() []string {
	return splitList(c.ValidKMSKeys)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load loads configuration from flags, an optional config file and
// environment variables, in ascending precedence of env over file.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("S3MOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":9090")
	v.SetDefault("tls_listen", ":9191")
	v.SetDefault("log_level", "info")

	v.SetDefault("enable_tls", false)

	// Empty root means a fresh directory under the system temp dir.
	v.SetDefault("root", "")
	v.SetDefault("retain_files_on_exit", false)

	v.SetDefault("region", "us-east-1")
	v.SetDefault("initial_buckets", "")
	v.SetDefault("valid_kms_keys", "")

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":               "listen",
		"tls-listen":           "tls_listen",
		"log-level":            "log_level",
		"enable-tls":           "enable_tls",
		"cert-file":            "cert_file",
		"key-file":             "key_file",
		"root":                 "root",
		"retain-files-on-exit": "retain_files_on_exit",
		"region":               "region",
		"initial-buckets":      "initial_buckets",
		"valid-kms-keys":       "valid_kms_keys",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.Root == "" {
		cfg.Root = filepath.Join(os.TempDir(),
			fmt.Sprintf("s3mockFileStore%d", time.Now().UnixMilli()))
	}
	if !filepath.IsAbs(cfg.Root) {
		absRoot, err := filepath.Abs(cfg.Root)
		if err != nil {
			return fmt.Errorf("failed to resolve root: %w", err)
		}
		cfg.Root = absRoot
	}

	if cfg.EnableTLS {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert-file or key-file not specified")
		}
	}

	for _, name := range cfg.InitialBucketNames() {
		if name == "" {
			return fmt.Errorf("initial bucket name must not be empty")
		}
	}

	return nil
}
