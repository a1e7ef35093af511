package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable override.
	EnvPrefix = "CONTENTOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// MinSecretLength is the minimum accepted length of configured secrets.
	MinSecretLength = 32
)

var validDrivers = map[string]struct{}{
	"redis":    {},
	"sqlite":   {},
	"postgres": {},
}

// Config is the root configuration for contentoor.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	GitHub   GitHubConfig   `yaml:"github" mapstructure:"github"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Workflow WorkflowConfig `yaml:"workflow" mapstructure:"workflow"`
	Media    MediaConfig    `yaml:"media" mapstructure:"media"`
}

// Load reads and merges the given configuration files in order, applies
// defaults and CONTENTOOR_* environment overrides. With no paths, only
// defaults and the environment are used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides resolve even
// when the key is absent from all config files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.auth.requests_per_minute", 30)
	v.SetDefault("server.rate_limit.authenticated.requests_per_minute", 600)

	v.SetDefault("auth.session_ttl", "720h")
	v.SetDefault("auth.cookie_name", "cms_session")
	v.SetDefault("auth.secure_cookies", false)
	v.SetDefault("auth.encryption_secret", "")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.max_token_expiry_days", 365)
	v.SetDefault("auth.github.client_id", "")
	v.SetDefault("auth.github.client_secret", "")
	v.SetDefault("auth.github.redirect_url", "")
	v.SetDefault("auth.github.scopes", []string{"repo", "read:user"})
	v.SetDefault("auth.github.app_url", "/")
	v.SetDefault("auth.github.device_flow", false)

	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.timeout", "15s")

	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.cleanup_interval", "15m")
	v.SetDefault("store.redis.url", "redis://localhost:6379/0")
	v.SetDefault("store.redis.key_prefix", "contentoor:")
	v.SetDefault("store.sqlite.path", "contentoor.db")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "contentoor")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.database", "contentoor")
	v.SetDefault("store.postgres.ssl_mode", "disable")

	v.SetDefault("workflow.content_root", "content")
	v.SetDefault("workflow.config_path", ".cms/config.yml")
	v.SetDefault("workflow.max_diff_tokens", 4000)
	v.SetDefault("workflow.preview.project", "")
	v.SetDefault("workflow.preview.domain", "pages.dev")

	v.SetDefault("media.max_size", "25MB")
	v.SetDefault("media.s3.enabled", false)
	v.SetDefault("media.s3.endpoint_url", "")
	v.SetDefault("media.s3.region", "us-east-1")
	v.SetDefault("media.s3.bucket", "")
	v.SetDefault("media.s3.access_key_id", "")
	v.SetDefault("media.s3.secret_access_key", "")
	v.SetDefault("media.s3.force_path_style", false)
	v.SetDefault("media.s3.presign_expiry", "15m")
	v.SetDefault("media.s3.public_base_url", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Auth.RequestsPerMinute <= 0 ||
			c.Server.RateLimit.Authenticated.RequestsPerMinute <= 0 {
			return fmt.Errorf("server.rate_limit tiers must allow at least one request per minute")
		}
	}

	if err := c.Auth.validate(); err != nil {
		return err
	}

	if _, err := url.ParseRequestURI(c.GitHub.APIURL); err != nil {
		return fmt.Errorf("github.api_url: %w", err)
	}

	if _, err := parsePositiveDuration("github.timeout", c.GitHub.Timeout); err != nil {
		return err
	}

	if err := c.Store.validate(); err != nil {
		return err
	}

	if c.Workflow.ContentRoot == "" {
		return fmt.Errorf("workflow.content_root is required")
	}

	if c.Workflow.MaxDiffTokens <= 0 {
		return fmt.Errorf("workflow.max_diff_tokens must be positive")
	}

	return c.Media.validate()
}

func (a *AuthConfig) validate() error {
	if _, err := parsePositiveDuration("auth.session_ttl", a.SessionTTL); err != nil {
		return err
	}

	if a.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}

	if len(a.EncryptionSecret) < MinSecretLength {
		return fmt.Errorf("auth.encryption_secret must be at least %d characters", MinSecretLength)
	}

	if len(a.TokenSecret) < MinSecretLength {
		return fmt.Errorf("auth.token_secret must be at least %d characters", MinSecretLength)
	}

	if a.EncryptionSecret == a.TokenSecret {
		return fmt.Errorf("auth.encryption_secret and auth.token_secret must differ")
	}

	if a.MaxTokenExpiryDays <= 0 {
		return fmt.Errorf("auth.max_token_expiry_days must be positive")
	}

	if a.GitHub.Enabled() {
		if a.GitHub.ClientSecret == "" && !a.GitHub.DeviceFlow {
			return fmt.Errorf("auth.github.client_secret is required for web login")
		}

		if a.GitHub.ClientSecret != "" && a.GitHub.RedirectURL == "" {
			return fmt.Errorf("auth.github.redirect_url is required for web login")
		}
	}

	return nil
}

func (s *StoreConfig) validate() error {
	if _, ok := validDrivers[s.Driver]; !ok {
		return fmt.Errorf("store.driver: unsupported driver %q", s.Driver)
	}

	if _, err := parsePositiveDuration("store.cleanup_interval", s.CleanupInterval); err != nil {
		return err
	}

	switch s.Driver {
	case "redis":
		if s.Redis.URL == "" {
			return fmt.Errorf("store.redis.url is required")
		}
	case "sqlite":
		if s.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required")
		}
	case "postgres":
		if s.Postgres.Host == "" || s.Postgres.Database == "" {
			return fmt.Errorf("store.postgres.host and store.postgres.database are required")
		}
	}

	return nil
}

func (m *MediaConfig) validate() error {
	if _, err := units.FromHumanSize(m.MaxSize); err != nil {
		return fmt.Errorf("media.max_size: %w", err)
	}

	if !m.S3.Enabled {
		return nil
	}

	if m.S3.Bucket == "" {
		return fmt.Errorf("media.s3.bucket is required when s3 is enabled")
	}

	if _, err := parsePositiveDuration("media.s3.presign_expiry", m.S3.PresignExpiry); err != nil {
		return err
	}

	return nil
}

// SessionTTLDuration returns the parsed session lifetime. Call after Validate.
func (a *AuthConfig) SessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(a.SessionTTL)

	return d
}

// TimeoutDuration returns the parsed remote host request timeout.
func (g *GitHubConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(g.Timeout)

	return d
}

// CleanupIntervalDuration returns the parsed expired-entry purge interval.
func (s *StoreConfig) CleanupIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(s.CleanupInterval)

	return d
}

// MaxSizeBytes returns the parsed upload size ceiling.
func (m *MediaConfig) MaxSizeBytes() int64 {
	n, _ := units.FromHumanSize(m.MaxSize)

	return n
}

// PresignExpiryDuration returns the parsed presigned URL lifetime.
func (s *S3Config) PresignExpiryDuration() time.Duration {
	d, _ := time.ParseDuration(s.PresignExpiry)

	return d
}

func parsePositiveDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}

	return d, nil
}
