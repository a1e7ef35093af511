package config

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	PublicURL   string          `yaml:"public_url,omitempty" mapstructure:"public_url"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth          RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AuthConfig contains session, token and login settings.
type AuthConfig struct {
	SessionTTL    string `yaml:"session_ttl" mapstructure:"session_ttl"`
	CookieName    string `yaml:"cookie_name" mapstructure:"cookie_name"`
	SecureCookies bool   `yaml:"secure_cookies" mapstructure:"secure_cookies"`

	// EncryptionSecret protects stored GitHub tokens at rest.
	EncryptionSecret string `yaml:"encryption_secret" mapstructure:"encryption_secret"`
	// TokenSecret signs application API tokens.
	TokenSecret string `yaml:"token_secret" mapstructure:"token_secret"`

	MaxTokenExpiryDays int `yaml:"max_token_expiry_days" mapstructure:"max_token_expiry_days"`

	GitHub GitHubOAuthConfig `yaml:"github,omitempty" mapstructure:"github"`
}

// GitHubOAuthConfig configures the GitHub OAuth application used for login.
type GitHubOAuthConfig struct {
	ClientID     string   `yaml:"client_id,omitempty" mapstructure:"client_id"`
	ClientSecret string   `yaml:"client_secret,omitempty" mapstructure:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url,omitempty" mapstructure:"redirect_url"`
	Scopes       []string `yaml:"scopes,omitempty" mapstructure:"scopes"`
	// AppURL is where the browser lands after a successful web login.
	AppURL     string `yaml:"app_url,omitempty" mapstructure:"app_url"`
	DeviceFlow bool   `yaml:"device_flow" mapstructure:"device_flow"`
}

// Enabled reports whether web login is configured.
func (c *GitHubOAuthConfig) Enabled() bool {
	return c.ClientID != ""
}

// GitHubConfig configures the remote host REST client.
type GitHubConfig struct {
	APIURL  string `yaml:"api_url" mapstructure:"api_url"`
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Driver          string               `yaml:"driver" mapstructure:"driver"`
	CleanupInterval string               `yaml:"cleanup_interval,omitempty" mapstructure:"cleanup_interval"`
	Redis           RedisConfig          `yaml:"redis,omitempty" mapstructure:"redis"`
	SQLite          SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres        PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	KeyPrefix string `yaml:"key_prefix,omitempty" mapstructure:"key_prefix"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// WorkflowConfig configures content paths and review previews.
type WorkflowConfig struct {
	ContentRoot   string        `yaml:"content_root" mapstructure:"content_root"`
	ConfigPath    string        `yaml:"config_path" mapstructure:"config_path"`
	MaxDiffTokens int           `yaml:"max_diff_tokens" mapstructure:"max_diff_tokens"`
	Preview       PreviewConfig `yaml:"preview,omitempty" mapstructure:"preview"`
}

// PreviewConfig describes the per-branch preview deployment host. Preview
// URLs are only produced when Project is set.
type PreviewConfig struct {
	Project string `yaml:"project,omitempty" mapstructure:"project"`
	Domain  string `yaml:"domain,omitempty" mapstructure:"domain"`
}

// MediaConfig configures presigned asset uploads.
type MediaConfig struct {
	MaxSize string   `yaml:"max_size" mapstructure:"max_size"`
	S3      S3Config `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3Config contains S3 settings for presigned upload URL generation.
type S3Config struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
	PresignExpiry   string `yaml:"presign_expiry,omitempty" mapstructure:"presign_expiry"`
	PublicBaseURL   string `yaml:"public_base_url,omitempty" mapstructure:"public_base_url"`
}
