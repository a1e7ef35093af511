package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEncryptionSecret = "encryption-secret-0123456789abcdef"
	testTokenSecret      = "token-secret-0123456789abcdef012345"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configContent := `
server:
  listen: ":9000"
auth:
  encryption_secret: ` + testEncryptionSecret + `
  token_secret: ` + testTokenSecret + `
store:
  driver: sqlite
  sqlite:
    path: /tmp/original.db
workflow:
  content_root: docs
`

	configPath := writeConfig(t, configContent)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":9000", cfg.Server.Listen)
				assert.Equal(t, "sqlite", cfg.Store.Driver)
				assert.Equal(t, "/tmp/original.db", cfg.Store.SQLite.Path)
				assert.Equal(t, "docs", cfg.Workflow.ContentRoot)
			},
		},
		{
			name: "string override - listen",
			envVars: map[string]string{
				"CONTENTOOR_SERVER_LISTEN": ":7000",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":7000", cfg.Server.Listen)
			},
		},
		{
			name: "nested override - preview project",
			envVars: map[string]string{
				"CONTENTOOR_WORKFLOW_PREVIEW_PROJECT": "docs-site",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "docs-site", cfg.Workflow.Preview.Project)
			},
		},
		{
			name: "boolean override - secure cookies",
			envVars: map[string]string{
				"CONTENTOOR_AUTH_SECURE_COOKIES": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Auth.SecureCookies)
			},
		},
		{
			name: "integer override - max diff tokens",
			envVars: map[string]string{
				"CONTENTOOR_WORKFLOW_MAX_DIFF_TOKENS": "123",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 123, cfg.Workflow.MaxDiffTokens)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "720h", cfg.Auth.SessionTTL)
	assert.Equal(t, "cms_session", cfg.Auth.CookieName)
	assert.Equal(t, 365, cfg.Auth.MaxTokenExpiryDays)
	assert.Equal(t, []string{"repo", "read:user"}, cfg.Auth.GitHub.Scopes)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "content", cfg.Workflow.ContentRoot)
	assert.Equal(t, "pages.dev", cfg.Workflow.Preview.Domain)
	assert.Equal(t, int64(25_000_000), cfg.Media.MaxSizeBytes())
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	base := writeConfig(t, "server:\n  listen: \":1111\"\nworkflow:\n  content_root: base\n")
	override := writeConfig(t, "workflow:\n  content_root: override\n")

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, ":1111", cfg.Server.Listen)
	assert.Equal(t, "override", cfg.Workflow.ContentRoot)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed\n"))
	require.Error(t, err)
}

func validConfig(t *testing.T) *Config {
	t.Helper()

	t.Setenv("CONTENTOOR_AUTH_ENCRYPTION_SECRET", testEncryptionSecret)
	t.Setenv("CONTENTOOR_AUTH_TOKEN_SECRET", testTokenSecret)

	cfg, err := Load()
	require.NoError(t, err)

	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "defaults with secrets are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "short encryption secret",
			mutate:  func(cfg *Config) { cfg.Auth.EncryptionSecret = "short" },
			wantErr: "auth.encryption_secret",
		},
		{
			name:    "identical secrets",
			mutate:  func(cfg *Config) { cfg.Auth.TokenSecret = cfg.Auth.EncryptionSecret },
			wantErr: "must differ",
		},
		{
			name:    "bad session ttl",
			mutate:  func(cfg *Config) { cfg.Auth.SessionTTL = "forever" },
			wantErr: "auth.session_ttl",
		},
		{
			name:    "unknown driver",
			mutate:  func(cfg *Config) { cfg.Store.Driver = "etcd" },
			wantErr: "unsupported driver",
		},
		{
			name:    "bad media size",
			mutate:  func(cfg *Config) { cfg.Media.MaxSize = "lots" },
			wantErr: "media.max_size",
		},
		{
			name: "s3 without bucket",
			mutate: func(cfg *Config) {
				cfg.Media.S3.Enabled = true
			},
			wantErr: "media.s3.bucket",
		},
		{
			name: "web login without redirect url",
			mutate: func(cfg *Config) {
				cfg.Auth.GitHub.ClientID = "client"
				cfg.Auth.GitHub.ClientSecret = "secret"
			},
			wantErr: "redirect_url",
		},
		{
			name: "device flow only needs a client id",
			mutate: func(cfg *Config) {
				cfg.Auth.GitHub.ClientID = "client"
				cfg.Auth.GitHub.DeviceFlow = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
