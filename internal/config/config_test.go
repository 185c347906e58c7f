package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, filepath.Join(dir, "tradelens.db"), cfg.Database.DSN)
	assert.Equal(t, filepath.Join(dir, "images"), cfg.Storage.ImagesDir)
	assert.Equal(t, 7, cfg.Subscription.TrialDays)
	assert.Len(t, cfg.Billing.Plans, 2)
}

func TestLoadReadsTemplateBack(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.NoError(t, err)

	// Second load parses the written template instead of defaults.
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "pro_monthly", cfg.Billing.Plans[0].ID)
	assert.Equal(t, 30, cfg.Billing.Plans[0].DurationDays)
	assert.Equal(t, "*/30 * * * * *", cfg.Cron.EmailDispatch)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRADELENS_JWT_SECRET", "s3cret")
	t.Setenv("TRADELENS_DATABASE_DRIVER", "postgres")
	t.Setenv("TRADELENS_DATABASE_DSN", "postgres://localhost/tradelens")
	t.Setenv("BREVO_API_KEY", "brevo-key")
	t.Setenv("CASHFREE_SECRET_KEY", "cf-secret")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Credentials.JWTSecret)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/tradelens", cfg.Database.DSN)
	assert.Equal(t, "brevo-key", cfg.Credentials.Brevo.APIKey)
	assert.Equal(t, "cf-secret", cfg.Credentials.Cashfree.SecretKey)
	assert.NoError(t, cfg.ValidateServe())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, false},
		{"negative trial", func(c *Config) { c.Subscription.TrialDays = -1 }, false},
		{"zero price", func(c *Config) { c.Billing.Plans[0].Price = "0" }, false},
		{"bad price", func(c *Config) { c.Billing.Plans[0].Price = "abc" }, false},
		{"zero duration", func(c *Config) { c.Billing.Plans[0].DurationDays = 0 }, false},
		{"duplicate plan", func(c *Config) { c.Billing.Plans[1].ID = c.Billing.Plans[0].ID }, false},
		{"email off", func(c *Config) { c.Notify.Email = "off" }, true},
		{"bad notify level", func(c *Config) { c.Notify.InApp = "loud" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateServeRequiresSecret(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ValidateServe())
}
