package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DSA_REFERRAL_PARAM", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "ref", cfg.Tracking.ReferralParam)
	assert.Equal(t, 30, cfg.Tracking.CookieDays)
	assert.Equal(t, 24*time.Hour, cfg.Tracking.DuplicateWindow)
	assert.Equal(t, 100, cfg.Tracking.RateLimitPerHour)
	assert.Equal(t, 10.0, cfg.Program.DefaultCommissionRate)
	assert.True(t, cfg.Program.NotifyAdmin)
	assert.True(t, cfg.Program.ExpireCookieOnComplete)
	assert.Empty(t, cfg.ProductRates)
	assert.NoError(t, cfg.FileError)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DSA_REFERRAL_PARAM", "aff")
	t.Setenv("DSA_COOKIE_DAYS", "7")
	t.Setenv("DSA_DUPLICATE_WINDOW_HOURS", "12")
	t.Setenv("DSA_DEFAULT_COMMISSION_RATE", "15.5")
	t.Setenv("DSA_NOTIFY_ADMIN", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg := Load()

	assert.Equal(t, "aff", cfg.Tracking.ReferralParam)
	assert.Equal(t, 7, cfg.Tracking.CookieDays)
	assert.Equal(t, 12*time.Hour, cfg.Tracking.DuplicateWindow)
	assert.Equal(t, 15.5, cfg.Program.DefaultCommissionRate)
	assert.False(t, cfg.Program.NotifyAdmin)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("DSA_COOKIE_DAYS", "thirty")
	t.Setenv("DSA_NOTIFY_ADMIN", "maybe")

	cfg := Load()

	assert.Equal(t, 30, cfg.Tracking.CookieDays)
	assert.True(t, cfg.Program.NotifyAdmin)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "affiliate.yaml")
	content := `
tracking:
  referral_param: partner
  duplicate_window: 6h
program:
  default_commission_rate: 20
  notify_admin: false
product_rates:
  "plan-gold": 25
  "plan-silver": 12.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	t.Run("file values apply", func(t *testing.T) {
		cfg := Load()
		require.NoError(t, cfg.FileError)

		assert.Equal(t, "partner", cfg.Tracking.ReferralParam)
		assert.Equal(t, 6*time.Hour, cfg.Tracking.DuplicateWindow)
		assert.Equal(t, 30, cfg.Tracking.CookieDays)
		assert.Equal(t, 20.0, cfg.Program.DefaultCommissionRate)
		assert.False(t, cfg.Program.NotifyAdmin)
		assert.True(t, cfg.Program.ExpireCookieOnComplete)
		assert.Equal(t, 25.0, cfg.ProductRates["plan-gold"])
		assert.Equal(t, 12.5, cfg.ProductRates["plan-silver"])
	})

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("DSA_REFERRAL_PARAM", "via")

		cfg := Load()
		assert.Equal(t, "via", cfg.Tracking.ReferralParam)
	})
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()

	assert.Error(t, cfg.FileError)
	assert.Equal(t, "ref", cfg.Tracking.ReferralParam)
}
