package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
kis:
  app_key: key
  app_secret: secret
  base_url: https://openapivts.koreainvestment.com:29443
  account_no: "12345678-01"
trading:
  symbols: ["005930"]
  stop_loss_pct: 0.1
position_management:
  purchase_cooldown: 24h
order:
  timeout: 2m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"005930"}, cfg.Trading.Symbols)
	assert.Equal(t, 0.1, cfg.Trading.StopLossPct)
	assert.Equal(t, 0.25, cfg.Trading.TakeProfitPct)
	assert.Equal(t, 24*time.Hour, cfg.PositionManagement.PurchaseCooldown)
	assert.Equal(t, 72*time.Hour, cfg.PositionManagement.MinHoldingPeriod)
	assert.Equal(t, 2*time.Minute, cfg.Order.Timeout)
	assert.Equal(t, 3, cfg.Broker.MaxAttempts)
	assert.True(t, cfg.PaperTrading())
	assert.True(t, cfg.Trading.AllowPartialFill())
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("KIS_APP_SECRET", "from-env")
	path := writeConfig(t, `
kis:
  app_key: key
  app_secret: file
  account_no: "12345678-01"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.KIS.AppSecret)
	assert.False(t, cfg.PaperTrading())
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing credentials", "kis:\n  account_no: \"1-01\"\n"},
		{"bad account", "kis:\n  app_key: a\n  app_secret: b\n  account_no: \"1234567801\"\n"},
		{"bad strategy", "kis:\n  app_key: a\n  app_secret: b\n  account_no: \"1-01\"\nstrategy:\n  kind: breakout\n"},
		{"bad holiday", "kis:\n  app_key: a\n  app_secret: b\n  account_no: \"1-01\"\nschedule:\n  holidays: [\"2025/01/01\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
