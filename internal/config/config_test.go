package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
binance:
  api_key: key
  api_secret: secret
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":10000", cfg.App.HTTPAddr)
	assert.Equal(t, defaultSymbols, cfg.Trading.Symbols)
	assert.Equal(t, 100.0, cfg.Trading.PositionSizeUSD)
	assert.Equal(t, 20, cfg.Trading.Leverage)
	assert.Equal(t, 1.5, cfg.Trading.MarginBuffer)
	assert.True(t, cfg.Trading.Enabled)
	assert.Equal(t, "4h", cfg.Signals.TrendInterval)
	assert.Equal(t, "1h", cfg.Signals.PullbackInterval)
	assert.Equal(t, 200, cfg.Signals.TrendEMAPeriod)
	assert.Equal(t, 300, cfg.Signals.HistoryLimit)
}

func TestLoadExplicitValuesSurviveDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
binance:
  api_key: key
  api_secret: secret
trading:
  symbols: [ETHUSDT]
  position_size_usd: 250
  leverage: 5
  enabled: false
signals:
  trend_ema_period: 50
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"ETHUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 250.0, cfg.Trading.PositionSizeUSD)
	assert.Equal(t, 5, cfg.Trading.Leverage)
	assert.False(t, cfg.Trading.Enabled, "explicit false must not be overridden by the default")
	assert.Equal(t, 50, cfg.Signals.TrendEMAPeriod)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing api key", `
binance:
  api_secret: secret
`, "binance.api_key"},
		{"bad leverage", minimalConfig + `
trading:
  leverage: 200
`, "trading.leverage"},
		{"bad margin mode", minimalConfig + `
trading:
  margin_mode: HEDGED
`, "trading.margin_mode"},
		{"unrecognized symbol", minimalConfig + `
trading:
  symbols: [FOO]
`, "unrecognized symbol"},
		{"zero check interval", minimalConfig + `
trading:
  check_interval_seconds: 0
`, "trading.check_interval_seconds"},
		{"zero balance refresh cycles", minimalConfig + `
trading:
  balance_refresh_cycles: 0
`, "trading.balance_refresh_cycles"},
		{"zero error backoff", minimalConfig + `
trading:
  error_backoff_seconds: 0
`, "trading.error_backoff_seconds"},
		{"pullback not shorter than trend", minimalConfig + `
signals:
  trend_interval: 1h
  pullback_interval: 4h
`, "must be shorter"},
		{"history below ema period", minimalConfig + `
signals:
  history_limit: 100
`, "history_limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	main := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(base, []byte(`
binance:
  api_key: base-key
  api_secret: base-secret
trading:
  leverage: 10
`), 0o644))
	require.NoError(t, os.WriteFile(main, []byte(`
include:
  - base.yaml
trading:
  leverage: 7
`), 0o644))

	cfg, err := Load(main)
	require.NoError(t, err)
	assert.Equal(t, "base-key", cfg.Binance.APIKey)
	assert.Equal(t, 7, cfg.Trading.Leverage, "the including file wins")
}

func TestTradingConfigHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.Trading.RequiredMargin(), "100 USD at 20x")
	assert.Equal(t, "ISOLATED", string(cfg.Trading.Margin()))
}
