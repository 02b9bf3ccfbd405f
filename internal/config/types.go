package config

import (
	"strings"
	"time"

	"contra/internal/exchange"
)

// Config is the main configuration carrier.
type Config struct {
	App     AppConfig     `toml:"app"`
	Binance BinanceConfig `toml:"binance"`
	Trading TradingConfig `toml:"trading"`
	Signals SignalsConfig `toml:"signals"`
	Store   StoreConfig   `toml:"store"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type BinanceConfig struct {
	APIKey             string `toml:"api_key"`
	APISecret          string `toml:"api_secret"`
	Testnet            bool   `toml:"testnet"`
	RESTBaseURL        string `toml:"rest_base_url"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ProxyEnabled       bool   `toml:"proxy_enabled"`
	RESTProxyURL       string `toml:"rest_proxy_url"`
	WSProxyURL         string `toml:"ws_proxy_url"`
}

func (b BinanceConfig) HTTPTimeout() time.Duration {
	return time.Duration(b.HTTPTimeoutSeconds) * time.Second
}

// TradingConfig controls sizing, risk gates and the main loop cadence.
// This section is hot-reloadable.
type TradingConfig struct {
	Symbols              []string `toml:"symbols"`
	PositionSizeUSD      float64  `toml:"position_size_usd"`
	Leverage             int      `toml:"leverage"`
	MarginMode           string   `toml:"margin_mode"`
	MarginBuffer         float64  `toml:"margin_buffer"`
	MaxOpenPositions     int      `toml:"max_open_positions"`
	CheckIntervalSeconds int      `toml:"check_interval_seconds"`
	ErrorBackoffSeconds  int      `toml:"error_backoff_seconds"`
	BalanceRefreshCycles int      `toml:"balance_refresh_cycles"`
	Enabled              bool     `toml:"enabled"`
	RoundTripFeeRate     float64  `toml:"round_trip_fee_rate"`
	PartialTPRatio       float64  `toml:"partial_tp_ratio"`
}

func (t TradingConfig) CheckInterval() time.Duration {
	return time.Duration(t.CheckIntervalSeconds) * time.Second
}

func (t TradingConfig) ErrorBackoff() time.Duration {
	return time.Duration(t.ErrorBackoffSeconds) * time.Second
}

func (t TradingConfig) Margin() exchange.MarginMode {
	if strings.EqualFold(strings.TrimSpace(t.MarginMode), string(exchange.MarginCrossed)) {
		return exchange.MarginCrossed
	}
	return exchange.MarginIsolated
}

// RequiredMargin is the margin an entry consumes before the safety buffer.
func (t TradingConfig) RequiredMargin() float64 {
	if t.Leverage <= 0 {
		return t.PositionSizeUSD
	}
	return t.PositionSizeUSD / float64(t.Leverage)
}

type SignalsConfig struct {
	TrendInterval        string  `toml:"trend_interval"`
	TrendEMAPeriod       int     `toml:"trend_ema_period"`
	TrendSTPeriod        int     `toml:"trend_st_period"`
	TrendSTMultiplier    float64 `toml:"trend_st_multiplier"`
	PullbackInterval     string  `toml:"pullback_interval"`
	PullbackSTPeriod     int     `toml:"pullback_st_period"`
	PullbackSTMultiplier float64 `toml:"pullback_st_multiplier"`
	HistoryLimit         int     `toml:"history_limit"`
}

type StoreConfig struct {
	StatePath   string `toml:"state_path"`
	TradeDBPath string `toml:"trade_db_path"`
}
