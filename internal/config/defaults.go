package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":10000"
	defaultAppLogPath  = "/data/logs/contra.log"

	defaultBinanceHTTPTimeout = 15

	defaultPositionSizeUSD      = 100
	defaultLeverage             = 20
	defaultMarginMode           = "ISOLATED"
	defaultMarginBuffer         = 1.5
	defaultMaxOpenPositions     = 8
	defaultCheckIntervalSeconds = 300
	defaultErrorBackoffSeconds  = 60
	defaultBalanceRefreshCycles = 10
	defaultRoundTripFeeRate     = 0.002
	defaultPartialTPRatio       = 0.5

	defaultTrendInterval        = "4h"
	defaultTrendEMAPeriod       = 200
	defaultTrendSTPeriod        = 10
	defaultTrendSTMultiplier    = 3.0
	defaultPullbackInterval     = "1h"
	defaultPullbackSTPeriod     = 10
	defaultPullbackSTMultiplier = 3.0
	defaultHistoryLimit         = 300

	defaultStatePath   = "/data/state/positions.json"
	defaultTradeDBPath = "/data/db/trades.db"
)

var defaultSymbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT", "DOGEUSDT", "AVAXUSDT"}

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Signals.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "binance.http_timeout_seconds",
			need:  func() bool { return b.HTTPTimeoutSeconds <= 0 },
			apply: func() { b.HTTPTimeoutSeconds = defaultBinanceHTTPTimeout },
		},
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "trading.symbols",
			need:  func() bool { return len(t.Symbols) == 0 },
			apply: func() { t.Symbols = append([]string(nil), defaultSymbols...) },
		},
		fieldDefault{
			key:   "trading.position_size_usd",
			need:  func() bool { return t.PositionSizeUSD <= 0 },
			apply: func() { t.PositionSizeUSD = defaultPositionSizeUSD },
		},
		fieldDefault{
			key:   "trading.leverage",
			need:  func() bool { return t.Leverage <= 0 },
			apply: func() { t.Leverage = defaultLeverage },
		},
		stringFieldDefault("trading.margin_mode", &t.MarginMode, defaultMarginMode),
		fieldDefault{
			key:   "trading.margin_buffer",
			need:  func() bool { return t.MarginBuffer <= 0 },
			apply: func() { t.MarginBuffer = defaultMarginBuffer },
		},
		fieldDefault{
			key:   "trading.max_open_positions",
			need:  func() bool { return t.MaxOpenPositions <= 0 },
			apply: func() { t.MaxOpenPositions = defaultMaxOpenPositions },
		},
		fieldDefault{
			key:   "trading.check_interval_seconds",
			need:  func() bool { return t.CheckIntervalSeconds <= 0 },
			apply: func() { t.CheckIntervalSeconds = defaultCheckIntervalSeconds },
		},
		fieldDefault{
			key:   "trading.error_backoff_seconds",
			need:  func() bool { return t.ErrorBackoffSeconds <= 0 },
			apply: func() { t.ErrorBackoffSeconds = defaultErrorBackoffSeconds },
		},
		fieldDefault{
			key:   "trading.balance_refresh_cycles",
			need:  func() bool { return t.BalanceRefreshCycles <= 0 },
			apply: func() { t.BalanceRefreshCycles = defaultBalanceRefreshCycles },
		},
		boolFieldDefault("trading.enabled", &t.Enabled, true),
		fieldDefault{
			key:   "trading.round_trip_fee_rate",
			need:  func() bool { return t.RoundTripFeeRate <= 0 },
			apply: func() { t.RoundTripFeeRate = defaultRoundTripFeeRate },
		},
		fieldDefault{
			key:   "trading.partial_tp_ratio",
			need:  func() bool { return t.PartialTPRatio <= 0 || t.PartialTPRatio >= 1 },
			apply: func() { t.PartialTPRatio = defaultPartialTPRatio },
		},
	)
}

func (s *SignalsConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("signals.trend_interval", &s.TrendInterval, defaultTrendInterval),
		stringFieldDefault("signals.pullback_interval", &s.PullbackInterval, defaultPullbackInterval),
		fieldDefault{
			key:   "signals.trend_ema_period",
			need:  func() bool { return s.TrendEMAPeriod <= 0 },
			apply: func() { s.TrendEMAPeriod = defaultTrendEMAPeriod },
		},
		fieldDefault{
			key:   "signals.trend_st_period",
			need:  func() bool { return s.TrendSTPeriod <= 0 },
			apply: func() { s.TrendSTPeriod = defaultTrendSTPeriod },
		},
		fieldDefault{
			key:   "signals.trend_st_multiplier",
			need:  func() bool { return s.TrendSTMultiplier <= 0 },
			apply: func() { s.TrendSTMultiplier = defaultTrendSTMultiplier },
		},
		fieldDefault{
			key:   "signals.pullback_st_period",
			need:  func() bool { return s.PullbackSTPeriod <= 0 },
			apply: func() { s.PullbackSTPeriod = defaultPullbackSTPeriod },
		},
		fieldDefault{
			key:   "signals.pullback_st_multiplier",
			need:  func() bool { return s.PullbackSTMultiplier <= 0 },
			apply: func() { s.PullbackSTMultiplier = defaultPullbackSTMultiplier },
		},
		fieldDefault{
			key:   "signals.history_limit",
			need:  func() bool { return s.HistoryLimit <= 0 },
			apply: func() { s.HistoryLimit = defaultHistoryLimit },
		},
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.state_path", &s.StatePath, defaultStatePath),
		stringFieldDefault("store.trade_db_path", &s.TradeDBPath, defaultTradeDBPath),
	)
}

// Helper machinery: a fieldDefault only applies when the key was absent
// from every config file and the current value still needs one.

type keySet map[string]struct{}

func (k keySet) mark(key string) {
	if k == nil {
		return
	}
	k[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
}

func (k keySet) isSet(key string) bool {
	if k == nil {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
