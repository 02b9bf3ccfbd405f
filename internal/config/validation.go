package config

import (
	"fmt"
	"strings"

	"contra/internal/pkg/symbol"
	"contra/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Binance.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Signals.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BinanceConfig) validate() error {
	if strings.TrimSpace(b.APIKey) == "" {
		return fmt.Errorf("binance.api_key is required")
	}
	if strings.TrimSpace(b.APISecret) == "" {
		return fmt.Errorf("binance.api_secret is required")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	t.Symbols = symbol.NormalizeList(t.Symbols)
	if len(t.Symbols) == 0 {
		return fmt.Errorf("trading.symbols requires at least one symbol")
	}
	for _, sym := range t.Symbols {
		if !symbol.IsValid(sym) {
			return fmt.Errorf("trading.symbols contains an unrecognized symbol: %q", sym)
		}
	}
	if t.PositionSizeUSD <= 0 {
		return fmt.Errorf("trading.position_size_usd must be positive")
	}
	if t.Leverage < 1 || t.Leverage > 125 {
		return fmt.Errorf("trading.leverage must be in [1, 125], got %d", t.Leverage)
	}
	mode := strings.ToUpper(strings.TrimSpace(t.MarginMode))
	if mode != "ISOLATED" && mode != "CROSSED" {
		return fmt.Errorf("trading.margin_mode must be ISOLATED or CROSSED, got %q", t.MarginMode)
	}
	if t.MarginBuffer < 1 {
		return fmt.Errorf("trading.margin_buffer must be >= 1, got %v", t.MarginBuffer)
	}
	if t.PartialTPRatio <= 0 || t.PartialTPRatio >= 1 {
		return fmt.Errorf("trading.partial_tp_ratio must be in (0, 1), got %v", t.PartialTPRatio)
	}
	if t.MaxOpenPositions < 1 {
		return fmt.Errorf("trading.max_open_positions must be positive, got %d", t.MaxOpenPositions)
	}
	if t.CheckIntervalSeconds < 1 {
		return fmt.Errorf("trading.check_interval_seconds must be positive, got %d", t.CheckIntervalSeconds)
	}
	if t.ErrorBackoffSeconds < 1 {
		return fmt.Errorf("trading.error_backoff_seconds must be positive, got %d", t.ErrorBackoffSeconds)
	}
	if t.BalanceRefreshCycles < 1 {
		return fmt.Errorf("trading.balance_refresh_cycles must be positive, got %d", t.BalanceRefreshCycles)
	}
	if t.RoundTripFeeRate <= 0 || t.RoundTripFeeRate >= 0.1 {
		return fmt.Errorf("trading.round_trip_fee_rate must be in (0, 0.1), got %v", t.RoundTripFeeRate)
	}
	return nil
}

func (s *SignalsConfig) validate() error {
	trendDur, ok := scheduler.ParseIntervalDuration(s.TrendInterval)
	if !ok {
		return fmt.Errorf("signals.trend_interval is not a valid interval: %q", s.TrendInterval)
	}
	pullbackDur, ok := scheduler.ParseIntervalDuration(s.PullbackInterval)
	if !ok {
		return fmt.Errorf("signals.pullback_interval is not a valid interval: %q", s.PullbackInterval)
	}
	if pullbackDur >= trendDur {
		return fmt.Errorf("signals.pullback_interval (%s) must be shorter than trend_interval (%s)",
			s.PullbackInterval, s.TrendInterval)
	}
	if s.HistoryLimit <= s.TrendEMAPeriod {
		return fmt.Errorf("signals.history_limit (%d) must exceed trend_ema_period (%d)",
			s.HistoryLimit, s.TrendEMAPeriod)
	}
	if s.HistoryLimit <= s.TrendSTPeriod || s.HistoryLimit <= s.PullbackSTPeriod {
		return fmt.Errorf("signals.history_limit (%d) must exceed the supertrend periods", s.HistoryLimit)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.StatePath) == "" {
		return fmt.Errorf("store.state_path is required")
	}
	if strings.TrimSpace(s.TradeDBPath) == "" {
		return fmt.Errorf("store.trade_db_path is required")
	}
	return nil
}
