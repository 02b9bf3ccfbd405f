package app

import (
	"fmt"
	"strings"

	"contra/internal/config"
	"contra/internal/logger"
)

// printSummary logs the effective configuration at startup, secrets
// excluded.
func printSummary(cfg *config.Config) {
	net := "mainnet"
	if cfg.Binance.Testnet {
		net = "testnet"
	}
	var b strings.Builder
	line := strings.Repeat("=", 64)
	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "contra startup summary")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "env=%s network=%s http=%s\n", cfg.App.Env, net, cfg.App.HTTPAddr)
	fmt.Fprintf(&b, "symbols: %s\n", formatList(cfg.Trading.Symbols))
	fmt.Fprintf(&b, "sizing: %.2f USDT at %dx %s (margin buffer %.2f, max %d positions)\n",
		cfg.Trading.PositionSizeUSD, cfg.Trading.Leverage, cfg.Trading.Margin(),
		cfg.Trading.MarginBuffer, cfg.Trading.MaxOpenPositions)
	fmt.Fprintf(&b, "signals: trend %s (EMA %d, ST %d/%.1f), pullback %s (ST %d/%.1f)\n",
		cfg.Signals.TrendInterval, cfg.Signals.TrendEMAPeriod,
		cfg.Signals.TrendSTPeriod, cfg.Signals.TrendSTMultiplier,
		cfg.Signals.PullbackInterval, cfg.Signals.PullbackSTPeriod, cfg.Signals.PullbackSTMultiplier)
	fmt.Fprintf(&b, "loop: every %s, error backoff %s, trading_enabled=%v\n",
		cfg.Trading.CheckInterval(), cfg.Trading.ErrorBackoff(), cfg.Trading.Enabled)
	fmt.Fprintf(&b, "state: %s, trades: %s\n", cfg.Store.StatePath, cfg.Store.TradeDBPath)
	fmt.Fprint(&b, line)
	logger.InfoBlock(b.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
