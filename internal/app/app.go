package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"contra/internal/config"
	"contra/internal/engine"
	"contra/internal/gateway/binance"
	"contra/internal/logger"
	"contra/internal/market"
	"contra/internal/store"
	"contra/internal/store/statestore"
	"contra/internal/store/tradelog"
	livehttp "contra/internal/transport/http/live"
)

// App wires the gateway, the engine and the HTTP API together and runs
// them under one errgroup.
type App struct {
	cfg     *config.Config
	cfgPath string

	engine *engine.Engine
	server *livehttp.Server
	trades *tradelog.Store
}

// New builds the application from a loaded config. cfgPath enables hot
// reload of the trading section; pass "" to disable watching.
func New(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	gwCfg := binance.Config{
		APIKey:       cfg.Binance.APIKey,
		APISecret:    cfg.Binance.APISecret,
		Testnet:      cfg.Binance.Testnet,
		RESTBaseURL:  cfg.Binance.RESTBaseURL,
		HTTPTimeout:  cfg.Binance.HTTPTimeout(),
		ProxyEnabled: cfg.Binance.ProxyEnabled,
		RESTProxyURL: cfg.Binance.RESTProxyURL,
		WSProxyURL:   cfg.Binance.WSProxyURL,
	}
	exec, err := binance.NewExecutionClient(gwCfg)
	if err != nil {
		return nil, fmt.Errorf("build execution client: %w", err)
	}
	source, err := binance.NewSource(gwCfg)
	if err != nil {
		return nil, fmt.Errorf("build market source: %w", err)
	}

	states, err := statestore.New(cfg.Store.StatePath)
	if err != nil {
		return nil, fmt.Errorf("build state store: %w", err)
	}
	trades, err := tradelog.New(cfg.Store.TradeDBPath)
	if err != nil {
		return nil, fmt.Errorf("build trade log: %w", err)
	}

	eng, err := engine.New(engine.Params{
		Config:     cfg,
		Execution:  exec,
		Source:     source,
		Klines:     store.NewMemoryKlineStore(),
		Prices:     market.NewPriceCache(),
		StateStore: states,
		TradeLog:   trades,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	server, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:       cfg.App.HTTPAddr,
		Controller: eng,
		Trades:     trades,
	})
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &App{cfg: cfg, cfgPath: cfgPath, engine: eng, server: server, trades: trades}, nil
}

// Run blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	printSummary(a.cfg)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		defer a.closeStores()
		return a.engine.Run(ctx)
	})

	if a.cfgPath != "" {
		stop, err := config.Watch(a.cfgPath, func(next *config.Config) {
			a.engine.ApplyTradingUpdate(next.Trading)
		})
		if err != nil {
			logger.Warnf("config hot reload disabled: %v", err)
		} else {
			group.Go(func() error {
				<-ctx.Done()
				stop()
				return nil
			})
		}
	}

	return group.Wait()
}

// Engine exposes the engine instance for test harnesses.
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

func (a *App) closeStores() {
	if a.trades != nil {
		if err := a.trades.Close(); err != nil {
			logger.Warnf("trade log close failed: %v", err)
		}
	}
}
