package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/thewatergategroups/llama/internal/api"
	"github.com/thewatergategroups/llama/internal/backtest"
	"github.com/thewatergategroups/llama/internal/bars"
	"github.com/thewatergategroups/llama/internal/config"
	"github.com/thewatergategroups/llama/internal/live"
	"github.com/thewatergategroups/llama/internal/logger"
	"github.com/thewatergategroups/llama/internal/strategy"
	"github.com/thewatergategroups/llama/internal/trader"
	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
	"github.com/thewatergategroups/llama/pkg/marketdata"
	"github.com/thewatergategroups/llama/pkg/marketdata/provider"
)

const alpacaPaperBaseURL = "https://paper-api.alpaca.markets"

// noProviderFetcher stands in when no market data credentials are
// configured. Gap fills fail softly and queries serve whatever is already
// stored.
type noProviderFetcher struct{}

func (noProviderFetcher) FetchBars(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	return nil, errors.New(errors.ErrCodeInvalidProvider, "no market data provider configured")
}

// app bundles everything the commands construct from a configuration.
type app struct {
	cfg        config.Config
	db         *sql.DB
	logger     *logger.Logger
	barStore   *bars.Store
	history    *bars.History
	strategies *strategy.Store
	runs       *backtest.RunStore
	backtester *backtest.Backtester
	provider   provider.Provider
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := sql.Open("duckdb", cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var marketProvider provider.Provider
	if cfg.Provider != nil {
		marketProvider, err = provider.NewProvider(*cfg.Provider)
		if err != nil {
			db.Close()

			return nil, err
		}
	}

	var fetcher bars.Fetcher = noProviderFetcher{}
	if marketProvider != nil {
		fetcher = marketProvider
	}

	barStore := bars.NewStore(db, log)
	if err := barStore.Initialize(ctx); err != nil {
		db.Close()

		return nil, err
	}
	history := bars.NewHistory(barStore, fetcher, log)

	strategies := strategy.NewStore(db, log)
	if err := strategies.Initialize(ctx); err != nil {
		db.Close()

		return nil, err
	}
	if err := strategies.Seed(ctx); err != nil {
		db.Close()

		return nil, err
	}

	runs := backtest.NewRunStore(db, log)
	if err := runs.Initialize(ctx); err != nil {
		db.Close()

		return nil, err
	}

	backtester := backtest.NewBacktester(runs, history, strategies, log)
	if cfg.Backtest.Workers > 0 {
		backtester = backtester.WithWorkers(cfg.Backtest.Workers)
	}
	if cfg.Backtest.StartingBuyingPower > 0 {
		backtester = backtester.WithStartingBuyingPower(cfg.Backtest.StartingBuyingPower)
	}

	return &app{
		cfg:        cfg,
		db:         db,
		logger:     log,
		barStore:   barStore,
		history:    history,
		strategies: strategies,
		runs:       runs,
		backtester: backtester,
		provider:   marketProvider,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
	a.db.Close()
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	path := cmd.String("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}

	return config.Load(path)
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if stale, err := a.runs.FailStaleRuns(ctx); err != nil {
		return err
	} else if stale > 0 {
		a.logger.Warn("failed stale backtest runs from previous process", zap.Int64("count", stale))
	}

	server := api.NewServer(cfg.Server.Addr, a.backtester, a.runs, a.strategies, a.history, a.provider, a.logger)

	if cfg.Live.Enabled {
		if err := startLive(ctx, a); err != nil {
			return err
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func startLive(ctx context.Context, a *app) error {
	if a.cfg.Provider == nil || a.cfg.Provider.Type != provider.ProviderAlpaca {
		return errors.New(errors.ErrCodeInvalidConfiguration, "live trading requires an alpaca provider configuration")
	}

	account, err := trader.NewAlpacaTrader(a.cfg.Provider.AlpacaAPIKey, a.cfg.Provider.AlpacaAPISecret, alpacaPaperBaseURL, a.logger)
	if err != nil {
		return err
	}

	stream := live.NewStream(a.cfg.Live.StreamURL, a.cfg.Provider.AlpacaAPIKey, a.cfg.Provider.AlpacaAPISecret, a.logger)
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	if err := stream.Subscribe(a.cfg.Live.Symbols); err != nil {
		return err
	}

	runner := live.NewRunner(stream, a.barStore, a.strategies, account, a.provider, a.logger)

	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("bar stream stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("live runner stopped", zap.Error(err))
		}
	}()

	return nil
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	id, err := a.backtester.Run(ctx, backtest.Definition{
		Symbols:    cmd.StringSlice("symbols"),
		Strategies: cmd.StringSlice("strategies"),
		Days:       int(cmd.Int("days")),
	})
	if err != nil {
		return err
	}

	run, err := a.runs.GetRun(ctx, id)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(run.Unwrap(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Println(string(out))

	return nil
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Provider == nil {
		return errors.New(errors.ErrCodeInvalidConfiguration, "download requires a market data provider configuration")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := marketdata.NewClient(*cfg.Provider, a.barStore)
	if err != nil {
		return err
	}

	return client.Download(ctx, marketdata.DownloadParams{
		Symbol:    cmd.String("symbol"),
		Timeframe: types.Timeframe(cmd.String("timeframe")),
		StartDate: cmd.Timestamp("start"),
		EndDate:   cmd.Timestamp("end"),
	})
}

func schemaAction(ctx context.Context, cmd *cli.Command) error {
	out, err := config.DefaultConfig().GenerateSchemaJSON()
	if err != nil {
		return err
	}
	fmt.Println(out)

	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML configuration file",
	}

	cmd := &cli.Command{
		Name:  "llama",
		Usage: "Condition driven trading service: bar cache, backtests, and live trading",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server, optionally with live trading",
				Flags:  []cli.Flag{configFlag},
				Action: serveAction,
			},
			{
				Name:  "backtest",
				Usage: "Run a backtest synchronously and print the result",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringSliceFlag{
						Name:     "symbols",
						Aliases:  []string{"s"},
						Usage:    "Symbols to test against",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:    "strategies",
						Usage:   "Strategy aliases to test; all stored strategies when omitted",
						Aliases: []string{"S"},
					},
					&cli.IntFlag{
						Name:    "days",
						Aliases: []string{"d"},
						Usage:   "Days of minute bars to replay",
						Value:   30,
					},
				},
				Action: backtestAction,
			},
			{
				Name:  "download",
				Usage: "Download historical bars into the local store",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "symbol",
						Aliases:  []string{"s"},
						Usage:    "Symbol to download",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "timeframe",
						Aliases: []string{"t"},
						Usage:   "Bar timeframe (1Min, 1Hour, 1Day, 1Week, 1Month)",
						Value:   string(types.TimeframeMinute),
					},
					&cli.TimestampFlag{
						Name:     "start",
						Usage:    "Start date in `YYYY-MM-DD` format",
						Required: true,
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
					&cli.TimestampFlag{
						Name:  "end",
						Usage: "End date in `YYYY-MM-DD` format. Defaults to today.",
						Value: time.Now(),
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
					},
				},
				Action: downloadAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the configuration JSON schema",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
