package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tickarb/internal/application/hub"
	"tickarb/internal/application/port"
	appservice "tickarb/internal/application/service"
	"tickarb/internal/domain/model"
	"tickarb/internal/domain/service"
	"tickarb/internal/domain/store"
	"tickarb/internal/infrastructure/config"
	"tickarb/internal/infrastructure/exchange"
	"tickarb/internal/infrastructure/logger"
	"tickarb/internal/infrastructure/storage"
	"tickarb/internal/infrastructure/storage/composite"
	"tickarb/internal/infrastructure/storage/postgres"
	"tickarb/internal/infrastructure/storage/redis"
	"tickarb/internal/infrastructure/storage/sqlite"
	"tickarb/internal/infrastructure/supervisor"
	"tickarb/internal/interfaces/httpapi"
)

const hubQueueSize = 256

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New()
	det := service.NewDetector(st, cfg.Arbitrage.MinSpreadPct, cfg.Cooldown())
	h := hub.New(hubQueueSize, appservice.SnapshotEvents(st))

	repo, err := buildRepo(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("storage init failed")
	}
	defer repo.Close()

	specs, err := buildSpecs(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connector setup failed")
	}

	sup := supervisor.New(&storeSink{store: st}, supervisor.Options{})
	sup.Start(ctx, specs)
	defer sup.Stop()

	sweepStop := make(chan struct{})
	go st.RunSweeper(sweepStop, cfg.SweepEvery(), cfg.StalenessTTL())
	defer close(sweepStop)

	engine := appservice.NewEngine(appservice.EngineDeps{
		Store:        st,
		Detector:     det,
		Hub:          h,
		Repo:         repo,
		TopN:         cfg.Arbitrage.TopN,
		SummaryEvery: cfg.SummaryEvery(),
	})
	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("engine exited")
		}
	}()

	reloader := &configReloader{path: *configPath, sup: sup}
	api := httpapi.NewServer(cfg.Server.Addr, st, det, h, sup, reloader)
	go func() {
		if err := api.Start(); err != nil {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	log.Info().
		Str("config", *configPath).
		Int("symbols", len(cfg.Symbols)).
		Int("exchanges", len(specs)).
		Float64("min_spread_pct", cfg.Arbitrage.MinSpreadPct).
		Str("storage", cfg.Storage.Driver).
		Msg("tickarb started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("tickarb stopped")
}

func buildRepo(cfg *config.Config) (port.Repository, error) {
	var repos []port.Repository
	for _, driver := range cfg.StorageDrivers() {
		switch driver {
		case "sqlite":
			r, err := sqlite.New(cfg.Storage.Path)
			if err != nil {
				return nil, err
			}
			repos = append(repos, r)
		case "postgres":
			r, err := postgres.New(cfg.Storage.DSN)
			if err != nil {
				return nil, err
			}
			repos = append(repos, r)
		case "redis":
			rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Storage.Addr})
			repos = append(repos, redis.New(rdb, cfg.Storage.Prefix, cfg.StalenessTTL()))
		}
	}
	switch len(repos) {
	case 0:
		return storage.NewNoop(), nil
	case 1:
		return repos[0], nil
	default:
		return composite.New(repos...), nil
	}
}

func buildSpecs(cfg *config.Config) ([]supervisor.Spec, error) {
	symbols := exchange.SymbolMap(cfg.Symbols)
	var specs []supervisor.Spec
	for _, name := range cfg.EnabledExchanges() {
		ex := cfg.Exchanges[name]
		natives, err := exchange.Natives(name, symbols)
		if err != nil {
			return nil, err
		}
		if len(natives) == 0 {
			log.Warn().Str("exchange", name).Msg("enabled but no symbols mapped, skipping")
			continue
		}
		conn, err := exchange.New(name, symbols, exchange.Options{
			WSURL:    ex.WsURL,
			RESTURL:  ex.RestURL,
			TokenURL: ex.TokenURL,
			Poll:     time.Duration(ex.PollSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		specs = append(specs, supervisor.Spec{Name: name, Natives: natives, Connector: conn})
	}
	if len(specs) == 0 {
		return nil, errors.New("no exchange connectors enabled")
	}
	return specs, nil
}

// storeSink feeds connector ticks into the price store.
type storeSink struct {
	store *store.Store
}

func (s *storeSink) Connected(exchange string) {
	log.Debug().Str("exchange", exchange).Msg("feed online")
}

func (s *storeSink) Tick(t model.PriceTick) {
	s.store.Update(t)
}

// configReloader re-reads the config file and diffs the connector set. A
// config that fails validation is rejected and the running set is kept.
type configReloader struct {
	path string
	sup  *supervisor.Supervisor
	mu   sync.Mutex
}

func (r *configReloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := config.Load(r.path)
	if err != nil {
		return err
	}
	specs, err := buildSpecs(cfg)
	if err != nil {
		return err
	}
	r.sup.Reload(specs)
	log.Info().Int("exchanges", len(specs)).Int("symbols", len(cfg.Symbols)).Msg("config reloaded")
	return nil
}
