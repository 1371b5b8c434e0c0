package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bacorsx/EcoEnergy-IC/internal/alerts"
	"github.com/Bacorsx/EcoEnergy-IC/internal/api"
	"github.com/Bacorsx/EcoEnergy-IC/internal/bus"
	"github.com/Bacorsx/EcoEnergy-IC/internal/cache"
	"github.com/Bacorsx/EcoEnergy-IC/internal/config"
	"github.com/Bacorsx/EcoEnergy-IC/internal/crypto"
	"github.com/Bacorsx/EcoEnergy-IC/internal/dashboard"
	"github.com/Bacorsx/EcoEnergy-IC/internal/historian"
	"github.com/Bacorsx/EcoEnergy-IC/internal/ingest"
	"github.com/Bacorsx/EcoEnergy-IC/internal/logger"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	log := logger.WithComponent("server")

	var enc crypto.Encryptor
	if cfg.EncryptionKey != "" {
		key, err := crypto.ParseKey(cfg.EncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid ENCRYPTION_KEY")
		}
		box, err := crypto.NewSecretBox(key)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init encryptor")
		}
		enc = box
	} else {
		log.Warn().Msg("ENCRYPTION_KEY not set, historian registration disabled")
	}

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer store.Close()
	repo := storage.NewRepository(store)

	sink, err := newEventSink(cfg.Bus)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Bus.Driver).Msg("failed to connect to bus")
	}
	publisher := bus.NewEventPublisher(sink, logger.WithComponent("bus"))
	defer publisher.Close()

	dashCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Cache.Driver).Msg("failed to init cache")
	}
	if dashCache != nil {
		defer dashCache.Close()
	}
	dash := dashboard.NewService(repo, dashCache, cfg.Cache.TTL, logger.WithComponent("dashboard"))

	evaluator := alerts.NewEvaluator(alerts.Options{SkipDeletedRules: cfg.Alerts.SkipDeletedRules}, logger.WithComponent("alerts"))
	hook := ingest.NewHook(ingest.PgTransactor{Repo: repo}, evaluator,
		ingest.WithPublisher(publisher),
		ingest.WithInvalidator(dash),
		ingest.WithLogger(logger.WithComponent("ingest")),
	)

	if cfg.Bus.Driver == "nats" && cfg.Bus.IngestSubject != "" {
		sub, err := bus.NewSubscriber(cfg.Bus.NATSURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect measurement subscriber")
		}
		defer sub.Close()
		record := func(ctx context.Context, in storage.NewMeasurement) error {
			_, err := hook.CreateMeasurement(ingest.WithSource(ctx, "nats"), in)
			return err
		}
		if _, err := sub.SubscribeMeasurements(cfg.Bus.IngestSubject, cfg.Bus.IngestTimeout, record, logger.WithComponent("ingest")); err != nil {
			log.Fatal().Err(err).Str("subject", cfg.Bus.IngestSubject).Msg("failed to subscribe")
		}
		log.Info().Str("subject", cfg.Bus.IngestSubject).Msg("consuming measurements")
	}

	handler := &api.Handler{
		Repo:      repo,
		Ingest:    hook,
		Dashboard: dash,
		Encryptor: enc,
		Connect:   historian.New,
		Ping:      healthCheck(store, dashCache),
		Timeout:   5 * time.Second,
		Logger:    logger.WithComponent("api"),
	}
	r := api.NewRouter(handler, cfg.Server.RequestTimeout)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       30 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctx)
	}()

	log.Info().Str("port", cfg.Server.Port).Str("bus", sink.Name()).Msg("alert service listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		return
	}
	if err := <-shutdownErr; err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func newEventSink(cfg config.Bus) (bus.Sink, error) {
	switch cfg.Driver {
	case "nats":
		return bus.NewPublisher(cfg.NATSURL, cfg.EventSubject)
	case "kafka":
		return bus.NewKafkaPublisher(bus.KafkaConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		})
	default:
		return bus.Noop{}, nil
	}
}

// healthCheck pings the database and, when the cache is remote, the cache.
func healthCheck(store *storage.Store, c cache.Cache) func(context.Context) error {
	pinger, remote := c.(interface{ Ping(context.Context) error })
	return func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if remote {
			if err := pinger.Ping(ctx); err != nil {
				return fmt.Errorf("cache %s: %w", c.Name(), err)
			}
		}
		return nil
	}
}

func newCache(ctx context.Context, cfg config.Cache) (cache.Cache, error) {
	switch cfg.Driver {
	case "memory":
		return cache.NewMemoryCache(cfg.TTL), nil
	case "redis":
		return cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, nil
	}
}
