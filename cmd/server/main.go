package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"filegate/internal/batch"
	"filegate/internal/broadcast"
	contentstore "filegate/internal/content/store"
	"filegate/internal/courier"
	"filegate/internal/delivery"
	"filegate/internal/ingest"
	"filegate/internal/membership"
	"filegate/internal/platform/config"
	"filegate/internal/platform/httpserver"
	"filegate/internal/platform/logger"
	"filegate/internal/platform/metrics"
	platformmongo "filegate/internal/platform/mongo"
	platformredis "filegate/internal/platform/redis"
	"filegate/internal/stats"
	"filegate/internal/transport/poller"
	"filegate/internal/transport/webhook"
	"filegate/internal/user"
)

// main wires the dependency graph and keeps the lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		logger.New().Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: Mongo when configured, process-local otherwise.
	var contents contentstore.Store = contentstore.NewInMemory()
	var users user.Store = user.NewInMemory()
	mongoClient, err := platformmongo.New(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	if mongoClient != nil {
		defer mongoClient.Close(context.Background())
		if err := mongoClient.Migrate(ctx); err != nil {
			return err
		}
		contents = contentstore.NewMongo(mongoClient.Database())
		users = user.NewMongo(mongoClient.Database())
		log.Info("using mongo storage")
	} else {
		log.Warn("no mongo uri configured, state is process-local")
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	courierClient := courier.New(cfg.CourierURL, cfg.CourierToken, cfg.ArchiveChannel,
		courier.WithLogger(log))

	gateOpts := []membership.Option{
		membership.WithLogger(log),
		membership.WithMetrics(m),
		membership.WithTimeout(cfg.CollabTimeout),
	}
	if redisClient != nil {
		defer redisClient.Close()
		gateOpts = append(gateOpts,
			membership.WithCache(membership.NewRedisCache(redisClient.Client, cfg.StandingCacheTTL, log)))
		log.Info("standing cache enabled", "ttl", cfg.StandingCacheTTL)
	}
	gate := membership.New(courierClient, gateOpts...)

	aggregator := batch.New(contents, courierClient,
		batch.WithLogger(log),
		batch.WithMetrics(m))
	engine := delivery.New(contents, gate, courierClient, cfg.Groups,
		delivery.WithLogger(log),
		delivery.WithMetrics(m),
		delivery.WithReplayBudget(cfg.CollabTimeout))

	funnel := ingest.New(ingest.Deps{
		Config:    cfg,
		Users:     users,
		Items:     contents,
		Archiver:  courierClient,
		Sessions:  aggregator,
		Engine:    engine,
		Broadcast: broadcast.New(users, courierClient, broadcast.WithLogger(log), broadcast.WithMetrics(m)),
		Stats:     stats.New(users, contents),
		Responder: courierClient,
	},
		ingest.WithLogger(log),
		ingest.WithMetrics(m),
		ingest.WithTimeout(cfg.CollabTimeout))
	defer funnel.Shutdown()

	handlerOpts := []webhook.Option{webhook.WithLogger(log)}
	if mongoClient != nil {
		handlerOpts = append(handlerOpts, webhook.WithHealthCheck("mongo", mongoClient.Health))
	}
	if redisClient != nil {
		handlerOpts = append(handlerOpts, webhook.WithHealthCheck("redis", redisClient.Health))
	}
	handler := webhook.New(cfg.WebhookSecret, funnel, handlerOpts...)
	srv := httpserver.New(cfg.Addr, handler.Router())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.WebhookSecret == "" {
		g.Go(func() error {
			log.Info("webhook secret not set, polling for updates")
			if err := poller.New(courierClient, funnel,
				poller.WithLogger(log),
				poller.WithTimeout(cfg.CollabTimeout),
			).Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
