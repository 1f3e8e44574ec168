package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restaurantOrdering/internal/awsclient"
	"restaurantOrdering/internal/config"
	"restaurantOrdering/internal/confirmation"
	"restaurantOrdering/internal/db"
	grpcserver "restaurantOrdering/internal/grpc"
	"restaurantOrdering/internal/httpapi"
	"restaurantOrdering/internal/logger"
	"restaurantOrdering/internal/notify"
	"restaurantOrdering/internal/ordernum"
	"restaurantOrdering/internal/pipeline"
	"restaurantOrdering/internal/telemetry"
	"restaurantOrdering/models"
	"restaurantOrdering/repository"
	"restaurantOrdering/repository/postgres"

	"github.com/redis/go-redis/v9"
)

// stores groups the storage collaborators for the selected driver.
type stores struct {
	orders   repository.OrderStore
	products repository.ProductReader
	failures repository.FailureStore
	users    repository.UserReader
	roles    interface {
		EnsureRole(ctx context.Context, username, role string) error
	}
	ping  func(ctx context.Context) error
	close func()
}

func main() {
	// Load configuration
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("Configuration loaded: %v", cfg)

	lg := logger.New(cfg.ServiceName, os.Stdout, logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("setup tracer: %v", err)
	}

	// gRPC health goes up first and reports NOT_SERVING until storage is ready
	health, err := grpcserver.Start(cfg.GRPC.Address, lg)
	if err != nil {
		log.Fatalf("start grpc: %v", err)
	}
	lg.Info("grpc_health_listening", "address", health.Addr())

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer st.close()

	if cfg.Auth.AdminUsername != "" {
		if err := st.roles.EnsureRole(ctx, cfg.Auth.AdminUsername, models.RoleAdmin); err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		lg.Info("admin_bootstrapped", "username", cfg.Auth.AdminUsername)
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis ping: %v", err)
		}
	}

	var numbers ordernum.Generator = ordernum.NewDateRandom(cfg.Location())
	if cfg.Pipeline.NumberScheme == "redis" {
		numbers = ordernum.NewRedisSequence(rdb, cfg.Location())
	}

	transport, closeTransport, err := buildTransport(ctx, cfg, lg)
	if err != nil {
		log.Fatalf("mail transport: %v", err)
	}
	defer closeTransport()

	observers := pipeline.Observers{pipeline.LogObserver{Log: lg}}
	metricsDone := make(chan struct{})
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	if cfg.Telemetry.CloudWatchNamespace != "" {
		awsCfg, err := awsclient.LoadConfig(ctx, cfg.Mail.AWSRegion)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		metrics := telemetry.NewMetricsObserver(awsclient.NewClients(awsCfg).CloudWatch, cfg.Telemetry.CloudWatchNamespace, cfg.ServiceName, lg)
		observers = append(observers, metrics)
		go func() {
			defer close(metricsDone)
			metrics.Run(metricsCtx, time.Minute)
		}()
	} else {
		close(metricsDone)
	}

	p, err := pipeline.New(pipeline.Deps{
		Numbers:  numbers,
		Orders:   st.orders,
		Products: st.products,
		Renderer: confirmation.NewRenderer(cfg.Pipeline.RestaurantName, cfg.Location()),
		Delivery: notify.NewDelivery(transport, cfg.Mail.From, cfg.Mail.Timeout, lg),
		Failures: st.failures,
		Observer: observers,
		Log:      lg,
	}, pipeline.Config{
		MaxNumberAttempts: cfg.Pipeline.MaxNumberAttempts,
		Mode:              pipeline.DeliveryMode(cfg.Pipeline.DeliveryMode),
		SyncGrace:         cfg.Pipeline.SyncGrace,
		PickupLeadTime:    cfg.Pipeline.PickupLeadTime,
		DeliveryLeadTime:  cfg.Pipeline.DeliveryLeadTime,
	})
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	opts := httpapi.Options{
		Pipeline:       p,
		Orders:         st.orders,
		Failures:       st.failures,
		Users:          st.users,
		IdempotencyTTL: cfg.Redis.IdempotencyTTL,
		JWTSecret:      cfg.Auth.JWTSecret,
		Log:            lg,
		Ping:           st.ping,
	}
	if rdb != nil {
		opts.Idempotency = httpapi.NewRedisIdempotency(rdb, cfg.ServiceName)
	}
	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      httpapi.NewRouter(opts),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http_server_failed", "error", err)
			stop()
		}
	}()
	health.SetServing(true)
	lg.Info("http_listening", "address", cfg.HTTP.Address, "transport", transport.Name(), "delivery_mode", cfg.Pipeline.DeliveryMode)

	// Wait for signal
	<-ctx.Done()
	lg.Info("shutdown_started")
	health.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http_shutdown_failed", "error", err)
	}
	if err := p.Wait(shutdownCtx); err != nil {
		lg.Warn("detached_deliveries_abandoned", "error", err)
	}
	stopMetrics()
	<-metricsDone
	if err := health.Shutdown(shutdownCtx); err != nil {
		lg.Warn("grpc_shutdown_failed", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		lg.Warn("tracer_shutdown_failed", "error", err)
	}
	lg.Info("shutdown_complete")
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.Driver == "postgres" {
		pool, err := postgres.NewPool(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		users := postgres.NewUserStore(pool)
		return &stores{
			orders:   postgres.NewOrderStore(pool),
			products: postgres.NewProductStore(pool),
			failures: postgres.NewFailureStore(pool),
			users:    users,
			roles:    users,
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	}

	d, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	users := repository.NewUserRepository(d)
	return &stores{
		orders:   repository.NewOrderRepository(d),
		products: repository.NewProductRepository(d),
		failures: repository.NewFailureRepository(d),
		users:    users,
		roles:    users,
		ping:     d.PingContext,
		close: func() {
			if err := d.Close(); err != nil {
				log.Printf("close db: %v", err)
			}
		},
	}, nil
}

func buildTransport(ctx context.Context, cfg *config.Config, lg *slog.Logger) (notify.Transport, func(), error) {
	noop := func() {}
	switch cfg.Mail.Transport {
	case "smtp":
		t, err := notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			TLS:      cfg.Mail.SMTPTLS,
		})
		return t, noop, err
	case "amqp":
		t, err := notify.DialAMQP(cfg.Mail.AMQPURL, cfg.Mail.AMQPExchange, cfg.Mail.AMQPRoutingKey)
		if err != nil {
			return nil, noop, err
		}
		return t, func() { _ = t.Close() }, nil
	case "sqs":
		awsCfg, err := awsclient.LoadConfig(ctx, cfg.Mail.AWSRegion)
		if err != nil {
			return nil, noop, err
		}
		return notify.NewSQSTransport(awsclient.NewClients(awsCfg).SQS, cfg.Mail.SQSQueueURL), noop, nil
	default:
		return &notify.LogTransport{Log: lg}, noop, nil
	}
}
