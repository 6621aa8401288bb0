package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fjod/go_pos/pkg/logger"
	"github.com/fjod/go_pos/pos-service/internal/catalog"
	"github.com/fjod/go_pos/pos-service/internal/checkout"
	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/fjod/go_pos/pos-service/internal/history"
	h "github.com/fjod/go_pos/pos-service/internal/http"
	"github.com/fjod/go_pos/pos-service/internal/orders"
	"github.com/fjod/go_pos/pos-service/internal/session"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "pos-service"

type Config struct {
	HTTPPort           string
	GRPCPort           string
	LogMode            string
	LogFile            string
	CatalogDBPath      string
	CatalogSeedFile    string
	CatalogSeedTenant  string
	RedisAddr          string
	RedisPassword      string
	DBHost             string
	DBPort             int
	DBUser             string
	DBPassword         string
	DBName             string
	KafkaBrokers       []string
	MongoURI           string
	MongoDBName        string
	DeliveryFee        decimal.Decimal
	RequestTimeout     time.Duration
	SubmitTimeout      time.Duration
	ShutdownTimeout    time.Duration
	SessionIdleTimeout time.Duration
	MaxRequestBodySize int64
}

func loadConfig() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	fee, err := decimal.NewFromString(getEnv("DELIVERY_FEE", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid DELIVERY_FEE: %w", err)
	}
	idle, err := time.ParseDuration(getEnv("SESSION_IDLE_TIMEOUT", "8h"))
	if err != nil || idle <= 0 {
		return nil, fmt.Errorf("invalid SESSION_IDLE_TIMEOUT %q", getEnv("SESSION_IDLE_TIMEOUT", "8h"))
	}

	return &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "50060"),
		LogMode:            getEnv("LOG_MODE", "development"),
		LogFile:            getEnv("LOG_FILE", ""),
		CatalogDBPath:      getEnv("CATALOG_DB_PATH", "./data/catalog.db"),
		CatalogSeedFile:    getEnv("CATALOG_SEED_FILE", ""),
		CatalogSeedTenant:  getEnv("CATALOG_SEED_TENANT", ""),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             dbPort,
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "pos"),
		KafkaBrokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:        getEnv("MONGO_DB_NAME", "pos"),
		DeliveryFee:        fee,
		RequestTimeout:     30 * time.Second,
		SubmitTimeout:      10 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		SessionIdleTimeout: idle,
		MaxRequestBodySize: 1 << 20, // 1MB
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// a missing .env is fine; the environment wins anyway
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Mode: cfg.LogMode, Filename: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	// trace ids from upstream requests end up in our log lines
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog (sqlite + redis cache)
	catalogRepo, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatal("failed to open catalog database", zap.Error(err))
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(); err != nil {
		log.Fatal("failed to migrate catalog database", zap.Error(err))
	}
	if cfg.CatalogSeedFile != "" {
		if err := seedCatalog(ctx, catalogRepo, cfg.CatalogSeedFile, cfg.CatalogSeedTenant); err != nil {
			log.Fatal("failed to seed catalog", zap.Error(err))
		}
		log.Info("catalog seeded", zap.String("tenant", cfg.CatalogSeedTenant))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()

	var cache catalog.Cache
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
	} else {
		cache = catalog.NewRedisCache(redisClient)
	}
	loader := catalog.NewLoader(catalogRepo, cache, log)

	// Orders (postgres + outbox -> kafka)
	ordersRepo, err := orders.NewRepository(&orders.Credentials{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
	})
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer ordersRepo.Close()
	if err := ordersRepo.RunMigrations(); err != nil {
		log.Fatal("failed to migrate orders database", zap.Error(err))
	}

	poller := orders.NewOutboxPoller(ordersRepo, orders.NewKafkaWriter(cfg.KafkaBrokers...), log)
	defer poller.Close()
	go poller.Run(ctx)

	// Sales history (kafka -> mongo)
	salesStore, err := history.OpenMongoStore(ctx, history.MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDBName})
	if err != nil {
		log.Fatal("failed to open sales history", zap.Error(err))
	}
	defer func() { _ = salesStore.Close(context.Background()) }()

	consumer := history.NewConsumer(salesStore, history.NewKafkaReader(cfg.KafkaBrokers...), log)
	defer consumer.Close()
	go consumer.Run(ctx)

	// POS core
	coordinator := checkout.NewCoordinator(ordersRepo, log,
		checkout.WithFee(checkout.FlatDeliveryFee(cfg.DeliveryFee)),
		checkout.WithTimeout(cfg.SubmitTimeout))
	manager := session.NewManager(loader, coordinator, log)
	go manager.RunExpiry(ctx, time.Minute, cfg.SessionIdleTimeout)

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Checks: map[string]h.Pinger{
			"postgres": ordersRepo.Ping,
			"mongodb":  salesStore.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
	},
		h.NewSessionHandler(manager, cfg.RequestTimeout, log),
		h.NewCatalogHandler(loader, cfg.RequestTimeout),
		h.NewSalesHandler(salesStore, cfg.RequestTimeout, log),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("pos service http listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	// gRPC health for the orchestrator
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("failed to listen", zap.Error(err))
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		log.Info("pos service grpc listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal("grpc server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	log.Info("shutting down pos service...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	log.Info("pos service stopped", zap.Int("open_sessions", manager.Len()))
}

// seedCatalog loads a JSON listing into the catalog database.
func seedCatalog(ctx context.Context, repo *catalog.Repository, path, tenant string) error {
	if tenant == "" {
		return errors.New("CATALOG_SEED_TENANT is required with CATALOG_SEED_FILE")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var listing domain.Listing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	return repo.Save(ctx, tenant, &listing)
}
