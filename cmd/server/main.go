package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/auth"
	"github.com/ar363/restaurant-live-ordering/internal/cache"
	"github.com/ar363/restaurant-live-ordering/internal/catalog"
	"github.com/ar363/restaurant-live-ordering/internal/engine"
	"github.com/ar363/restaurant-live-ordering/internal/httpapi"
	"github.com/ar363/restaurant-live-ordering/internal/orders"
	"github.com/ar363/restaurant-live-ordering/internal/repository"
	"github.com/ar363/restaurant-live-ordering/internal/session"
	"github.com/ar363/restaurant-live-ordering/internal/ws"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	HTTPPort          string
	JWTSecret         string
	MongoURI          string
	MongoDBName       string
	RedisAddr         string
	RedisPassword     string
	PostgresHost      string
	PostgresPort      int
	PostgresUser      string
	PostgresPassword  string
	PostgresDB        string
	MigrationsDirPath string
	OrderServiceURL   string
	MenuServiceURL    string
	KafkaBrokers      string
	CartCacheTTL      time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		PostgresHost:      getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:      getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:      getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:  getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:        getEnv("POSTGRES_DB", "checkoutdb"),
		MigrationsDirPath: getEnv("MIGRATIONS_DIR", "migrations"),
		OrderServiceURL:   getEnv("ORDER_SERVICE_URL", "http://localhost:8081"),
		MenuServiceURL:    getEnv("MENU_SERVICE_URL", "http://localhost:8082"),
		KafkaBrokers:      getEnv("KAFKA_BROKERS", ""),
		CartCacheTTL:      time.Duration(getEnvInt("CART_CACHE_TTL_MINUTES", 15)) * time.Minute,
		RequestTimeout:    15 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()

	ctx := context.Background()

	// Cart storage
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	cartRepo := repository.NewMongoCartRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		log.Fatalf("Failed to create cart indexes: %v", err)
	}
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	// Lease storage
	cred := &repository.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDB,
		MigrationsDirPath: cfg.MigrationsDirPath,
	}
	leaseRepo, err := repository.NewPostgresLeaseRepository(cred)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer leaseRepo.Close()
	if err := leaseRepo.RunMigrations(cred); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	if n, err := leaseRepo.DeleteExpired(ctx, time.Now()); err != nil {
		log.Printf("Failed to purge expired leases: %v", err)
	} else if n > 0 {
		log.Printf("Purged %d expired leases", n)
	}
	log.Printf("Connected to postgres at %s:%d", cfg.PostgresHost, cfg.PostgresPort)

	// Cart read cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	log.Printf("Redis ping succeeded")

	// Collaborators
	creator := orders.NewHTTPCreator(cfg.OrderServiceURL, cfg.RequestTimeout)
	resolver := catalog.NewHTTPResolver(cfg.MenuServiceURL, cfg.RequestTimeout)

	var opts []engine.Option
	var publisher *orders.KafkaPublisher
	if cfg.KafkaBrokers != "" {
		publisher = orders.NewKafkaPublisher(splitBrokers(cfg.KafkaBrokers)...)
		defer publisher.Close()
		opts = append(opts, engine.WithEventPublisher(publisher))
		log.Printf("Kafka order feed enabled (%s)", cfg.KafkaBrokers)
	}

	registry := session.NewRegistry()
	coordinator := engine.New(cartRepo, leaseRepo, cache.NewRedisCache(redisClient, cfg.CartCacheTTL), registry, creator, resolver, opts...)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go coordinator.RunSweeper(sweepCtx, engine.DefaultLeaseTTL/2)

	verifier := auth.NewTokenVerifier(cfg.JWTSecret)
	wsHandler := ws.NewHandler(verifier, registry)
	handler := httpapi.NewHandler(coordinator)
	router := httpapi.NewRouter(handler, wsHandler, verifier, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: websocket connections are long-lived push channels.
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	stopSweep()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	mongoDB.Client().Disconnect(shutdownCtx)

	log.Println("server exited")
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
