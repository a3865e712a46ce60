package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sistema-pontificia/gateway/internal/config"
	"github.com/sistema-pontificia/gateway/internal/middleware"
	"github.com/sistema-pontificia/gateway/internal/ratelimit"
	"github.com/sistema-pontificia/gateway/internal/repository"
	"github.com/sistema-pontificia/gateway/internal/server"
	"github.com/sistema-pontificia/gateway/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	configPath := flag.String("config", "config.json", "path to gateway config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, cleanup := buildCounterStore(cfg)
	defer cleanup()

	var logs *repository.RequestLogRepository
	if cfg.Postgres.DSN != "" {
		pg, err := storage.NewPostgres(cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pg.Close()

		if err := pg.AutoMigrate(); err != nil {
			log.Fatalf("Failed to migrate request log schema: %v", err)
		}

		logs = repository.NewRequestLogRepository(pg)
		middleware.InitRequestLogger(logs, 1000)
		log.Println("Request logging to postgres enabled")
	}

	srv, err := server.New(cfg, store, logs)
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

// buildCounterStore picks the shared redis store when redis is configured,
// falling back to per-instance in-memory counters otherwise.
func buildCounterStore(cfg *config.Config) (ratelimit.CounterStore, func()) {
	addr := cfg.Redis.Addr()
	if addr == "" {
		log.Println("No redis configured, using in-memory rate limit counters")
		store := ratelimit.NewMemoryStore()
		ctx, cancel := context.WithCancel(context.Background())
		store.StartJanitor(ctx, 2*time.Minute)
		return store, cancel
	}

	redis, err := storage.NewRedis(addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	log.Println("Connected to redis successfully")
	return ratelimit.NewRedisStore(redis), func() { redis.Close() }
}
