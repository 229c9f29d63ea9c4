package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/courierhq/sendcore/internal/api"
	"github.com/courierhq/sendcore/internal/config"
	"github.com/courierhq/sendcore/internal/cooldown"
	"github.com/courierhq/sendcore/internal/dispatch"
	"github.com/courierhq/sendcore/internal/notify"
	"github.com/courierhq/sendcore/internal/outbox"
	"github.com/courierhq/sendcore/internal/repository/postgres"
	"github.com/courierhq/sendcore/internal/scheduler"
	"github.com/courierhq/sendcore/internal/service/sending"
	"github.com/courierhq/sendcore/internal/worker"
)

func main() {
	log.Println("Starting sendcore scheduler...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	repo := postgres.NewSendingRepo(db)

	// Redis is optional: without it the cooldown ledger and progress sink
	// fall back to in-process implementations.
	var (
		ledger cooldown.Ledger
		sink   sending.EventSink
	)
	if cfg.Redis.URL != "" {
		redisLedger, err := cooldown.NewRedisLedgerFromURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisLedger.Close()
		ledger = redisLedger

		opts, _ := redis.ParseURL(cfg.Redis.URL)
		pubClient := redis.NewClient(opts)
		defer pubClient.Close()
		sink = notify.NewRedisSink(pubClient, cfg.Redis.ProgressPrefix)
		log.Println("Redis cooldown ledger and progress sink enabled")
	} else {
		ledger = cooldown.NewMemoryLedger()
		sink = notify.LogSink{}
		log.Println("Running with in-memory cooldown ledger and log progress sink")
	}

	registry := outbox.NewRegistry()
	orch := dispatch.NewOrchestrator(registry, ledger, sink)
	sc := &dispatch.SendingContext{Repo: repo, SecretKeys: cfg.Sending.SecretKeys}

	// Recover campaigns interrupted by the previous run before any worker
	// starts claiming.
	recoverCtx, cancelRecover := context.WithTimeout(context.Background(), 60*time.Second)
	if _, err := worker.RecoverInProgress(recoverCtx, sc, orch); err != nil {
		log.Printf("[Recovery] failed: %v", err)
	}
	cancelRecover()

	sched := scheduler.New()
	if err := sched.RegisterDailyReset(registry, repo); err != nil {
		log.Fatalf("Failed to register daily quota reset: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	pool := worker.NewSendWorkerPool(orch, sc, worker.DryRunExecutor{}, worker.PoolConfig{
		NumWorkers:   cfg.Sending.NumWorkers,
		PollInterval: time.Duration(cfg.Sending.PollIntervalMillis) * time.Millisecond,
		SendTimeout:  time.Duration(cfg.Sending.SendTimeoutSeconds) * time.Second,
	})
	pool.Start()
	defer pool.Stop()

	srv := api.NewServer(orch, sc, cfg.Server.AllowedOrigins)
	go func() {
		log.Printf("Admin API listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(cfg.Server.Addr()); err != nil {
			log.Printf("Admin API stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Admin API shutdown: %v", err)
	}
}
