package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridianhq/issueboard/internal/api"
	"github.com/meridianhq/issueboard/internal/config"
	"github.com/meridianhq/issueboard/internal/importer"
	"github.com/meridianhq/issueboard/internal/repository/postgres"
	"github.com/meridianhq/issueboard/internal/tracker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	trackerClient := tracker.NewClient(cfg.Tracker)
	importService := importer.New(trackerClient, cfg.Tracker)

	// Redis is optional; without it the async import endpoints are off
	var jobStore *api.JobStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("Warning: redis unreachable at %s, async imports disabled: %v", cfg.Redis.Addr, err)
		} else {
			jobStore = api.NewJobStore(rdb)
			log.Printf("Connected to redis at %s", cfg.Redis.Addr)
		}
	}

	// Postgres is optional; without it import history is off
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Printf("Warning: database unreachable, import history disabled: %v", err)
			db.Close()
			db = nil
		} else {
			if err := postgres.NewImportJobRepo(db).EnsureSchema(context.Background()); err != nil {
				log.Printf("Warning: could not ensure history schema: %v", err)
			}
			log.Println("Connected to database")
		}
	}

	handlers := api.NewHandlers(importService, trackerClient, jobStore, db)
	router := api.SetupRoutes(handlers, cfg.CORS.AllowedOrigins)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if db != nil {
		db.Close()
	}

	log.Println("Server stopped")
}
