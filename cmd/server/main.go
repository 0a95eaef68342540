package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskmind/internal/api"
	"taskmind/internal/config"
	"taskmind/internal/db"
	"taskmind/pkg/agent"
	"taskmind/pkg/history"
	"taskmind/pkg/llm"
	"taskmind/pkg/task"
)

func main() {
	configPath := flag.String("config", "taskmind.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	tasks := task.NewPgStore(pool)
	events := history.NewPgStore(pool)

	if err := tasks.EnsureTable(ctx); err != nil {
		log.Fatalf("ensure tasks table: %v", err)
	}
	if err := events.EnsureTable(ctx); err != nil {
		log.Fatalf("ensure events table: %v", err)
	}

	chat := llm.NewClient(cfg.Model.Endpoint, cfg.Model.Name,
		llm.WithAPIKey(cfg.Model.APIKey),
		llm.WithTemperature(cfg.Model.Temperature),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
	)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.New(tasks, agent.New(tasks, chat), events),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("taskmind listening on %s (model %s)", cfg.Addr, cfg.Model.Name)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
