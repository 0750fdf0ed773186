package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chainflow/account"
	"chainflow/api"
	"chainflow/auth"
	"chainflow/config"
	"chainflow/db"
	"chainflow/dispatch"
	"chainflow/events"
	"chainflow/registrar"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	// The dispatcher is owned here: started before the server accepts
	// traffic, drained after it stops.
	workers := dispatch.NewPool(cfg.WorkerCount, cfg.QueueCapacity)
	workers.Start()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Printf("rabbitmq unavailable, events will be logged only: %v", err)
		} else {
			publisher = amqpPub
		}
	}
	defer publisher.Close()

	repo := account.NewRepository(pool)
	reconciler := account.NewReconciler(repo)
	registrarClient := registrar.NewClient(cfg.RegistrarBaseURL, cfg.RegistrarAPIKey)
	accountService := account.NewService(pool, repo, workers, registrarClient, reconciler, publisher)
	tokenService := auth.NewService(cfg.AdminKeyHash, cfg.JWTSecret)

	handler := api.NewHandler(accountService, workers, tokenService)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: api.NewRouter(handler),
	}

	go func() {
		log.Printf("listening on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	// Let in-flight registrations finish; anything still running after the
	// grace period stays pending in the store.
	if err := workers.Drain(cfg.ShutdownGrace); err != nil {
		log.Printf("dispatcher drain: %v", err)
	}

	log.Println("stopped")
}
