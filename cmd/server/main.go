// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/crm-sms-fallback/internal/config"
	"github.com/unclebandit/crm-sms-fallback/internal/controller"
	"github.com/unclebandit/crm-sms-fallback/internal/db"
	"github.com/unclebandit/crm-sms-fallback/internal/handler"
	"github.com/unclebandit/crm-sms-fallback/internal/logging"
	"github.com/unclebandit/crm-sms-fallback/internal/queue"
	"github.com/unclebandit/crm-sms-fallback/internal/repository"
	"github.com/unclebandit/crm-sms-fallback/internal/sender"
	"github.com/unclebandit/crm-sms-fallback/internal/service"
	"github.com/unclebandit/crm-sms-fallback/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("server", config.LogConfig{}).Fatal(err)
	}
	logger := logging.New("server", cfg.Log)

	shutdownTracing, err := telemetry.Init(cfg.Observability)
	if err != nil {
		logger.Fatalf("init tracing: %v", err)
	}
	defer shutdownTracing()

	conn, err := db.Open(cfg.DB, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer conn.Close()

	smsRepo := &repository.SMSMessageRepository{DB: conn}
	dispatcher := service.NewFallbackDispatcher(
		smsRepo,
		&repository.SettingsRepository{DB: conn},
		&service.RecipientResolver{Store: &repository.RecipientRepository{DB: conn}},
		sender.NewWhatsAppClient(cfg.WhatsApp),
		service.DispatcherConfig{
			BatchSize:            cfg.Fallback.BatchSize,
			Delay:                cfg.Fallback.Delay,
			VerificationTemplate: cfg.WhatsApp.VerificationTemplate,
			AffiliateTemplate:    cfg.WhatsApp.AffiliateTemplate,
		},
		logging.New("dispatcher", cfg.Log),
	)

	// Without a broker the server runs enqueued requests itself.
	var q queue.Queue
	if cfg.AMQP.URL != "" {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Fatal(err)
		}
		defer func() {
			if err := amqpQueue.Close(); err != nil {
				logger.Printf("close queue: %v", err)
			}
		}()
		q = amqpQueue
	} else {
		memQueue := queue.NewInMemoryQueue(logging.New("queue", cfg.Log))
		if err := queue.StartFallbackRunSubscriber(memQueue, cfg.AMQP.Queue, dispatcher, logger); err != nil {
			logger.Fatal(err)
		}
		q = memQueue
	}

	fallbackController := &controller.FallbackController{
		Runner: dispatcher,
		Gate:   dispatcher.Gate,
		Queue:  q,
		Topic:  cfg.AMQP.Queue,
		Logger: logger,
	}
	messageHandler := handler.NewMessageHandler(smsRepo, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/fallback-run", fallbackController.Routes)
	r.Get("/messages/sms/{id}", messageHandler.GetSMSHandler)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("server running on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// Unblock a run waiting on a paused gate.
	dispatcher.Gate.Resume()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	logger.Println("server stopped")
}
