package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/crm-sms-fallback/internal/config"
	"github.com/unclebandit/crm-sms-fallback/internal/db"
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
		logging.New("worker", config.LogConfig{}).Fatal(err)
	}
	logger := logging.New("worker", cfg.Log)
	if cfg.AMQP.URL == "" {
		logger.Fatal("AMQP_URL is required for the worker")
	}

	shutdownTracing, err := telemetry.Init(cfg.Observability)
	if err != nil {
		logger.Fatalf("init tracing: %v", err)
	}
	defer shutdownTracing()

	// Connect to DB
	conn, err := db.Open(cfg.DB, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer conn.Close()

	dispatcher := service.NewFallbackDispatcher(
		&repository.SMSMessageRepository{DB: conn},
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

	// Connect to RabbitMQ
	q, err := queue.NewAMQPQueue(cfg.AMQP.URL, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			logger.Printf("close queue: %v", err)
		}
	}()

	if err := queue.StartFallbackRunSubscriber(q, cfg.AMQP.Queue, dispatcher, logger); err != nil {
		logger.Fatal(err)
	}

	logger.Printf("worker running, waiting for requests on %s...", cfg.AMQP.Queue)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("worker stopped")
}
