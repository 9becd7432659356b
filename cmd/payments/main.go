package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/gateway"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/repository"
	"github.com/sumitak/ms-kafka-saga-dp/internal/payments/service"
	paymentsKafka "github.com/sumitak/ms-kafka-saga-dp/internal/payments/transport/kafka"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/config"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/db"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/kafka"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/mylogger"
	outboxRepository "github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/repository"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/outbox/worker"
	"github.com/sumitak/ms-kafka-saga-dp/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, "payments-service")
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	logger, err := config.NewLogger(config.LoggerConfig{Level: "Info", Env: cfg.Env})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	paymentRepo := repository.NewPaymentRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)
	cardGateway := gateway.NewHTTPGateway(cfg.Gateway, logger)
	paymentService := service.NewPaymentService(pool, paymentRepo, outboxRepo, cardGateway, cfg.Kafka.Topics, logger)

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	commandConsumer := paymentsKafka.NewConsumer(paymentService, logger)
	commandConsumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics, kafkaProducer)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down payments service")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}

	pool.Close()
}
