package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/sumitak/ms-kafka-saga-dp/internal/history"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/repository"
	"github.com/sumitak/ms-kafka-saga-dp/internal/orders/service"
	ordersHTTP "github.com/sumitak/ms-kafka-saga-dp/internal/orders/transport/http"
	ordersKafka "github.com/sumitak/ms-kafka-saga-dp/internal/orders/transport/kafka"
	"github.com/sumitak/ms-kafka-saga-dp/internal/saga"
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

	tp, err := utils.InitTracer(ctx, "orders-service")
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

	orderRepo := repository.NewOrderRepository(pool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(pool, logger)
	historyStore := history.NewRepository(pool, logger)
	orderService := service.NewOrderService(pool, logger, orderRepo, outboxRepo, historyStore, cfg.Kafka.Topics)

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	coordinator := saga.NewCoordinator(saga.NewPublisher(kafkaProducer), historyStore, cfg.Kafka.Topics, logger)
	sagaConsumer := saga.NewConsumer(coordinator, logger)
	go sagaConsumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics, kafkaProducer)

	commandConsumer := ordersKafka.NewConsumer(orderService, pool, logger)
	go commandConsumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics, kafkaProducer)

	app := fiber.New()
	ordersHTTP.RegisterRoutes(app, ordersHTTP.NewOrderHandler(orderService, logger))

	go func() {
		log.Println("HTTP service listening on: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down orders service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}

	pool.Close()
}
