package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graphfold/graphfold/internal/db"
	"github.com/graphfold/graphfold/internal/queue"
	"github.com/graphfold/graphfold/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/graphfold/graphfold/pkg/ai"
	oai "github.com/graphfold/graphfold/pkg/ai/ollama"
	gai "github.com/graphfold/graphfold/pkg/ai/openai"
	"github.com/graphfold/graphfold/pkg/cluster"
	"github.com/graphfold/graphfold/pkg/graph"
	"github.com/graphfold/graphfold/pkg/logger"
	"github.com/graphfold/graphfold/pkg/logger/console"
	graphstorage "github.com/graphfold/graphfold/pkg/store/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// AI client
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.Client

	switch adapter {
	case "ollama":
		client, err := oai.NewClient(oai.ClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			EmbedDim:       util.GetEnvInt("AI_EMBED_DIM", 1024),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			APIKey:  util.GetEnv("AI_CHAT_KEY"),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewClient(gai.ClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),
			EmbedDim:       util.GetEnvInt("AI_EMBED_DIM", 1536),

			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
		})
	}

	// Database
	databaseURL := util.GetEnv("DATABASE_URL")
	if err := db.Migrate(databaseURL); err != nil {
		logger.Fatal("Failed to run migrations", "err", err)
	}

	pgConn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	pgConn.Config().AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	storeClient := graphstorage.NewGraphDBStorage(pgConn)

	// Clustering service
	clusterClient := cluster.NewClient(cluster.ClientParams{
		BaseURL: util.GetEnvString("CLUSTER_URL", "http://localhost:8090"),
	})
	if err := clusterClient.Health(ctx); err != nil {
		logger.Warn("Clustering service is not reachable yet", "err", err)
	}

	graphClient := graph.NewGraphClient(graph.GraphClientParams{
		BatchSize:     util.GetEnvInt("GRAPH_BATCH_SIZE", 1),
		MaxRetries:    util.GetEnvInt("GRAPH_MAX_RETRIES", 3),
		RetryDelaySec: util.GetEnvInt("GRAPH_RETRY_DELAY_SEC", 2),
		MaxTokens:     util.GetEnvInt("GRAPH_MAX_TOKENS", 4000),
		MaxEntities:   util.GetEnvInt("GRAPH_MAX_ENTITIES", 50),
		Capabilities: ai.Capabilities{
			Embeddings: util.GetEnvBool("AI_EMBEDDINGS", true),
		},
	})

	// RabbitMQ
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queues := []string{queue.GraphQueue}
	if err := queue.SetupQueues(ch, queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	// One message at a time; a pipeline run saturates the providers on its own.
	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.GraphQueue,
		fmt.Sprintf("%s_consumer", queue.GraphQueue),
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.GraphQueue, "err", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Info("Message channel closed", "queue", queue.GraphQueue)
					return
				}

				startTime := time.Now()
				logger.Info("Received message", "queue", queue.GraphQueue)

				processingErr := queue.ProcessGraphMessage(ctx, graphClient, aiClient, storeClient, clusterClient, string(msg.Body))
				if processingErr != nil {
					logger.Error("Error processing message", "queue", queue.GraphQueue, "err", processingErr)
					handleProcessingError(consumerCh, msg, queue.GraphQueue)
				} else {
					if err := msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", queue.GraphQueue)
				}

				duration := time.Since(startTime)
				hours := int(duration.Hours())
				minutes := int(duration.Minutes()) % 60
				seconds := int(duration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// After 10 retries the message goes to the dead-letter queue.
	if retries >= 10 {
		dlqName := queueName + "_dlq"
		logger.Info("Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
