package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vaidashi/bakery-production/internal/config"
	"github.com/vaidashi/bakery-production/internal/database"
	"github.com/vaidashi/bakery-production/internal/display"
	"github.com/vaidashi/bakery-production/internal/handlers"
	"github.com/vaidashi/bakery-production/internal/models"
	"github.com/vaidashi/bakery-production/internal/notify"
	"github.com/vaidashi/bakery-production/internal/outbox"
	"github.com/vaidashi/bakery-production/internal/production"
	"github.com/vaidashi/bakery-production/internal/repository"
	"github.com/vaidashi/bakery-production/pkg/kafka"
	"github.com/vaidashi/bakery-production/pkg/logger"
)

type Server struct {
	config          *config.Config
	logger          logger.Logger
	router          *mux.Router
	httpServer      *http.Server
	registry        *prometheus.Registry
	engine          *production.Engine
	hub             *display.Hub
	db              *database.Database
	breaker         *repository.BreakerStore
	outboxProcessor *outbox.Processor
	kafkaProducer   *kafka.Producer
	kafkaConsumer   *kafka.Consumer
	webhook         *notify.WebhookNotifier
}

// NewServer wires the store, the production engine, the change feed and the
// HTTP routes from cfg
func NewServer(cfg *config.Config, logger logger.Logger) (*Server, error) {
	s := &Server{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		hub:      display.NewHub(logger),
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, outboxStore, err := s.openStore()

	if err != nil {
		return nil, err
	}

	sinks := notify.Multi{notify.NewLogNotifier(logger), s.hub}

	if cfg.Notify.WebhookURL != "" {
		s.webhook = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout, logger)
		sinks = append(sinks, s.webhook)
	}

	s.engine = production.NewEngine(cfg.Production, store, sinks, logger, production.WithMetrics(s.registry))
	s.engine.Subscribe(s.hub)

	s.outboxProcessor = outbox.NewProcessor(outboxStore, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollingInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
	}, logger)

	if cfg.Kafka.Enabled {
		if err := s.setupKafka(); err != nil {
			s.closeStore()
			return nil, err
		}
	} else {
		// nobody consumes the feed, so just drain the table
		s.outboxProcessor.RegisterFallback(outbox.NewLoggingHandler(logger))
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) openStore() (repository.Store, outbox.Store, error) {
	if s.config.StoreDriver == config.StoreDriverMemory {
		s.logger.Warn("Using the in-memory store; orders are lost on restart and not shared between instances")
		store := repository.NewMemoryStore()
		return store, store, nil
	}

	db, err := database.New(s.config, s.logger)

	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	s.db = db

	outboxRepo := repository.NewOutboxRepository(db, s.logger)
	orderRepo := repository.NewOrderRepository(db, outboxRepo, s.logger)
	s.breaker = repository.NewBreakerStore(orderRepo, repository.DefaultBreakerConfig(), s.logger)

	return s.breaker, outboxRepo, nil
}

func (s *Server) closeStore() {
	if s.db == nil {
		return
	}

	if err := s.db.Close(); err != nil {
		s.logger.Error("Error closing database connection", "error", err)
	}
}

// setupKafka publishes the outbox to the change topic and feeds the topic
// back into the engine
func (s *Server) setupKafka() error {
	cfg := s.config.Kafka

	producer, err := kafka.NewProducer(cfg.Brokers, cfg.ClientID, s.logger)

	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	kafkaHandler := outbox.NewKafkaHandler(producer, cfg.ChangesTopic, s.logger)

	for _, eventType := range []string{models.EventOrderCreated, models.EventOrderUpdated, models.EventOrderDeleted} {
		s.outboxProcessor.RegisterHandler(eventType, kafkaHandler)
	}

	// every instance mirrors the whole board, so each needs its own group
	consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
		Brokers:       cfg.Brokers,
		Topics:        []string{cfg.ChangesTopic},
		ConsumerGroup: fmt.Sprintf("%s-%s", cfg.ConsumerGroup, instanceID()),
		FromNewest:    true,
	}, s.logger)

	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	consumer.RegisterHandler(cfg.ChangesTopic, handlers.NewOrderEventsHandler(s.engine, s.logger))

	s.kafkaProducer = producer
	s.kafkaConsumer = consumer
	return nil
}

func instanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return models.GenerateID("display")
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start loads the board, starts the background workers and then serves HTTP
func (s *Server) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.engine.Start(ctx); err != nil {
		// the periodic resync will catch up once the store is back
		s.logger.Error("Initial board load failed", "error", err)
	}

	if s.webhook != nil {
		s.webhook.Start()
	}

	s.outboxProcessor.Start()

	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Start(); err != nil {
			// Non-fatal error, the periodic resync keeps the board current
			s.logger.Error("Failed to start Kafka consumer", "error", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var err error

	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.hub.Close()

	if s.kafkaConsumer != nil {
		if stopErr := s.kafkaConsumer.Stop(); stopErr != nil {
			s.logger.Error("Error stopping Kafka consumer", "error", stopErr)
		}
	}

	s.outboxProcessor.Stop()

	if s.kafkaProducer != nil {
		if closeErr := s.kafkaProducer.Close(); closeErr != nil {
			s.logger.Error("Error closing Kafka producer", "error", closeErr)
		}
	}

	s.engine.Stop()

	if s.webhook != nil {
		s.webhook.Stop()
	}

	s.closeStore()
	return err
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(s.loggingMiddleware)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)
	api.HandleFunc("/board", s.getBoardHandler).Methods(http.MethodGet)

	api.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.deleteOrderHandler).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/status", s.updateOrderStatusHandler).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/quantity", s.updateQuantityHandler).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/notes", s.updateNotesHandler).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/print", s.recordPrintHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/mixing", s.startMixingHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/mixing", s.cancelMixingHandler).Methods(http.MethodDelete)
	api.HandleFunc("/orders/{id}/mixing/complete", s.completeMixingHandler).Methods(http.MethodPost)

	api.HandleFunc("/mixers", s.getMixersHandler).Methods(http.MethodGet)
	api.HandleFunc("/mixers/{number}/countdown", s.startMixerCountdownHandler).Methods(http.MethodPost)
	api.HandleFunc("/mixers/{number}/countdown", s.cancelMixerCountdownHandler).Methods(http.MethodDelete)

	api.HandleFunc("/ovens", s.getOvensHandler).Methods(http.MethodGet)
	api.HandleFunc("/oven-queue", s.getOvenQueueHandler).Methods(http.MethodGet)
	api.HandleFunc("/ovens/{number}/batches", s.startBakingHandler).Methods(http.MethodPost)
	api.HandleFunc("/ovens/{number}/complete", s.completeBakingHandler).Methods(http.MethodPost)

	// Admin API for monitoring and management
	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/resync", s.resyncHandler).Methods(http.MethodPost)
	admin.HandleFunc("/store-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
