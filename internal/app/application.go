package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"codepair/internal/api"
	"codepair/internal/broker"
	"codepair/internal/catalog"
	"codepair/internal/config"
	"codepair/internal/review"
	"codepair/internal/runner"
	"codepair/internal/store"
	"codepair/internal/websocket"
	pkgdatabase "codepair/pkg/database"
	"codepair/pkg/interfaces"
)

// Application coordinates all system components. Initialization follows
// dependency order: Broker → Store → Catalog → Runner → Reviewer →
// Registry → API → WebSocket → HTTP.
type Application struct {
	config        *config.Config
	sessionBroker *broker.Broker
	sessionStore  *store.Manager
	catalog       interfaces.QuestionCatalog
	registry      *websocket.Registry
	apiServer     *api.Server
	httpServer    *http.Server
}

// NewApplication creates an application with all components initialized.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Session broker. Created before the store so committed writes
	// have a fan-out target from the first mutation on.
	sessionBroker := broker.NewBroker(cfg.Broker.BufferSize)

	// STEP 2: Session store (SQLite, applies migrations on open).
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	sessionStore, err := store.NewManager(dbConfig, sessionBroker)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	// STEP 3: Question catalog. MongoDB when configured, built-in set
	// otherwise.
	var questionCatalog interfaces.QuestionCatalog
	if cfg.MongoCatalogEnabled() {
		mongoCatalog, err := catalog.NewMongoCatalog(context.Background(), catalog.Options{
			URI:        cfg.Catalog.MongoURI,
			Database:   cfg.Catalog.Database,
			Collection: cfg.Catalog.Collection,
			Timeout:    cfg.Catalog.Timeout,
		})
		if err != nil {
			_ = sessionStore.Close()
			return nil, fmt.Errorf("failed to initialize question catalog: %w", err)
		}
		questionCatalog = mongoCatalog
		log.Println("Question catalog: MongoDB")
	} else {
		questionCatalog = catalog.NewStaticCatalog()
		log.Println("Question catalog: built-in")
	}

	// STEP 4: Code runner (optional).
	var codeRunner interfaces.CodeRunner
	if cfg.RunnerEnabled() {
		client, err := runner.NewClient(runner.Options{
			BaseURL: cfg.Runner.BaseURL,
			APIKey:  cfg.Runner.APIKey,
			APIHost: cfg.Runner.APIHost,
			Timeout: cfg.Runner.Timeout,
		})
		if err != nil {
			_ = sessionStore.Close()
			return nil, fmt.Errorf("failed to initialize code runner: %w", err)
		}
		codeRunner = client
		log.Println("Code execution: enabled")
	} else {
		log.Println("Code execution: disabled")
	}

	// STEP 5: AI reviewer (optional).
	var codeReviewer interfaces.CodeReviewer
	if cfg.ReviewEnabled() {
		reviewer, err := review.NewReviewer(review.Options{
			APIKey:  cfg.Review.APIKey,
			Model:   cfg.Review.Model,
			Timeout: cfg.Review.Timeout,
		})
		if err != nil {
			_ = sessionStore.Close()
			return nil, fmt.Errorf("failed to initialize reviewer: %w", err)
		}
		codeReviewer = reviewer
		log.Println("AI review: enabled")
	} else {
		log.Println("AI review: disabled")
	}

	// STEP 6: Connection registry.
	registry := websocket.NewRegistry()

	// STEP 7: API server.
	apiServer := api.NewServer(sessionStore, questionCatalog, codeRunner, codeReviewer, registry)

	// STEP 8: WebSocket handler.
	rateLimiter := websocket.NewRateLimiter(cfg.WebSocket.RateLimit, time.Minute)
	wsHandler := websocket.NewHandler(registry, sessionStore, sessionBroker, rateLimiter)

	// STEP 9: HTTP server with API and WebSocket endpoints.
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:        cfg,
		sessionBroker: sessionBroker,
		sessionStore:  sessionStore,
		catalog:       questionCatalog,
		registry:      registry,
		apiServer:     apiServer,
		httpServer:    httpServer,
	}, nil
}

// Start begins application execution. The broker starts before the HTTP
// server so every connection can subscribe from the first request.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting codepair on %s", app.httpServer.Addr)

	if err := app.sessionBroker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session broker: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.sessionBroker.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("codepair started successfully")
		return nil
	case <-ctx.Done():
		_ = app.sessionBroker.Stop()
		return ctx.Err()
	}
}

// Stop gracefully shuts down in reverse dependency order:
// HTTP → Broker → Store → Catalog.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down codepair")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.sessionBroker.Stop(); err != nil {
		log.Printf("Broker shutdown error: %v", err)
	}

	if err := app.sessionStore.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	if err := app.catalog.Close(ctx); err != nil {
		log.Printf("Catalog shutdown error: %v", err)
	}

	log.Printf("codepair shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
