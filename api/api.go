package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/marketstead/chatstream/pkg/storage"
)

// Server is the API server for querying persisted conversation turns.
type Server struct {
	config Config
	store  storage.Store
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The store is injected to allow sharing with other components
// (e.g., the chat engine's persistence pool when run in one process).
func NewServer(config Config, store storage.Store, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		store:  store,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/conversations/:user/:topic/history", s.handleGetHistory)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}
