package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"analystbot/config"
	"analystbot/controllers"
	"analystbot/logger"
)

// Server wraps the router and the controller graph
type Server struct {
	router     *mux.Router
	controller *controllers.Controller
	cfg        config.Config
}

// NewServer creates a new server instance
func NewServer(cfg config.Config) *Server {
	return &Server{
		router:     mux.NewRouter(),
		controller: controllers.NewController(cfg),
		cfg:        cfg,
	}
}

// setupRoutes configures all endpoints
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.controller.IndexHandler).Methods("GET")
	s.router.HandleFunc("/chat", s.controller.ChatHandler).Methods("POST")
	s.router.HandleFunc("/research", s.controller.ResearchHandler).Methods("POST")
	s.router.HandleFunc("/health", s.controller.HealthHandler).Methods("GET")
	s.router.HandleFunc("/healthz", s.controller.HealthzHandler).Methods("GET")
}

// Run starts the HTTP server and blocks until shutdown
func (s *Server) Run(enableDiscord bool) error {
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: c.Handler(s.router),
	}

	if err := s.controller.StartServices(enableDiscord); err != nil {
		logger.Warn("background services failed to start", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.controller.StopServices(); err != nil {
		logger.Warn("error stopping services", "error", err)
	}

	return srv.Shutdown(ctx)
}

func main() {
	enableDiscord := flag.Bool("discord", false, "enable the Discord frontend")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.LogLevel, cfg.LogFile)
	logger.Info("defense analyst chatbot starting",
		"model", cfg.OpenAI.Model,
		"library", cfg.Library.Enabled,
	)

	server := NewServer(cfg)
	if err := server.Run(*enableDiscord); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
