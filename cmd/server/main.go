package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lychee-technology/formedit"
	"github.com/lychee-technology/formedit/factory"
	"go.uber.org/zap"
)

// Server exposes one editing session over HTTP.
type Server struct {
	editor formedit.Editor
	mux    *http.ServeMux
}

// NewServer creates a new Server instance
func NewServer(editor formedit.Editor) *Server {
	return &Server{
		editor: editor,
		mux:    http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("GET /api/v1/collections", s.handleCollections)
	s.mux.HandleFunc("POST /api/v1/collections/{name}", s.handleOpen)
	s.mux.HandleFunc("GET /api/v1/collections/{name}/schema", s.handleSchema)
	s.mux.HandleFunc("GET /api/v1/view", s.handleView)
	s.mux.HandleFunc("POST /api/v1/view/select", s.handleSelect)
	s.mux.HandleFunc("POST /api/v1/view/toggle", s.handleToggle)
	s.mux.HandleFunc("POST /api/v1/view/edit", s.handleEdit)
	s.mux.HandleFunc("POST /api/v1/view/draft", s.handleDraft)
	s.mux.HandleFunc("POST /api/v1/view/save", s.handleSave)
	s.mux.HandleFunc("POST /api/v1/view/reset", s.handleReset)
	s.mux.HandleFunc("POST /api/v1/view/delete", s.handleDelete)
	s.mux.HandleFunc("POST /api/v1/view/close", s.handleClose)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func main() {
	config, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger, err := factory.NewLogger(config.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	editor, closeTransport, err := factory.NewEditor(ctx, config)
	if err != nil {
		sugar.Fatalf("failed to create editor: %v", err)
	}
	defer closeTransport()

	server := NewServer(editor)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("starting server", "port", port, "transport", config.Transport.Kind)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("server shutdown failed", "error", err)
	}
	editor.Drain(shutdownCtx)
}
