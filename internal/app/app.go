// Package app wires the application together: configuration, tracing,
// database, Genkit, stores, services and the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverline/coverline/internal/agent"
	"github.com/coverline/coverline/internal/api"
	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/chat"
	"github.com/coverline/coverline/internal/config"
	"github.com/coverline/coverline/internal/insurance"
	"github.com/coverline/coverline/internal/knowledge"
	"github.com/coverline/coverline/internal/log"
)

// App is the application container. All fields are initialized by Setup
// and released by Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Auth      *auth.Service
	Tokens    *auth.TokenIssuer
	Insurance *insurance.Service
	Knowledge *knowledge.Index
	Agent     *agent.Orchestrator
	Chats     *chat.Service

	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// Server builds the HTTP server over the app's services.
func (a *App) Server() (*api.Server, error) {
	return api.NewServer(api.ServerConfig{
		Logger:    a.Logger,
		Auth:      a.Auth,
		Tokens:    a.Tokens,
		Chats:     a.Chats,
		Insurance: a.Insurance,
		Documents: a.Knowledge,
		Pool:      a.DBPool,
	})
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// it down gracefully.
func (a *App) ListenAndServe(ctx context.Context) error {
	srv, err := a.Server()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	a.Logger.Info("server listening", "addr", a.Config.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
