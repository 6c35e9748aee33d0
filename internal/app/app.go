// Package app provides application initialization and dependency wiring.
//
// App is the container that composes the knowledge store, memory store,
// generation client, and orchestrator over one database pool and one genkit
// instance.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okulai/okulai/internal/config"
	"github.com/okulai/okulai/internal/knowledge"
	"github.com/okulai/okulai/internal/log"
	"github.com/okulai/okulai/internal/memory"
	"github.com/okulai/okulai/internal/tutor"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge    *knowledge.Store
	Memory       *memory.Store
	Orchestrator *tutor.Orchestrator

	janitor *memory.Janitor
	cancel  context.CancelFunc
	done    chan struct{}
}

// StartJanitor launches the idle-session eviction loop. It returns
// immediately; Close stops the loop and waits for it.
func (a *App) StartJanitor(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		a.janitor.Run(ctx)
	}()
}

// Close releases all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down")

	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database pool closed")
	}
	return nil
}
