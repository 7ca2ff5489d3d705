// Package server exposes the HTTP API handlers.
package server

import (
	"database/sql"

	"github.com/streamwall/streamsync/collab"
	"github.com/streamwall/streamsync/hub"
	"github.com/streamwall/streamsync/monitor"
	"github.com/streamwall/streamsync/pipeline"
	"github.com/streamwall/streamsync/store"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	hub        *hub.Hub
	sync       *pipeline.Synchronizer
	locks      *collab.Manager
	reconciler *monitor.Reconciler
	primary    store.Store
}

// Deps bundles what the HTTP layer needs from the rest of the service.
type Deps struct {
	DB         *sql.DB
	Hub        *hub.Hub
	Sync       *pipeline.Synchronizer
	Locks      *collab.Manager
	Reconciler *monitor.Reconciler
	Primary    store.Store
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		db:         d.DB,
		hub:        d.Hub,
		sync:       d.Sync,
		locks:      d.Locks,
		reconciler: d.Reconciler,
		primary:    d.Primary,
	}
}
