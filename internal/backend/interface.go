package backend

import (
	"context"

	"replenishment/internal/amqp"
	"replenishment/internal/drafts"
	"replenishment/internal/services"
	"replenishment/internal/sheets"
)

// Backend represents a unified backend interface that provides all necessary operations
type Backend interface {
	services.Repository
	sheets.ExportTracker
	drafts.Store

	// Ping reports whether the backend can serve requests.
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance, its optional collaborators
// and a cleanup function
type BackendResult struct {
	Backend Backend

	// AMQP is nil when no broker is configured or reachable.
	AMQP *amqp.Client

	// Exporter is nil when sheet export is disabled.
	Exporter sheets.ScaleExporter

	Cleanup CleanupFunc
}

// Publisher returns the AMQP client as a services.Publisher, or a nil
// interface when AMQP is not available.
func (r *BackendResult) Publisher() services.Publisher {
	if r.AMQP == nil {
		return nil
	}
	return r.AMQP
}

// Close runs the cleanup function if any.
func (r *BackendResult) Close() error {
	if r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
