package interfaces

import (
	"context"

	"github.com/ternarybob/renovo/internal/models"
)

// ProcessOperation is a tracked long-running operation. It must honor
// context cancellation; cancellation is cooperative and best-effort.
type ProcessOperation func(ctx context.Context) (interface{}, error)

// ProcessTracker is the registry of named concurrent operations with
// at-most-one-in-flight-per-name semantics. A second Start for a name whose
// operation has not completed fails fast with *models.DuplicateProcessError.
type ProcessTracker interface {
	// Start registers and schedules op under name
	Start(name string, op ProcessOperation) (*models.ProcessInfo, error)

	// Result blocks until the named operation completes and returns its
	// value or error. Bookkeeping for the name is released once the result
	// has been consumed.
	Result(ctx context.Context, name string) (interface{}, error)

	// Cancel requests cooperative cancellation. Remote state may continue
	// to change after cancellation is requested.
	Cancel(name string) error

	// ListRunning returns the names of non-completed operations
	ListRunning() []models.ProcessInfo

	// Shutdown cancels all running operations and waits for them to finish
	Shutdown(ctx context.Context) error
}
