// Package export defines the outbound port for the application audit trail.
package export

import (
	"context"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

// ApplicationWriter appends a registered application to the export sink.
type ApplicationWriter interface {
	Append(ctx context.Context, app core.Application) error
}
