// Package registry tracks submitted analysis runs as Applications.
package registry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/ledaniel0/ml-loan-analyzer/internal/core"
)

// Store is the port every registry backend implements. Applications are
// kept most-recent-first and are immutable once registered; the only
// removal is a full session reset.
type Store interface {
	Register(ctx context.Context, result core.AnalysisResult) (core.Application, error)
	List(ctx context.Context) ([]core.Application, error)
	Reset(ctx context.Context) error
}

// IDGenerator produces application identifiers. Injectable so tests can be
// deterministic.
type IDGenerator interface {
	NewID() string
	NewApplicationNumber() string
}

// UUIDGenerator is the default generator: uuid IDs plus a human-readable
// number with a random 4-digit suffix. The number is collision-tolerant,
// not unique.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

func (UUIDGenerator) NewApplicationNumber() string {
	return fmt.Sprintf("APP-%04d", rand.IntN(10000))
}

// Build assembles a new Application from a completed analysis. The status is
// derived from the result decision; anything but an explicit approval or
// denial registers as Pending.
func Build(gen IDGenerator, now func() time.Time, result core.AnalysisResult) core.Application {
	return core.Application{
		ID:                gen.NewID(),
		ApplicationNumber: gen.NewApplicationNumber(),
		Date:              now(),
		Status:            result.Status(),
		Analysis:          result,
	}
}
