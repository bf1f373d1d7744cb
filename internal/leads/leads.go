// Package leads persists qualified leads. The engine writes through the
// Sink interface; deployments choose the Postgres store or the in-memory
// one for development runs.
package leads

import (
	"context"

	"github.com/leadwatch/pkg/models"
)

// Sink receives qualified leads. CreateOrUpdate is an upsert keyed by
// telegram id: a stronger score replaces the stored one, a weaker score
// leaves it alone.
type Sink interface {
	CreateOrUpdate(ctx context.Context, lead models.Lead) error
}
