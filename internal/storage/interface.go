package storage

import (
	"context"
	"time"

	"github.com/nvctranslator/nvcbot/internal/domain"
)

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// Watermark operations. GetWatermark reports ok=false when no
	// watermark has been persisted yet.
	GetWatermark(ctx context.Context) (value time.Time, ok bool, err error)
	SetWatermark(ctx context.Context, value time.Time) error

	// Outcome history operations
	SaveOutcomes(ctx context.Context, outcomes []*domain.ItemOutcome) error
	GetOutcomes(ctx context.Context, limit int) ([]*domain.ItemOutcome, error)
	GetOutcomeStats(ctx context.Context) (*domain.OutcomeStats, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
