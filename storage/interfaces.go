package storage

import (
	"context"

	"car-sniper/models"
)

// FilterStore persists each subscriber's FilterSpec. A save replaces the
// previous spec wholesale.
type FilterStore interface {
	SaveFilterSpec(ctx context.Context, subscriberID int64, spec models.FilterSpec) error
	LoadFilterSpec(ctx context.Context, subscriberID int64) (models.FilterSpec, bool, error)
	AllFilterSpecs(ctx context.Context) ([]models.SubscriberFilter, error)
}

// Ledger remembers which (subscriber, listing, price) observations were
// already delivered. A nil price is a key of its own. Recording an existing
// key is a no-op.
type Ledger interface {
	AlreadyNotified(ctx context.Context, subscriberID int64, listingID string, price *int) (bool, error)
	RecordNotified(ctx context.Context, subscriberID int64, listingID string, price *int, meta models.LedgerMeta) error
}

// History lists what a subscriber was recently sent, newest first.
type History interface {
	LedgerEntries(ctx context.Context, subscriberID int64, limit int) ([]models.LedgerEntry, error)
}

// Store is a backend serving every contract above.
type Store interface {
	FilterStore
	Ledger
	History
	Close() error
}

// SnapshotWriter is the interface for dumping each collected batch for
// offline inspection.
type SnapshotWriter interface {
	WriteSnapshot(tickID string, records []*models.ListingRecord) error
	Close() error
}
