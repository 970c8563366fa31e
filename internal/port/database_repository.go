package port

import (
	"context"

	"github.com/rl1809/record-store/internal/core/domain"
)

type RecordRepository interface {
	// CreateRecord persists a new record and returns it with its generated ID
	CreateRecord(ctx context.Context, record domain.Record) (domain.Record, error)

	// GetRecord returns domain.ErrNotFound when the record does not exist
	GetRecord(ctx context.Context, id string) (domain.Record, error)

	// FindRecordsByIDs returns only the records that exist, in no particular order
	FindRecordsByIDs(ctx context.Context, ids []string) ([]domain.Record, error)

	// UpdateRecord writes only the fields the patch sets, in one statement. A
	// non-nil sync replaces the sync fields in that same statement
	UpdateRecord(ctx context.Context, id string, patch domain.RecordPatch, sync *domain.SyncState) (domain.Record, error)

	// SaveSyncState writes the tracklist sync fields of a record in one statement
	SaveSyncState(ctx context.Context, recordID string, state domain.SyncState) error

	// DecrementStock atomically subtracts quantity only if enough stock is left
	DecrementStock(ctx context.Context, recordID string, quantity int) (domain.Record, error)

	// IncrementStock adds quantity back (restock)
	IncrementStock(ctx context.Context, recordID string, quantity int) (domain.Record, error)
}

type OrderRepository interface {
	// GetOrder returns the order with its items in insertion order
	GetOrder(ctx context.Context, id string) (domain.Order, error)

	// UpdateOrderStatus sets the status unconditionally; writing the current status is a no-op
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error)
}

// StoreTx is the subset of the store usable inside one atomic unit of work.
type StoreTx interface {
	DecrementStock(ctx context.Context, recordID string, quantity int) (domain.Record, error)
	CreateOrder(ctx context.Context, order domain.Order) error
}

type Store interface {
	RecordRepository
	OrderRepository

	// WithinTx runs fn in a transaction. Returning an error from fn rolls everything back
	WithinTx(ctx context.Context, fn func(tx StoreTx) error) error
}
