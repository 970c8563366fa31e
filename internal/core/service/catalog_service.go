package service

import (
	"context"
	"log/slog"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

// CatalogService owns record writes on the request path. Any write that sets
// a new external id schedules a tracklist sync after it has been persisted.
type CatalogService struct {
	records port.RecordRepository
	queue   port.JobQueue
	adapter domain.AdapterType
	logger  *slog.Logger
}

func NewCatalogService(records port.RecordRepository, queue port.JobQueue, adapter domain.AdapterType, logger *slog.Logger) *CatalogService {
	if adapter == "" {
		adapter = domain.DefaultAdapter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{
		records: records,
		queue:   queue,
		adapter: adapter,
		logger:  logger,
	}
}

func (s *CatalogService) Create(ctx context.Context, in domain.NewRecord) (domain.Record, error) {
	if err := in.Validate(); err != nil {
		return domain.Record{}, err
	}

	record := domain.Record{
		Artist:     in.Artist,
		Album:      in.Album,
		Price:      in.Price,
		Qty:        in.Qty,
		Format:     in.Format,
		Category:   in.Category,
		ExternalID: in.ExternalID,
		SyncStatus: domain.SyncStatusUnset,
	}
	if in.ExternalID != "" {
		record.SyncStatus = domain.SyncStatusPending
	}

	record, err := s.records.CreateRecord(ctx, record)
	if err != nil {
		return domain.Record{}, err
	}

	if record.ExternalID != "" {
		s.scheduleSync(ctx, record.ID, record.ExternalID)
	}
	return record, nil
}

// Update applies patch to the stored record. Only the fields the patch sets
// are written, so concurrent stock decrements are never overwritten. Changing
// the external id resets the sync state to PENDING in the same write and
// enqueues a job for the new id.
func (s *CatalogService) Update(ctx context.Context, id string, patch domain.RecordPatch) (domain.Record, error) {
	current, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return domain.Record{}, err
	}

	rearm := patch.ExternalIDChanged(current.ExternalID)
	next := patch.Apply(current)
	if err := next.Validate(); err != nil {
		return domain.Record{}, err
	}

	var sync *domain.SyncState
	if rearm {
		pending := domain.PendingSyncState(next.ExternalID)
		sync = &pending
	}

	updated, err := s.records.UpdateRecord(ctx, id, patch, sync)
	if err != nil {
		return domain.Record{}, err
	}
	if rearm {
		s.scheduleSync(ctx, id, next.ExternalID)
	}
	return updated, nil
}

func (s *CatalogService) Get(ctx context.Context, id string) (domain.Record, error) {
	return s.records.GetRecord(ctx, id)
}

// FindByIDs returns only the records that exist. Callers diff against ids themselves.
func (s *CatalogService) FindByIDs(ctx context.Context, ids []string) ([]domain.Record, error) {
	return s.records.FindRecordsByIDs(ctx, ids)
}

func (s *CatalogService) Restock(ctx context.Context, id string, quantity int) (domain.Record, error) {
	if quantity < 1 {
		return domain.Record{}, domain.InvalidInputf("quantity must be at least 1, got %d", quantity)
	}
	return s.records.IncrementStock(ctx, id, quantity)
}

// scheduleSync never fails the caller: the record is already stored as
// PENDING, and the failure is only logged.
func (s *CatalogService) scheduleSync(ctx context.Context, recordID, externalID string) {
	job := domain.SyncJob{RecordID: recordID, ExternalID: externalID, Adapter: s.adapter}
	handle, err := s.queue.Enqueue(ctx, job)
	if err != nil {
		s.logger.ErrorContext(ctx, "enqueue tracklist sync failed",
			slog.String("record_id", recordID),
			slog.String("external_id", externalID),
			slog.Any("error", err),
		)
		return
	}
	s.logger.DebugContext(ctx, "tracklist sync enqueued",
		slog.String("record_id", recordID),
		slog.String("job", handle),
	)
}
