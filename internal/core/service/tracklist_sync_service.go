package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

const DefaultFetchTimeout = 10 * time.Second

// TracklistSyncService resolves a record's external id into its track list.
// It is the only writer of the sync fields of a record.
type TracklistSyncService struct {
	records      port.RecordRepository
	resolver     port.TracklistResolver
	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
	jobs         metric.Int64Counter
}

func NewTracklistSyncService(records port.RecordRepository, resolver port.TracklistResolver, fetchTimeout time.Duration, logger *slog.Logger) *TracklistSyncService {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TracklistSyncService{
		records:      records,
		resolver:     resolver,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		now:          time.Now,
		jobs:         newCounter("sync.jobs", "Tracklist sync jobs processed, by outcome"),
	}
}

// Handle adapts Process to a queue consumer.
func (s *TracklistSyncService) Handle(ctx context.Context, job domain.SyncJob) error {
	_, err := s.Process(ctx, job)
	return err
}

// Process runs one sync job. A record that already caches tracks for the
// job's external id is left alone without calling the metadata source. A
// lookup failure marks the record INVALID before the *domain.SyncError is
// returned.
func (s *TracklistSyncService) Process(ctx context.Context, job domain.SyncJob) (result domain.SyncResult, err error) {
	ctx, span := tracer.Start(ctx, "TracklistSyncService.Process", trace.WithAttributes(
		attribute.String("record.id", job.RecordID),
		attribute.String("record.external_id", job.ExternalID),
		attribute.String("sync.adapter", string(job.Adapter)),
	))
	outcome := "valid"
	defer func() {
		if err != nil && outcome == "valid" {
			outcome = errorKind(err)
		}
		s.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		endSpan(span, err)
	}()

	record, err := s.records.GetRecord(ctx, job.RecordID)
	if err != nil {
		return domain.SyncResult{}, err
	}

	if !record.NeedsSync(job.ExternalID) {
		outcome = "skipped"
		s.logger.DebugContext(ctx, "tracklist already synced",
			slog.String("record_id", record.ID),
			slog.String("external_id", job.ExternalID),
		)
		return domain.SyncResult{RecordID: record.ID, TrackCount: len(record.Tracks)}, nil
	}

	tracks, fetchErr := s.fetch(ctx, job)
	if fetchErr != nil {
		// shutting down is not a verdict on the external id
		if ctx.Err() != nil {
			return domain.SyncResult{}, ctx.Err()
		}
		outcome = "invalid"
		if err := s.records.SaveSyncState(ctx, record.ID, domain.InvalidSyncState(job.ExternalID)); err != nil {
			return domain.SyncResult{}, fmt.Errorf("mark record invalid: %w", err)
		}
		s.logger.WarnContext(ctx, "tracklist sync failed",
			slog.String("record_id", record.ID),
			slog.String("external_id", job.ExternalID),
			slog.Any("error", fetchErr),
		)
		return domain.SyncResult{}, &domain.SyncError{RecordID: record.ID, ExternalID: job.ExternalID, Err: fetchErr}
	}

	state := domain.ValidSyncState(job.ExternalID, tracks, s.now().UTC())
	if err := s.records.SaveSyncState(ctx, record.ID, state); err != nil {
		return domain.SyncResult{}, fmt.Errorf("save tracklist: %w", err)
	}

	s.logger.InfoContext(ctx, "tracklist synced",
		slog.String("record_id", record.ID),
		slog.String("external_id", job.ExternalID),
		slog.Int("tracks", len(tracks)),
	)
	return domain.SyncResult{RecordID: record.ID, TrackCount: len(tracks)}, nil
}

func (s *TracklistSyncService) fetch(ctx context.Context, job domain.SyncJob) ([]domain.Track, error) {
	adapter := job.Adapter
	if adapter == "" {
		adapter = domain.DefaultAdapter
	}
	client, err := s.resolver.Client(adapter)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	tracks, err := client.FetchTrackList(fetchCtx, job.ExternalID)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("release %s has no tracks", job.ExternalID)
	}
	return tracks, nil
}

// SearchReleases looks up candidate external ids for a catalog entry.
func (s *TracklistSyncService) SearchReleases(ctx context.Context, adapter domain.AdapterType, artist, album string, format domain.RecordFormat) ([]domain.ReleaseMatch, error) {
	if artist == "" || album == "" {
		return nil, domain.InvalidInputf("artist and album are required")
	}
	if adapter == "" {
		adapter = domain.DefaultAdapter
	}
	client, err := s.resolver.Client(adapter)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	return client.SearchRelease(ctx, artist, album, string(format))
}
