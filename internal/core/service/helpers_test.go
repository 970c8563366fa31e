package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestStore(t *testing.T) (*storage.SQLStore, *sqlx.DB) {
	t.Helper()

	db, err := sqlx.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(context.Background(), db))
	return storage.NewSQLStore(db), db
}

func seedRecord(t *testing.T, store port.RecordRepository, qty int, price string) domain.Record {
	t.Helper()

	rec, err := store.CreateRecord(context.Background(), domain.Record{
		Artist:   "Miles Davis",
		Album:    "Kind of Blue " + uuid.NewString(),
		Price:    decimal.RequireFromString(price),
		Qty:      qty,
		Format:   domain.FormatVinyl,
		Category: domain.CategoryJazz,
	})
	require.NoError(t, err)
	return rec
}

func stockOf(t *testing.T, store port.RecordRepository, id string) int {
	t.Helper()

	rec, err := store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	return rec.Qty
}

func countOrders(t *testing.T, db *sqlx.DB) int {
	t.Helper()

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM orders`))
	return n
}

// fakeQueue records enqueued jobs instead of delivering them.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []domain.SyncJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job domain.SyncJob) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return uuid.NewString(), nil
}

func (q *fakeQueue) Consume(ctx context.Context, _ port.JobHandler) error {
	<-ctx.Done()
	return nil
}

func (q *fakeQueue) Jobs() []domain.SyncJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.SyncJob(nil), q.jobs...)
}

type mockTracklistClient struct {
	mock.Mock
}

func (m *mockTracklistClient) FetchTrackList(ctx context.Context, externalID string) ([]domain.Track, error) {
	args := m.Called(ctx, externalID)
	tracks, _ := args.Get(0).([]domain.Track)
	return tracks, args.Error(1)
}

func (m *mockTracklistClient) SearchRelease(ctx context.Context, artist, album, format string) ([]domain.ReleaseMatch, error) {
	args := m.Called(ctx, artist, album, format)
	matches, _ := args.Get(0).([]domain.ReleaseMatch)
	return matches, args.Error(1)
}

// singleResolver serves one client for the default adapter only.
type singleResolver struct {
	client port.TracklistClient
}

func (r singleResolver) Client(adapter domain.AdapterType) (port.TracklistClient, error) {
	if adapter != domain.DefaultAdapter {
		return nil, domain.ErrUnknownAdapter
	}
	return r.client, nil
}

// failingInsertStore lets decrements through but fails the order insert.
type failingInsertStore struct {
	port.Store
}

var errInsert = errors.New("insert failed")

func (s failingInsertStore) WithinTx(ctx context.Context, fn func(tx port.StoreTx) error) error {
	return s.Store.WithinTx(ctx, func(tx port.StoreTx) error {
		return fn(failingInsertTx{tx})
	})
}

type failingInsertTx struct {
	port.StoreTx
}

func (failingInsertTx) CreateOrder(context.Context, domain.Order) error {
	return errInsert
}

// racingRecords runs beforeUpdate between the service's read and its write.
type racingRecords struct {
	port.RecordRepository
	beforeUpdate func()
}

func (r racingRecords) UpdateRecord(ctx context.Context, id string, patch domain.RecordPatch, sync *domain.SyncState) (domain.Record, error) {
	r.beforeUpdate()
	return r.RecordRepository.UpdateRecord(ctx, id, patch, sync)
}

type failingUpdateRecords struct {
	port.RecordRepository
}

var errUpdate = errors.New("update failed")

func (failingUpdateRecords) UpdateRecord(context.Context, string, domain.RecordPatch, *domain.SyncState) (domain.Record, error) {
	return domain.Record{}, errUpdate
}
