package handler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/record-store/internal/adapter/queue"
	"github.com/rl1809/record-store/internal/adapter/storage"
	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
	"github.com/rl1809/record-store/internal/port"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func init() {
	gin.SetMode(gin.TestMode)
}

// stubClient answers every search with the same matches.
type stubClient struct {
	matches []domain.ReleaseMatch
}

func (s stubClient) FetchTrackList(context.Context, string) ([]domain.Track, error) {
	return []domain.Track{{Title: "So What", Position: 1}}, nil
}

func (s stubClient) SearchRelease(context.Context, string, string, string) ([]domain.ReleaseMatch, error) {
	return s.matches, nil
}

type stubResolver struct {
	client port.TracklistClient
}

func (r stubResolver) Client(adapter domain.AdapterType) (port.TracklistClient, error) {
	if adapter != domain.DefaultAdapter {
		return nil, domain.ErrUnknownAdapter
	}
	return r.client, nil
}

type fixture struct {
	store   *storage.SQLStore
	queue   *queue.MemoryQueue
	orders  *service.OrderService
	catalog *service.CatalogService
	sync    *service.TracklistSyncService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sqlx.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(context.Background(), db))

	store := storage.NewSQLStore(db)
	q := queue.NewMemoryQueue(queue.LocalLimiter(1000), queue.DefaultPolicy(), discardLogger)
	resolver := stubResolver{client: stubClient{matches: []domain.ReleaseMatch{
		{ExternalID: "rel-1", Title: "Kind of Blue", Score: 100, Format: "Vinyl", TrackCount: 5},
	}}}

	return &fixture{
		store:   store,
		queue:   q,
		orders:  service.NewOrderService(store, discardLogger),
		catalog: service.NewCatalogService(store, q, "", discardLogger),
		sync:    service.NewTracklistSyncService(store, resolver, 0, discardLogger),
	}
}

func (f *fixture) seedRecord(t *testing.T, album string, qty int, price string) domain.Record {
	t.Helper()

	rec, err := f.catalog.Create(context.Background(), domain.NewRecord{
		Artist:   "Miles Davis",
		Album:    album,
		Price:    decimal.RequireFromString(price),
		Qty:      qty,
		Format:   domain.FormatVinyl,
		Category: domain.CategoryJazz,
	})
	require.NoError(t, err)
	return rec
}
