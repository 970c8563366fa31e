package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := sqlx.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and shared
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return NewSQLStore(db)
}

func getMySQLStore(t *testing.T) *SQLStore {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}

	db, err := Open(context.Background(), DriverMySQL, dsn, PoolConfig{MaxOpenConns: 50})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return NewSQLStore(db)
}

func seedRecord(t *testing.T, store *SQLStore, qty int, price string) domain.Record {
	t.Helper()

	rec, err := store.CreateRecord(context.Background(), domain.Record{
		Artist:   "The Beatles",
		Album:    "Abbey Road " + uuid.NewString(),
		Price:    decimal.RequireFromString(price),
		Qty:      qty,
		Format:   domain.FormatVinyl,
		Category: domain.CategoryRock,
	})
	require.NoError(t, err)
	return rec
}

func TestCreateRecord_Defaults(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	rec := seedRecord(t, store, 10, "25.50")
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.SyncStatusUnset, rec.SyncStatus)

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Qty)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("25.50")))
	assert.Empty(t, got.Tracks)
	assert.Nil(t, got.TracksSyncedAt)
	assert.Empty(t, got.ExternalID)
}

func TestGetRecord_NotFound(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindRecordsByIDs_ReturnsOnlyExisting(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	a := seedRecord(t, store, 1, "10")
	b := seedRecord(t, store, 2, "20")

	records, err := store.FindRecordsByIDs(ctx, []string{a.ID, "missing", b.ID})
	require.NoError(t, err)
	require.Len(t, records, 2)

	ids := []string{records[0].ID, records[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	records, err = store.FindRecordsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDecrementStock_Success(t *testing.T) {
	store := newSQLiteStore(t)
	rec := seedRecord(t, store, 10, "30")

	updated, err := store.DecrementStock(context.Background(), rec.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Qty)
}

func TestDecrementStock_InsufficientStock(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, 5, "30")

	_, err := store.DecrementStock(ctx, rec.ID, 10)

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, rec.ID, stockErr.RecordID)
	assert.Equal(t, 10, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Qty)
}

func TestDecrementStock_NotFound(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.DecrementStock(context.Background(), "nonexistent", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var stockErr *domain.InsufficientStockError
	assert.False(t, errors.As(err, &stockErr))
}

func TestDecrementStock_RejectsNonPositiveQuantity(t *testing.T) {
	store := newSQLiteStore(t)
	rec := seedRecord(t, store, 5, "30")

	_, err := store.DecrementStock(context.Background(), rec.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDecrementStock_Concurrent(t *testing.T) {
	store := newSQLiteStore(t)
	assertNoOversell(t, store)
}

func TestMySQL_DecrementStock_Concurrent(t *testing.T) {
	store := getMySQLStore(t)
	assertNoOversell(t, store)
}

func assertNoOversell(t *testing.T, store *SQLStore) {
	t.Helper()

	ctx := context.Background()
	initialStock := 20
	totalRequests := 50
	rec := seedRecord(t, store, initialStock, "15")

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.DecrementStock(ctx, rec.ID, 1)
			if err == nil {
				successCount.Add(1)
				return
			}
			var stockErr *domain.InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Qty)
}

func TestIncrementStock(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, 5, "30")

	updated, err := store.IncrementStock(ctx, rec.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, updated.Qty)

	_, err = store.IncrementStock(ctx, "missing", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, 5, "30")
	boom := errors.New("boom")
	orderID := uuid.NewString()

	err := store.WithinTx(ctx, func(tx port.StoreTx) error {
		if _, err := tx.DecrementStock(ctx, rec.ID, 2); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.CreateOrder(ctx, domain.Order{
			ID:        orderID,
			Status:    domain.OrderStatusPending,
			Items:     []domain.OrderItem{{RecordID: rec.ID, Quantity: 2, Price: rec.Price}},
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Qty)

	_, err = store.GetOrder(ctx, orderID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateOrder_KeepsItemOrderAndPrices(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	a := seedRecord(t, store, 5, "12.50")
	b := seedRecord(t, store, 5, "7")
	now := time.Now().UTC()

	order := domain.Order{
		ID:     uuid.NewString(),
		Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{RecordID: b.ID, Quantity: 1, Price: b.Price},
			{RecordID: a.ID, Quantity: 2, Price: a.Price},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.WithinTx(ctx, func(tx port.StoreTx) error {
		return tx.CreateOrder(ctx, order)
	}))

	got, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, b.ID, got.Items[0].RecordID)
	assert.Equal(t, a.ID, got.Items[1].RecordID)
	assert.True(t, got.Items[1].Price.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, got.Total().Equal(decimal.RequireFromString("32")))
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestUpdateOrderStatus(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	order := domain.Order{ID: uuid.NewString(), Status: domain.OrderStatusPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.WithinTx(ctx, func(tx port.StoreTx) error {
		return tx.CreateOrder(ctx, order)
	}))

	got, err := store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusShipping)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipping, got.Status)

	// writing the same status again is not an error
	got, err = store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusShipping)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipping, got.Status)

	_, err = store.UpdateOrderStatus(ctx, "missing", domain.OrderStatusComplete)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveSyncState(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, 1, "10")
	syncedAt := time.Now().UTC()
	tracks := []domain.Track{
		{Title: "Come Together", Length: 259000, Position: 1, ReleaseDate: "1969-09-26"},
		{Title: "Something", Length: 182000, Position: 2, ReleaseDate: "1969-09-26"},
	}

	require.NoError(t, store.SaveSyncState(ctx, rec.ID, domain.ValidSyncState("abc", tracks, syncedAt)))

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ExternalID)
	assert.Equal(t, domain.SyncStatusValid, got.SyncStatus)
	assert.Equal(t, tracks, got.Tracks)
	require.NotNil(t, got.TracksSyncedAt)
	assert.WithinDuration(t, syncedAt, *got.TracksSyncedAt, time.Millisecond)

	require.NoError(t, store.SaveSyncState(ctx, rec.ID, domain.InvalidSyncState("xyz")))

	got, err = store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "xyz", got.ExternalID)
	assert.Equal(t, domain.SyncStatusInvalid, got.SyncStatus)
	assert.Empty(t, got.Tracks)
	assert.Nil(t, got.TracksSyncedAt)

	err = store.SaveSyncState(ctx, "missing", domain.InvalidSyncState("xyz"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateRecord(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, 1, "10")

	price := decimal.RequireFromString("19.99")
	qty := 4
	got, err := store.UpdateRecord(ctx, rec.ID, domain.RecordPatch{Price: &price, Qty: &qty}, nil)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(price))
	assert.Equal(t, 4, got.Qty)
	assert.Equal(t, rec.Artist, got.Artist)
	assert.Empty(t, got.ExternalID)
	assert.Equal(t, domain.SyncStatusUnset, got.SyncStatus)

	_, err = store.UpdateRecord(ctx, "missing", domain.RecordPatch{Price: &price}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateRecord_LeavesStockAlone(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, 5, "10")

	// sold after the caller read the record
	_, err := store.DecrementStock(ctx, rec.ID, 3)
	require.NoError(t, err)

	artist := "John Coltrane"
	got, err := store.UpdateRecord(ctx, rec.ID, domain.RecordPatch{Artist: &artist}, nil)
	require.NoError(t, err)
	assert.Equal(t, "John Coltrane", got.Artist)
	assert.Equal(t, 2, got.Qty)
}

func TestUpdateRecord_WithSyncState(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, 1, "10")

	syncedAt := time.Now().UTC()
	require.NoError(t, store.SaveSyncState(ctx, rec.ID,
		domain.ValidSyncState("abc", []domain.Track{{Title: "So What", Position: 1}}, syncedAt)))

	album := "Kind of Blue (Legacy)"
	pending := domain.PendingSyncState("xyz")
	got, err := store.UpdateRecord(ctx, rec.ID, domain.RecordPatch{Album: &album}, &pending)
	require.NoError(t, err)
	assert.Equal(t, album, got.Album)
	assert.Equal(t, "xyz", got.ExternalID)
	assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)
	assert.Empty(t, got.Tracks)
	assert.Nil(t, got.TracksSyncedAt)
}
