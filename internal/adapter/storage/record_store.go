package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

const recordColumns = `id, artist, album, price, qty, format, category, external_id,
	tracks, tracks_synced_at, sync_status, created_at, updated_at`

type recordRow struct {
	ID             string          `db:"id"`
	Artist         string          `db:"artist"`
	Album          string          `db:"album"`
	Price          decimal.Decimal `db:"price"`
	Qty            int             `db:"qty"`
	Format         string          `db:"format"`
	Category       string          `db:"category"`
	ExternalID     sql.NullString  `db:"external_id"`
	Tracks         trackList       `db:"tracks"`
	TracksSyncedAt sql.NullTime    `db:"tracks_synced_at"`
	SyncStatus     string          `db:"sync_status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r recordRow) toDomain() domain.Record {
	rec := domain.Record{
		ID:         r.ID,
		Artist:     r.Artist,
		Album:      r.Album,
		Price:      r.Price,
		Qty:        r.Qty,
		Format:     domain.RecordFormat(r.Format),
		Category:   domain.RecordCategory(r.Category),
		ExternalID: r.ExternalID.String,
		Tracks:     []domain.Track(r.Tracks),
		SyncStatus: domain.SyncStatus(r.SyncStatus),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.TracksSyncedAt.Valid {
		t := r.TracksSyncedAt.Time
		rec.TracksSyncedAt = &t
	}
	return rec
}

// trackList is stored as a JSON text column. An empty list is stored as NULL.
type trackList []domain.Track

func (t trackList) Value() (driver.Value, error) {
	if len(t) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]domain.Track(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (t *trackList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("tracks: unsupported column type %T", src)
	}
	if len(raw) == 0 {
		*t = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]domain.Track)(t))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC().Truncate(time.Microsecond), Valid: true}
}

func (s queries) getRecord(ctx context.Context, id string) (domain.Record, error) {
	var row recordRow
	err := sqlx.GetContext(ctx, s.q, &row,
		s.q.Rebind(`SELECT `+recordColumns+` FROM records WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, domain.RecordNotFound(id)
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("query record: %w", err)
	}
	return row.toDomain(), nil
}

// DecrementStock subtracts quantity with one conditional UPDATE. When the
// update matches nothing, a follow-up read tells a missing record apart from
// one without enough stock.
func (s queries) DecrementStock(ctx context.Context, recordID string, quantity int) (domain.Record, error) {
	if quantity < 1 {
		return domain.Record{}, domain.InvalidInputf("quantity must be at least 1, got %d", quantity)
	}

	result, err := s.q.ExecContext(ctx, s.q.Rebind(`
		UPDATE records
		SET qty = qty - ?, updated_at = ?
		WHERE id = ? AND qty >= ?`),
		quantity, s.timestamp(), recordID, quantity,
	)
	if err != nil {
		return domain.Record{}, fmt.Errorf("decrement stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.Record{}, fmt.Errorf("decrement stock: %w", err)
	}
	if rows == 0 {
		var available int
		err := sqlx.GetContext(ctx, s.q, &available,
			s.q.Rebind(`SELECT qty FROM records WHERE id = ?`), recordID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Record{}, domain.RecordNotFound(recordID)
		}
		if err != nil {
			return domain.Record{}, fmt.Errorf("query stock: %w", err)
		}
		return domain.Record{}, &domain.InsufficientStockError{
			RecordID:  recordID,
			Requested: quantity,
			Available: available,
		}
	}

	return s.getRecord(ctx, recordID)
}

func (s *SQLStore) CreateRecord(ctx context.Context, record domain.Record) (domain.Record, error) {
	q := s.pool()
	now := q.timestamp()
	record.ID = uuid.NewString()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.SyncStatus == "" {
		record.SyncStatus = domain.SyncStatusUnset
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		record.ID, record.Artist, record.Album, record.Price, record.Qty,
		string(record.Format), string(record.Category), nullString(record.ExternalID),
		trackList(record.Tracks), nullTime(record.TracksSyncedAt), string(record.SyncStatus),
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return domain.Record{}, fmt.Errorf("insert record: %w", err)
	}
	return record, nil
}

func (s *SQLStore) GetRecord(ctx context.Context, id string) (domain.Record, error) {
	return s.pool().getRecord(ctx, id)
}

func (s *SQLStore) FindRecordsByIDs(ctx context.Context, ids []string) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT `+recordColumns+` FROM records WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build records query: %w", err)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}

func (s *SQLStore) UpdateRecord(ctx context.Context, id string, patch domain.RecordPatch, sync *domain.SyncState) (domain.Record, error) {
	q := s.pool()

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Artist != nil {
		set("artist", *patch.Artist)
	}
	if patch.Album != nil {
		set("album", *patch.Album)
	}
	if patch.Price != nil {
		set("price", *patch.Price)
	}
	// absolute stock set, only when asked for; qty is never written back from a read
	if patch.Qty != nil {
		set("qty", *patch.Qty)
	}
	if patch.Format != nil {
		set("format", string(*patch.Format))
	}
	if patch.Category != nil {
		set("category", string(*patch.Category))
	}
	if sync != nil {
		set("external_id", nullString(sync.ExternalID))
		set("sync_status", string(sync.Status))
		set("tracks", trackList(sync.Tracks))
		set("tracks_synced_at", nullTime(sync.SyncedAt))
	}
	set("updated_at", q.timestamp())
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE records SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return domain.Record{}, fmt.Errorf("update record: %w", err)
	}
	if err := q.requireAffected(ctx, result, "records", id); err != nil {
		return domain.Record{}, err
	}
	return q.getRecord(ctx, id)
}

func (s *SQLStore) SaveSyncState(ctx context.Context, recordID string, state domain.SyncState) error {
	q := s.pool()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE records
		SET external_id = ?, sync_status = ?, tracks = ?, tracks_synced_at = ?, updated_at = ?
		WHERE id = ?`),
		nullString(state.ExternalID), string(state.Status), trackList(state.Tracks),
		nullTime(state.SyncedAt), q.timestamp(), recordID,
	)
	if err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return q.requireAffected(ctx, result, "records", recordID)
}

func (s *SQLStore) DecrementStock(ctx context.Context, recordID string, quantity int) (domain.Record, error) {
	var record domain.Record
	err := s.WithinTx(ctx, func(tx port.StoreTx) error {
		var err error
		record, err = tx.DecrementStock(ctx, recordID, quantity)
		return err
	})
	return record, err
}

func (s *SQLStore) IncrementStock(ctx context.Context, recordID string, quantity int) (domain.Record, error) {
	if quantity < 1 {
		return domain.Record{}, domain.InvalidInputf("quantity must be at least 1, got %d", quantity)
	}

	q := s.pool()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE records SET qty = qty + ?, updated_at = ? WHERE id = ?`),
		quantity, q.timestamp(), recordID,
	)
	if err != nil {
		return domain.Record{}, fmt.Errorf("increment stock: %w", err)
	}
	if err := q.requireAffected(ctx, result, "records", recordID); err != nil {
		return domain.Record{}, err
	}
	return q.getRecord(ctx, recordID)
}

// requireAffected maps an update that touched no rows to ErrNotFound. MySQL
// reports unchanged rows as unaffected, so existence is checked before failing.
func (s queries) requireAffected(ctx context.Context, result sql.Result, table, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if rows > 0 {
		return nil
	}
	ok, err := s.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
	}
	return nil
}
