package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rl1809/record-store/internal/core/domain"
)

type orderRow struct {
	ID        string    `db:"id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type orderItemRow struct {
	RecordID string          `db:"record_id"`
	Quantity int             `db:"quantity"`
	Price    decimal.Decimal `db:"price"`
}

// CreateOrder inserts the order header and its items. Item position keeps
// the caller's ordering.
func (s queries) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := s.q.ExecContext(ctx, s.q.Rebind(`
		INSERT INTO orders (id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)`),
		order.ID, string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err := s.q.ExecContext(ctx, s.q.Rebind(`
			INSERT INTO order_items (order_id, position, record_id, quantity, price)
			VALUES (?, ?, ?, ?, ?)`),
			order.ID, i, item.RecordID, item.Quantity, item.Price,
		)
		if err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	return nil
}

func (s queries) getOrder(ctx context.Context, id string) (domain.Order, error) {
	var row orderRow
	err := sqlx.GetContext(ctx, s.q, &row, s.q.Rebind(`
		SELECT id, status, created_at, updated_at FROM orders WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.OrderNotFound(id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", err)
	}

	var items []orderItemRow
	err = sqlx.SelectContext(ctx, s.q, &items, s.q.Rebind(`
		SELECT record_id, quantity, price FROM order_items
		WHERE order_id = ? ORDER BY position`), id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order items: %w", err)
	}

	order := domain.Order{
		ID:        row.ID,
		Status:    domain.OrderStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Items:     make([]domain.OrderItem, 0, len(items)),
	}
	for _, it := range items {
		order.Items = append(order.Items, domain.OrderItem{
			RecordID: it.RecordID,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}
	return order, nil
}

func (s *SQLStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.pool().getOrder(ctx, id)
}

func (s *SQLStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	q := s.pool()
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), q.timestamp(), id,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if err := q.requireAffected(ctx, result, "orders", id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, domain.OrderNotFound(id)
		}
		return domain.Order{}, err
	}
	return q.getOrder(ctx, id)
}
