package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/port"
)

type OrderService struct {
	store   port.Store
	logger  *slog.Logger
	now     func() time.Time
	created metric.Int64Counter
	failed  metric.Int64Counter
}

func NewOrderService(store port.Store, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		store:   store,
		logger:  logger,
		now:     time.Now,
		created: newCounter("orders.created", "Orders committed"),
		failed:  newCounter("orders.failed", "Order creations that were rejected or rolled back"),
	}
}

// Create places an order for lines in one transaction. Every line is
// decremented in request order; any failure rolls back all of them and no
// order is stored. A failure after the first line is reported as a
// *domain.PartialFailureError wrapping the cause.
func (s *OrderService) Create(ctx context.Context, lines []domain.OrderLine) (order domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "OrderService.Create",
		trace.WithAttributes(attribute.Int("order.lines", len(lines))))
	defer func() {
		if err != nil {
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", errorKind(err))))
		}
		endSpan(span, err)
	}()

	if err := validateLines(lines); err != nil {
		return domain.Order{}, err
	}

	prices, err := s.snapshotPrices(ctx, lines)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now().UTC()
	order = domain.Order{
		ID:        uuid.NewString(),
		Status:    domain.OrderStatusPending,
		Items:     make([]domain.OrderItem, 0, len(lines)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, line := range lines {
		order.Items = append(order.Items, domain.OrderItem{
			RecordID: line.RecordID,
			Quantity: line.Quantity,
			Price:    prices[line.RecordID],
		})
	}

	err = s.store.WithinTx(ctx, func(tx port.StoreTx) error {
		for i, item := range order.Items {
			if _, err := tx.DecrementStock(ctx, item.RecordID, item.Quantity); err != nil {
				if i == 0 {
					return err
				}
				return &domain.PartialFailureError{Completed: i, Cause: err}
			}
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return &domain.PartialFailureError{Completed: len(order.Items), Cause: err}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.created.Add(ctx, 1)
	s.logger.DebugContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.Int("items", len(order.Items)),
		slog.String("value", order.Total().StringFixed(2)),
	)
	return order, nil
}

func validateLines(lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return domain.InvalidInputf("order has no items")
	}
	for i, line := range lines {
		if line.RecordID == "" {
			return domain.InvalidInputf("item %d: record id is required", i)
		}
		if line.Quantity < 1 {
			return domain.InvalidInputf("item %d: quantity must be at least 1, got %d", i, line.Quantity)
		}
	}
	return nil
}

// snapshotPrices loads every referenced record once. Missing ids fail the
// order before any stock is touched.
func (s *OrderService) snapshotPrices(ctx context.Context, lines []domain.OrderLine) (map[string]decimal.Decimal, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.RecordID]; ok {
			continue
		}
		seen[line.RecordID] = struct{}{}
		ids = append(ids, line.RecordID)
	}

	records, err := s.store.FindRecordsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(records))
	for _, r := range records {
		prices[r.ID] = r.Price
	}

	var missing []string
	for _, id := range ids {
		if _, ok := prices[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.RecordsNotFoundError{IDs: missing}
	}
	return prices, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// UpdateStatus accepts any known status from any other.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.InvalidInputf("unknown order status %q", status)
	}
	order, err := s.store.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return domain.Order{}, err
	}
	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", id),
		slog.String("status", string(status)),
	)
	return order, nil
}
