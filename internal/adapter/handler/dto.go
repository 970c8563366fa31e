package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/record-store/internal/core/domain"
)

type RecordRequest struct {
	Artist     string          `json:"artist"`
	Album      string          `json:"album"`
	Price      decimal.Decimal `json:"price"`
	Qty        int             `json:"qty"`
	Format     string          `json:"format"`
	Category   string          `json:"category"`
	ExternalID string          `json:"externalId,omitempty"`
}

func (r RecordRequest) toDomain() domain.NewRecord {
	return domain.NewRecord{
		Artist:     r.Artist,
		Album:      r.Album,
		Price:      r.Price,
		Qty:        r.Qty,
		Format:     domain.RecordFormat(r.Format),
		Category:   domain.RecordCategory(r.Category),
		ExternalID: r.ExternalID,
	}
}

type RecordPatchRequest struct {
	Artist     *string          `json:"artist"`
	Album      *string          `json:"album"`
	Price      *decimal.Decimal `json:"price"`
	Qty        *int             `json:"qty"`
	Format     *string          `json:"format"`
	Category   *string          `json:"category"`
	ExternalID *string          `json:"externalId"`
}

func (r RecordPatchRequest) toDomain() domain.RecordPatch {
	p := domain.RecordPatch{
		Artist:     r.Artist,
		Album:      r.Album,
		Price:      r.Price,
		Qty:        r.Qty,
		ExternalID: r.ExternalID,
	}
	if r.Format != nil {
		f := domain.RecordFormat(*r.Format)
		p.Format = &f
	}
	if r.Category != nil {
		c := domain.RecordCategory(*r.Category)
		p.Category = &c
	}
	return p
}

type TrackResponse struct {
	Title       string `json:"title"`
	Length      int    `json:"length"`
	Position    int    `json:"position"`
	ReleaseDate string `json:"releaseDate,omitempty"`
}

type RecordResponse struct {
	ID             string          `json:"id"`
	Artist         string          `json:"artist"`
	Album          string          `json:"album"`
	Price          decimal.Decimal `json:"price"`
	Qty            int             `json:"qty"`
	Format         string          `json:"format"`
	Category       string          `json:"category"`
	ExternalID     string          `json:"externalId,omitempty"`
	SyncStatus     string          `json:"syncStatus"`
	Tracks         []TrackResponse `json:"tracks"`
	TracksSyncedAt *time.Time      `json:"tracksSyncedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func newRecordResponse(r domain.Record) RecordResponse {
	tracks := make([]TrackResponse, 0, len(r.Tracks))
	for _, t := range r.Tracks {
		tracks = append(tracks, TrackResponse(t))
	}
	return RecordResponse{
		ID:             r.ID,
		Artist:         r.Artist,
		Album:          r.Album,
		Price:          r.Price,
		Qty:            r.Qty,
		Format:         string(r.Format),
		Category:       string(r.Category),
		ExternalID:     r.ExternalID,
		SyncStatus:     string(r.SyncStatus),
		Tracks:         tracks,
		TracksSyncedAt: r.TracksSyncedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type OrderItemRequest struct {
	RecordID string `json:"recordId"`
	Quantity int    `json:"quantity"`
}

type CreateOrderRequest struct {
	Items []OrderItemRequest `json:"items"`
}

func (r CreateOrderRequest) lines() []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(r.Items))
	for _, it := range r.Items {
		lines = append(lines, domain.OrderLine{RecordID: it.RecordID, Quantity: it.Quantity})
	}
	return lines
}

type GetOrderRequest struct {
	ID string `json:"id"`
}

type UpdateOrderStatusRequest struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

type OrderItemResponse struct {
	RecordID string          `json:"recordId"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type OrderResponse struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"`
	Items     []OrderItemResponse `json:"items"`
	Total     decimal.Decimal     `json:"total"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

func newOrderResponse(o domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{RecordID: it.RecordID, Quantity: it.Quantity, Price: it.Price})
	}
	return &OrderResponse{
		ID:        o.ID,
		Status:    string(o.Status),
		Items:     items,
		Total:     o.Total(),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

type ReleaseMatchResponse struct {
	ExternalID string `json:"externalId"`
	Title      string `json:"title"`
	Score      int    `json:"score"`
	Status     string `json:"status,omitempty"`
	Country    string `json:"country,omitempty"`
	Date       string `json:"date,omitempty"`
	Format     string `json:"format"`
	TrackCount int    `json:"trackCount"`
}

// ErrorResponse carries enough detail for the caller to fix the request.
type ErrorResponse struct {
	Error     string   `json:"error"`
	RecordID  string   `json:"recordId,omitempty"`
	Requested int      `json:"requested,omitempty"`
	Available *int     `json:"available,omitempty"`
	Completed *int     `json:"completed,omitempty"`
	Missing   []string `json:"missing,omitempty"`
}
