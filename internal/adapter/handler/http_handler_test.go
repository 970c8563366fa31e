package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture) *gin.Engine {
	return NewRouter(NewHTTPHandler(f.orders, f.catalog, f.sync, discardLogger), "record-store-test")
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(newFixture(t))

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateRecord(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)

	w := doJSON(t, r, http.MethodPost, "/records", map[string]any{
		"artist":     "John Coltrane",
		"album":      "A Love Supreme",
		"price":      "31.50",
		"qty":        4,
		"format":     "Vinyl",
		"category":   "Jazz",
		"externalId": "abc",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	rec := decode[RecordResponse](t, w)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "PENDING", rec.SyncStatus)
	assert.Equal(t, "31.5", rec.Price.String())
	assert.Empty(t, rec.Tracks)
	assert.Equal(t, 1, f.queue.Len())

	w = doJSON(t, r, http.MethodGet, "/records/"+rec.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateRecord_BadRequests(t *testing.T) {
	r := newTestRouter(newFixture(t))

	w := doJSON(t, r, http.MethodPost, "/records", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/records", map[string]any{
		"artist": "X", "album": "Y", "price": 10, "qty": 1, "format": "8-track", "category": "Jazz",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[ErrorResponse](t, w).Error, "8-track")
}

func TestGetRecord_NotFound(t *testing.T) {
	r := newTestRouter(newFixture(t))

	w := doJSON(t, r, http.MethodGet, "/records/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateRecord_ExternalID(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)
	rec := f.seedRecord(t, "Kind of Blue", 3, "20")

	w := doJSON(t, r, http.MethodPatch, "/records/"+rec.ID, map[string]any{"externalId": "xyz", "qty": 9})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[RecordResponse](t, w)
	assert.Equal(t, "xyz", got.ExternalID)
	assert.Equal(t, "PENDING", got.SyncStatus)
	assert.Equal(t, 9, got.Qty)
	assert.Equal(t, 1, f.queue.Len())
}

func TestRestock(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)
	rec := f.seedRecord(t, "Kind of Blue", 3, "20")

	w := doJSON(t, r, http.MethodPost, "/records/"+rec.ID+"/restock", RestockRequest{Quantity: 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, decode[RecordResponse](t, w).Qty)

	w = doJSON(t, r, http.MethodPost, "/records/"+rec.ID+"/restock", RestockRequest{Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)
	a := f.seedRecord(t, "Kind of Blue", 5, "20")
	b := f.seedRecord(t, "Bitches Brew", 5, "12.25")

	w := doJSON(t, r, http.MethodPost, "/orders", CreateOrderRequest{Items: []OrderItemRequest{
		{RecordID: a.ID, Quantity: 2},
		{RecordID: b.ID, Quantity: 1},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decode[OrderResponse](t, w)
	assert.Equal(t, "PENDING", order.Status)
	assert.Equal(t, "52.25", order.Total.StringFixed(2))
	require.Len(t, order.Items, 2)

	w = doJSON(t, r, http.MethodGet, "/orders/"+order.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPatch, "/orders/"+order.ID, UpdateOrderStatusRequest{Status: "SHIPPING"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SHIPPING", decode[OrderResponse](t, w).Status)

	w = doJSON(t, r, http.MethodPatch, "/orders/"+order.ID, UpdateOrderStatusRequest{Status: "LOST"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)
	rec := f.seedRecord(t, "Kind of Blue", 2, "20")

	w := doJSON(t, r, http.MethodPost, "/orders", CreateOrderRequest{Items: []OrderItemRequest{{RecordID: rec.ID, Quantity: 3}}})
	require.Equal(t, http.StatusConflict, w.Code)

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, rec.ID, resp.RecordID)
	assert.Equal(t, 3, resp.Requested)
	require.NotNil(t, resp.Available)
	assert.Equal(t, 2, *resp.Available)
	assert.Nil(t, resp.Completed)
}

func TestCreateOrder_PartialFailure(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f)
	x := f.seedRecord(t, "Kind of Blue", 4, "20")
	y := f.seedRecord(t, "Sketches of Spain", 0, "20")

	w := doJSON(t, r, http.MethodPost, "/orders", CreateOrderRequest{Items: []OrderItemRequest{
		{RecordID: x.ID, Quantity: 2},
		{RecordID: y.ID, Quantity: 1},
	}})
	require.Equal(t, http.StatusConflict, w.Code)

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, y.ID, resp.RecordID)
	require.NotNil(t, resp.Completed)
	assert.Equal(t, 1, *resp.Completed)
}

func TestCreateOrder_MissingRecords(t *testing.T) {
	r := newTestRouter(newFixture(t))

	w := doJSON(t, r, http.MethodPost, "/orders", CreateOrderRequest{Items: []OrderItemRequest{{RecordID: "ghost", Quantity: 1}}})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"ghost"}, decode[ErrorResponse](t, w).Missing)
}

func TestSearchReleases(t *testing.T) {
	r := newTestRouter(newFixture(t))

	w := doJSON(t, r, http.MethodGet, "/releases/search?artist=Miles+Davis&album=Kind+of+Blue&format=Vinyl", nil)
	require.Equal(t, http.StatusOK, w.Code)

	matches := decode[[]ReleaseMatchResponse](t, w)
	require.Len(t, matches, 1)
	assert.Equal(t, "rel-1", matches[0].ExternalID)

	w = doJSON(t, r, http.MethodGet, "/releases/search?artist=Miles+Davis", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/releases/search?artist=a&album=b&adapter=discogs", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
