package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/rl1809/record-store/internal/core/domain"
	"github.com/rl1809/record-store/internal/core/service"
)

type HTTPHandler struct {
	orders  *service.OrderService
	catalog *service.CatalogService
	sync    *service.TracklistSyncService
	logger  *slog.Logger
}

func NewHTTPHandler(orders *service.OrderService, catalog *service.CatalogService, sync *service.TracklistSyncService, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{orders: orders, catalog: catalog, sync: sync, logger: logger}
}

// NewRouter builds the gin engine with tracing on every route.
func NewRouter(h *HTTPHandler, serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName))
	h.Register(r)
	return r
}

func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	records := r.Group("/records")
	records.POST("", h.CreateRecord)
	records.GET("/:id", h.GetRecord)
	records.PATCH("/:id", h.UpdateRecord)
	records.POST("/:id/restock", h.Restock)

	r.GET("/releases/search", h.SearchReleases)

	orders := r.Group("/orders")
	orders.POST("", h.CreateOrder)
	orders.GET("/:id", h.GetOrder)
	orders.PATCH("/:id", h.UpdateOrderStatus)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CreateRecord(c *gin.Context) {
	var req RecordRequest
	if !h.bind(c, &req) {
		return
	}

	rec, err := h.catalog.Create(c.Request.Context(), req.toDomain())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRecordResponse(rec))
}

func (h *HTTPHandler) GetRecord(c *gin.Context) {
	rec, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRecordResponse(rec))
}

func (h *HTTPHandler) UpdateRecord(c *gin.Context) {
	var req RecordPatchRequest
	if !h.bind(c, &req) {
		return
	}

	rec, err := h.catalog.Update(c.Request.Context(), c.Param("id"), req.toDomain())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRecordResponse(rec))
}

func (h *HTTPHandler) Restock(c *gin.Context) {
	var req RestockRequest
	if !h.bind(c, &req) {
		return
	}

	rec, err := h.catalog.Restock(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRecordResponse(rec))
}

func (h *HTTPHandler) SearchReleases(c *gin.Context) {
	matches, err := h.sync.SearchReleases(c.Request.Context(),
		domain.AdapterType(c.Query("adapter")),
		c.Query("artist"),
		c.Query("album"),
		domain.RecordFormat(c.Query("format")),
	)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]ReleaseMatchResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, ReleaseMatchResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if !h.bind(c, &req) {
		return
	}

	order, err := h.orders.Create(c.Request.Context(), req.lines())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *HTTPHandler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if !h.bind(c, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), domain.OrderStatus(req.Status))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *HTTPHandler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	code, resp := httpError(err)
	if code == http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
	}
	c.JSON(code, resp)
}
