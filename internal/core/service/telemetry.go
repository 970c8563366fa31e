package service

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/record-store/internal/core/domain"
)

const instrumentationName = "github.com/rl1809/record-store/internal/core/service"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)
)

func newCounter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// errorKind is a low cardinality label for metrics.
func errorKind(err error) string {
	var (
		stockErr   *domain.InsufficientStockError
		partialErr *domain.PartialFailureError
	)
	switch {
	case errors.As(err, &partialErr):
		return "partial_failure"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrUnknownAdapter):
		return "unknown_adapter"
	}
	return "internal"
}
