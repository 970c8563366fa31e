package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/record-store/internal/core/domain"
)

// httpError maps a service error to a status code and response body.
func httpError(err error) (int, ErrorResponse) {
	var (
		stockErr    *domain.InsufficientStockError
		partialErr  *domain.PartialFailureError
		notFoundErr *domain.RecordsNotFoundError
	)

	resp := ErrorResponse{Error: err.Error()}
	if errors.As(err, &partialErr) {
		resp.Completed = &partialErr.Completed
	}

	switch {
	case errors.As(err, &stockErr):
		resp.RecordID = stockErr.RecordID
		resp.Requested = stockErr.Requested
		resp.Available = &stockErr.Available
		return http.StatusConflict, resp
	case errors.As(err, &notFoundErr):
		resp.Missing = notFoundErr.IDs
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, resp
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownAdapter):
		return http.StatusBadRequest, resp
	case partialErr != nil:
		// the order was rolled back; the cause itself stays internal
		return http.StatusConflict, ErrorResponse{Error: "order aborted after partial progress", Completed: resp.Completed}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
}

func grpcError(err error) error {
	var (
		stockErr   *domain.InsufficientStockError
		partialErr *domain.PartialFailureError
	)
	switch {
	case errors.As(err, &stockErr):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &partialErr):
		return status.Errorf(codes.Aborted, "order aborted after %d completed items", partialErr.Completed)
	}
	return status.Error(codes.Internal, "internal error")
}
