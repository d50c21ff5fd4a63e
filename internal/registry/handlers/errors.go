package handlers

import (
	"context"
	"errors"
	"net/http"

	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorCodes lists the registry errors in match order.
var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{e.ErrNotFound, codes.NotFound},
	{e.ErrInvalidInput, codes.InvalidArgument},
	{e.ErrChronologyViolation, codes.InvalidArgument},
	{e.ErrYearLocked, codes.FailedPrecondition},
	{e.ErrNotMostRecent, codes.FailedPrecondition},
	{e.ErrDuplicate, codes.AlreadyExists},
	{e.ErrCounterContention, codes.Aborted},
	{e.ErrForbidden, codes.PermissionDenied},
	{e.ErrManualOverrideForbidden, codes.PermissionDenied},
	{e.ErrUnauthenticated, codes.Unauthenticated},
}

// mapServiceError maps domain or repository errors to gRPC status errors.
// The gateway turns the code into the HTTP status.
func (h *RegistryHandler) mapServiceError(err error) error {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return status.Error(m.code, err.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, "request canceled")
	}
	h.logger.Error("Internal server error", zap.Error(err))
	return status.Error(codes.Internal, "internal server error")
}

// writeError renders err through the gateway error handler.
func (h *RegistryHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	runtime.HTTPError(r.Context(), h.mux, &runtime.JSONPb{}, w, r, h.mapServiceError(err))
}
