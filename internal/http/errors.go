package http

import (
	"errors"
	"net/http"

	"replenishment/internal/core"
	"replenishment/internal/drafts"
	"replenishment/internal/log"
	"replenishment/internal/services"
	"replenishment/internal/soa"
)

var badRequestErrors = []error{
	errBadRequest,
	core.ErrInvalidPeriod,
	core.ErrInvalidAmount,
	core.ErrEmptyCountry,
	core.ErrInvalidISO3,
	core.ErrNegativeScale,
	core.ErrOutOfRange,
	soa.ErrUnknownField,
	soa.ErrFieldNotEditable,
	soa.ErrRowOutOfRange,
	soa.ErrInvalidBool,
	drafts.ErrInvalidKey,
}

// errorResponse maps a service error to a response. Nothing is applied to
// the caller's working set when any of these is returned.
func errorResponse(err error) *ResponseBuilder {
	var fe *soa.FieldError
	switch {
	case errors.As(err, &fe):
		return NewResponse().
			Status(http.StatusUnprocessableEntity).
			Error(APIError{
				Code:    "validation_failed",
				Message: fe.Message,
				Field:   fe.Field.String(),
				Value:   fe.Value,
			})
	case errors.Is(err, soa.ErrConfirmationRequired):
		return ErrorResponse(http.StatusConflict, "confirmation_required", err.Error())
	case errors.Is(err, core.ErrDuplicateRecord):
		return ErrorResponse(http.StatusConflict, "duplicate_record", err.Error())
	case errors.Is(err, core.ErrPeriodNotFound),
		errors.Is(err, core.ErrRecordNotFound),
		errors.Is(err, drafts.ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, services.ErrDraftsDisabled):
		return ErrorResponse(http.StatusServiceUnavailable, "drafts_disabled", err.Error())
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return BadRequestError(err.Error())
		}
	}
	return InternalServerError("Internal error, please retry")
}

// writeError logs err when it maps to a server error and writes the response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := errorResponse(err)
	if resp.statusCode >= http.StatusInternalServerError {
		log.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, nil)
		if op == log.OpSave {
			resp.ErrorNotification("Save failed, nothing was written. Please retry.")
		}
	}
	resp.Write(w)
}
