package trade

import (
	"errors"

	"github.com/ftfvalues/tradecalc/game/valuation"
)

// Error codes reported to clients.
const (
	CodeCapacityExceeded   = "capacity_exceeded"
	CodeIndexOutOfRange    = "index_out_of_range"
	CodeUnknownSide        = "unknown_side"
	CodeSessionNotFound    = "session_not_found"
	CodeItemNotFound       = "item_not_found"
	CodeCatalogUnavailable = "catalog_unavailable"
	CodeInvalidModifier    = "invalid_modifier"
	CodeInvalidUnit        = "invalid_unit"
	CodeBadRequest         = "bad_request"
	CodeInternal           = "internal"
)

// ErrorCode maps an operation error to its client-facing code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrIndexOutOfRange):
		return CodeIndexOutOfRange
	case errors.Is(err, ErrUnknownSide):
		return CodeUnknownSide
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	case errors.Is(err, ErrItemNotFound):
		return CodeItemNotFound
	case errors.Is(err, ErrCatalogUnavailable):
		return CodeCatalogUnavailable
	case errors.Is(err, valuation.ErrUnknownModifier):
		return CodeInvalidModifier
	case errors.Is(err, valuation.ErrUnknownUnitMode):
		return CodeInvalidUnit
	}
	return CodeInternal
}
