package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/go-chi/chi/v5/middleware"
)

const codeCompensationFailed = "compensation_failed"

// writeError maps service errors to status codes. 5xx bodies never carry
// the underlying error text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ce *common.CompensationError
		ve *common.ValidationError
		ae *common.AuthenticationError
		se *common.StorageError
	)

	switch {
	case errors.As(err, &ce):
		s.logger.Error(r.Context(), "order needs reconciliation",
			"request_id", middleware.GetReqID(r.Context()), "order_id", ce.OrderID, "error", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{
			Message: "Order was not saved and its total could not be restored",
			Code:    codeCompensationFailed,
		})
	case errors.As(err, &ve):
		writeMessage(w, http.StatusBadRequest, validationMessage(ve))
	case errors.As(err, &ae):
		writeMessage(w, http.StatusUnauthorized, authMessage(ae))
	case errors.As(err, &se):
		s.logger.Error(r.Context(), "storage error",
			"request_id", middleware.GetReqID(r.Context()), "op", se.Op, "error", se.Err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	case errors.Is(err, common.ErrorBadCredentials):
		writeMessage(w, http.StatusBadRequest, "Incorrect email or password")
	case errors.Is(err, common.ErrorAlreadyExists):
		writeMessage(w, http.StatusBadRequest, "Already exists")
	case errors.Is(err, common.ErrorNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
	default:
		s.logger.Error(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func validationMessage(ve *common.ValidationError) string {
	if ve.Field == "" {
		return ve.Message
	}
	return ve.Field + " " + ve.Message
}

func authMessage(ae *common.AuthenticationError) string {
	switch ae.Reason {
	case common.ReasonExpired:
		return "Token expired. Please login again."
	case common.ReasonStale:
		return "Refresh token is no longer valid"
	default:
		return "Invalid token."
	}
}
