package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5/middleware"
)

// HTTPErrorResponse is the JSON shape returned for every error status.
// Clients decode into it; the server side builds gofulmen envelopes and
// serializes them through WriteEnvelope.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// HTTPErrorDetail is the body of an HTTP error response.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// StatusForKind maps an error kind to its HTTP status code.
func StatusForKind(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindCapacityExceeded:
		return http.StatusTooManyRequests
	case KindNotReady:
		return http.StatusConflict
	case KindCancelled:
		return http.StatusGone
	case KindAlreadyRunning:
		return http.StatusConflict
	case KindFailed, KindResourceExhausted, KindStaleState, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Envelope converts err into a wire error envelope carrying the kind as
// its code, the request id from the chi RequestID middleware as its
// correlation id, and any error detail lines as context.
func Envelope(r *http.Request, err error) *gferrors.ErrorEnvelope {
	kind := KindOf(err)
	envelope := gferrors.NewErrorEnvelope(string(kind), err.Error())

	if r != nil {
		if id := middleware.GetReqID(r.Context()); id != "" {
			envelope = envelope.WithCorrelationID(id)
		}
	}

	var e *Error
	if errors.As(err, &e) && len(e.Detail) > 0 {
		if enriched, cerr := envelope.WithContext(map[string]any{"log": e.Detail}); cerr == nil {
			envelope = enriched
		}
	}
	return envelope
}

// RespondWithError writes err as a JSON error envelope with the status
// derived from its kind.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	WriteEnvelope(w, StatusForKind(KindOf(err)), Envelope(r, err))
}

// WriteEnvelope serializes a gofulmen error envelope onto the wire with
// an explicit status code.
func WriteEnvelope(w http.ResponseWriter, status int, envelope *gferrors.ErrorEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      envelope.Code,
		Message:   envelope.Message,
		RequestID: envelope.CorrelationID,
		Details:   envelope.Context,
	}})
}
