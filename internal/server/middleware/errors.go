// Package middleware holds the HTTP middleware chain shared by all
// solverd routes: request ids, panic recovery, and request logging.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/unitable/solverd/internal/errors"
	"github.com/unitable/solverd/internal/observability"
)

// ErrorResponse is the JSON envelope written for every error status.
type ErrorResponse = apperrors.HTTPErrorResponse

// RequestID assigns each request an id, honoring an incoming
// X-Request-Id header. The id is retrievable via chi's GetReqID.
var RequestID = chimiddleware.RequestID

// Recovery converts handler panics into INTERNAL_ERROR envelopes.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			observability.Logger().Error("panic in http handler",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))

			var msg string
			if err, ok := rec.(error); ok {
				msg = "panic: " + err.Error()
			} else {
				msg = fmt.Sprintf("panic: %v", rec)
			}

			envelope := gferrors.NewErrorEnvelope(string(apperrors.KindInternal), msg)
			if id := chimiddleware.GetReqID(r.Context()); id != "" {
				envelope = envelope.WithCorrelationID(id)
			}
			writeErrorResponse(w, envelope, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is Recovery under the name older call sites use.
var ErrorHandler = Recovery

// RequestLogger logs one line per completed request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		observability.Logger().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())))
	})
}

func writeErrorResponse(w http.ResponseWriter, envelope *gferrors.ErrorEnvelope, status int) {
	apperrors.WriteEnvelope(w, status, envelope)
}
