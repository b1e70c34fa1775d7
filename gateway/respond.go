package gateway

import (
	"context"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fleetrent/admin-gateway/access"
	"github.com/fleetrent/admin-gateway/faults"
	"github.com/fleetrent/admin-gateway/httpx"
)

// statusByKind is the single mapping from a failure kind to a transport
// status, shared by every entity type.
var statusByKind = map[faults.Kind]int{
	faults.KindPolicyNotFound:   http.StatusNotFound,
	faults.KindForbidden:        http.StatusForbidden,
	faults.KindInvalidQuery:     http.StatusBadRequest,
	faults.KindValidation:       http.StatusBadRequest,
	faults.KindNotFound:         http.StatusNotFound,
	faults.KindTimeout:          http.StatusGatewayTimeout,
	faults.KindStorageFailure:   http.StatusInternalServerError,
	faults.KindMethodNotAllowed: http.StatusMethodNotAllowed,
}

// respond writes the single success response for a request. When the inbound
// request was cancelled by its transport, the result is discarded and no
// response is written.
func (g *Gateway) respond(w http.ResponseWriter, r *http.Request, payload interface{}) {
	if r.Context().Err() != nil {
		g.logger.Debug("request cancelled, discarding result",
			zap.String("request_id", chimw.GetReqID(r.Context())))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, payload)
}

// respondDenied maps a deny decision to its transport status. A missing
// policy is a fail-closed deny surfaced as 404, hiding the resource from
// callers with no grant; a role or owner mismatch is 403; a missing instance
// is 404 with a distinct kind.
func (g *Gateway) respondDenied(w http.ResponseWriter, r *http.Request, decision *access.Decision) {
	requestID := chimw.GetReqID(r.Context())
	switch decision.Reason {
	case access.ReasonPolicyNotFound:
		g.logger.Warn("denied: no applicable policy", zap.String("request_id", requestID))
		_ = httpx.WriteFailure(w, http.StatusNotFound, string(faults.KindPolicyNotFound), "Resource not found")
	case access.ReasonNotFound:
		_ = httpx.WriteFailure(w, http.StatusNotFound, string(faults.KindNotFound), "Resource not found")
	default:
		g.logger.Warn("denied: forbidden", zap.String("request_id", requestID))
		_ = httpx.WriteFailure(w, http.StatusForbidden, string(faults.KindForbidden), "Access forbidden")
	}
}

// respondError maps an internal failure to the uniform error envelope. A
// cancelled request gets no response; an expired external call maps to
// Timeout; anything unrecognized is logged and reported as a storage
// failure.
func (g *Gateway) respondError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := chimw.GetReqID(r.Context())

	if errors.Is(r.Context().Err(), context.Canceled) {
		g.logger.Debug("request cancelled, discarding error",
			zap.String("request_id", requestID),
			zap.Error(err))
		return
	}

	if errors.Is(err, context.DeadlineExceeded) || faults.IsTimeout(err) {
		g.logger.Warn("external call timed out",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = httpx.WriteFailure(w, http.StatusGatewayTimeout, string(faults.KindTimeout), "Upstream call timed out")
		return
	}

	kind := faults.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		g.logger.Error("unexpected failure",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = httpx.WriteFailure(w, http.StatusInternalServerError, string(faults.KindStorageFailure), "An internal error occurred")
		return
	}

	if status >= http.StatusInternalServerError {
		g.logger.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		// Internal detail stays in the log.
		_ = httpx.WriteFailure(w, status, string(kind), "An internal error occurred")
		return
	}

	_ = httpx.WriteFailure(w, status, string(kind), failureMessage(err))
}

// failureMessage strips the kind prefix from a faults.Error for the response
// body.
func failureMessage(err error) string {
	var fe *faults.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
