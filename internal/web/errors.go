package web

// errors.go renders every failure as
//
//	{"error": {"code": "...", "message": "...", "action": "..."}}
//
// Expected failures (core.Error) keep their message and map to 4xx by kind.
// Anything else is logged with the request id and replaced by the matching
// core.MapError catalogue entry.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/csvportal/internal/core"
	"github.com/JonMunkholm/csvportal/internal/logging"
)

// ErrorBody is the payload under "error".
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// statusForKind maps expected failures to HTTP status codes.
func statusForKind(k core.Kind) int {
	switch k {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindAuth:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the client-safe error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	if kind := core.KindOf(err); kind != 0 {
		status := statusForKind(kind)
		log.Info("request rejected",
			"path", r.URL.Path,
			"status", status,
			"code", kind.Code(),
			"reason", err.Error(),
		)
		writeErrorJSON(w, status, ErrorBody{Code: kind.Code(), Message: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(err, core.ErrTooManyValidations) {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "15")
	}

	msg := core.MapError(err)
	log.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)
	writeErrorJSON(w, status, ErrorBody{Code: msg.Code, Message: msg.Message, Action: msg.Action})
}

func writeErrorJSON(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: body}); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
