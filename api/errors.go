package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DynamicCake/dftools/auth"
	"github.com/DynamicCake/dftools/federation"
	"github.com/DynamicCake/dftools/metrics"
	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/store"
)

// errorBody is the envelope every business error is rendered as. The error
// field is a stable machine-readable kind; clients branch on it, never on
// the message.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	// ProvenKey carries the peer's actual key on inconsistent_keys.
	ProvenKey string `json:"proven_key,omitempty"`
	// Missing lists unregistered plot ids on trust replacement.
	Missing []plot.ID `json:"missing,omitempty"`
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, body errorBody) {
	if status == http.StatusUnauthorized {
		metrics.AuthFailures.WithLabelValues(body.Error).Inc()
	}
	respond(w, status, body)
}

// writeError maps a business error to its status and kind. Anything not in
// the taxonomy is an infrastructure failure: logged and surfaced as a
// generic 500, never as a business kind.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var mismatch *federation.InconsistentKeysError

	switch {
	case errors.Is(err, auth.ErrInvalidAPIKey):
		respondError(w, http.StatusUnauthorized, errorBody{Error: "invalid_api_key", Message: "Invalid API key"})
	case errors.Is(err, plot.ErrMalformedUserAgent):
		respondError(w, http.StatusUnauthorized, errorBody{Error: "malformed_user_agent", Message: "Malformed User-Agent"})
	case errors.Is(err, auth.ErrIPNotAllowed), errors.Is(err, auth.ErrNotIPv4):
		respondError(w, http.StatusUnauthorized, errorBody{Error: "ip_not_allowed", Message: "Caller address is not an allow-listed game server. Did you mean to use X-API-Key auth?"})
	case errors.Is(err, auth.ErrPlotNotRegistered):
		respondError(w, http.StatusUnauthorized, errorBody{Error: "plot_not_registered", Message: "Plot not registered"})
	case errors.Is(err, auth.ErrMissingCredentials):
		respondError(w, http.StatusUnauthorized, errorBody{Error: "missing_credentials", Message: "Provide X-API-Key or plot credentials"})
	case errors.Is(err, federation.ErrVersionMismatch):
		respondError(w, http.StatusUnauthorized, errorBody{Error: "version_mismatch", Message: "Token predates the current protocol version; redo the handshake"})
	case errors.Is(err, federation.ErrExpired):
		respondError(w, http.StatusUnauthorized, errorBody{Error: "expired", Message: "Token expired; redo the handshake"})
	case errors.Is(err, federation.ErrCannotVerify):
		respondError(w, http.StatusUnauthorized, errorBody{Error: "cannot_verify", Message: "Cannot verify server token"})
	case errors.Is(err, store.ErrPlotTaken):
		respondError(w, http.StatusConflict, errorBody{Error: "plot_taken", Message: "Plot is already registered"})
	case errors.Is(err, store.ErrPlotNotFound):
		respondError(w, http.StatusNotFound, errorBody{Error: "plot_not_found", Message: "Plot not found"})
	case errors.Is(err, store.ErrInstanceNotFound):
		respondError(w, http.StatusBadRequest, errorBody{Error: "instance_not_found", Message: "Instance key does not name a known instance"})
	case errors.Is(err, store.ErrOwnerNotFound):
		respondError(w, http.StatusNotFound, errorBody{Error: "owner_not_found", Message: "Owner name not found"})
	case errors.Is(err, plot.ErrInvalidDomain):
		respondError(w, http.StatusBadRequest, errorBody{Error: "invalid_domain", Message: "Invalid instance domain"})
	case errors.Is(err, federation.ErrSelfReference):
		respondError(w, http.StatusBadRequest, errorBody{Error: "self_reference", Message: "An instance cannot federate with itself"})
	case errors.As(err, &mismatch):
		respondError(w, http.StatusBadRequest, errorBody{
			Error:     "inconsistent_keys",
			Message:   "The signing endpoint proved a different key than claimed",
			ProvenKey: mismatch.Proven.String(),
		})
	case errors.Is(err, federation.ErrCannotPing):
		// Network fault rather than a bad claim: retryable by the caller.
		respondError(w, http.StatusBadGateway, errorBody{Error: "cannot_ping_instance", Message: err.Error()})
	default:
		log.Error("request failed", "err", err)
		respondError(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "Internal error"})
	}
}
