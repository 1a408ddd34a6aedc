package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DynamicCake/dftools/auth"
	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/store"
)

// BatonHandler serves the baton API: per-plot trust lists and the gated
// transfer relay.
type BatonHandler struct {
	Log        *slog.Logger
	Store      *store.Store
	Auth       *auth.Either
	ServerAuth *auth.ServerAuth
}

// RegisterRoutes mounts the baton API under /baton/v0.
func (h *BatonHandler) RegisterRoutes(r chi.Router) {
	r.Route("/baton/v0", func(r chi.Router) {
		r.Get("/trusted", h.getTrusted)
		r.Post("/trusted", h.setTrusted)
		r.Post("/transfer", h.transfer)
	})
}

func (h *BatonHandler) getTrusted(w http.ResponseWriter, r *http.Request) {
	principal, err := h.Auth.Authenticate(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	trusted, err := h.Store.TrustList(r.Context(), principal.Plot.PlotID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	respond(w, http.StatusOK, trusted)
}

// setTrusted replaces the caller's trust list. Every target plot must be
// registered; a single unknown target aborts the whole request with no
// partial update.
func (h *BatonHandler) setTrusted(w http.ResponseWriter, r *http.Request) {
	principal, err := h.Auth.Authenticate(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	var trusted []plot.ID
	if err := json.NewDecoder(r.Body).Decode(&trusted); err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed_body", Message: err.Error()})
		return
	}

	var missing []plot.ID
	for _, id := range trusted {
		exists, err := h.Store.Exists(r.Context(), id)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		if !exists {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		respondError(w, http.StatusBadRequest, errorBody{
			Error:   "plot_not_registered",
			Message: "Some plots are not registered on this instance; register them before trying again",
			Missing: missing,
		})
		return
	}

	if err := h.Store.ReplaceTrustList(r.Context(), principal.Plot.PlotID, trusted); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// transferRequest is the relay payload: a claimed source plot, the
// destination plot on this instance, and an opaque payload.
type transferRequest struct {
	SourcePlot plot.ID         `json:"source_plot"`
	DestPlot   plot.ID         `json:"dest_plot"`
	Payload    json.RawMessage `json:"payload"`
}

// transfer accepts a payload hand-off from another instance. Trust-list
// membership is checked first, then the caller must prove it is the
// instance that currently owns the claimed source plot; membership alone
// is never enough.
func (h *BatonHandler) transfer(w http.ResponseWriter, r *http.Request) {
	caller, err := h.ServerAuth.Authenticate(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed_body", Message: err.Error()})
		return
	}

	trusted, err := h.Store.Trusts(r.Context(), req.DestPlot, req.SourcePlot)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !trusted {
		respondError(w, http.StatusForbidden, errorBody{
			Error:   "not_trusted",
			Message: "Destination plot does not trust the source plot",
		})
		return
	}

	source, err := h.Store.Get(r.Context(), req.SourcePlot)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if source == nil {
		writeError(w, h.Log, store.ErrPlotNotFound)
		return
	}
	if !source.Instance.Key.Equal(caller.Key) {
		respondError(w, http.StatusForbidden, errorBody{
			Error:   "wrong_instance",
			Message: "Caller is not the instance that owns the source plot",
		})
		return
	}

	h.Log.Info("transfer accepted",
		"source", req.SourcePlot, "dest", req.DestPlot,
		"from", caller.Domain, "bytes", len(req.Payload))
	respond(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
