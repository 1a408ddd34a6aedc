// Package api exposes the instance and baton HTTP APIs over chi routers.
package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/DynamicCake/dftools/auth"
	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/federation"
	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/store"
)

// InstanceHandler serves the instance API: identity, plot registration,
// API keys, and the federation handshake endpoints.
type InstanceHandler struct {
	Log       *slog.Logger
	Store     *store.Store
	Handshake *federation.Handshake

	Auth           *auth.Either
	PlotAuth       *auth.PlotAuth
	UnregisteredOK *auth.PlotAuth

	// Domain is the running instance's own domain, used when encoding
	// current-instance identities.
	Domain plot.InstanceDomain

	// SelfCheckKey is a random per-process key. Its hash lets an operator
	// confirm through the public API that they reached their own process.
	SelfCheckKey string
}

// RegisterRoutes mounts the instance API under /instance/v0.
func (h *InstanceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/instance/v0", func(r chi.Router) {
		r.Get("/ping", h.ping)
		r.Get("/vibecheck", h.vibecheck)
		r.Get("/sign", h.sign)
		r.Post("/verify", h.verify)
		r.Get("/whoami", h.whoami)
		r.Get("/plot", h.getPlot)
		r.Post("/plot", h.registerPlot)
		r.Put("/plot", h.editPlot)
		r.Post("/key", h.createKey)
		r.Delete("/key", h.deleteKeys)
	})
}

func (h *InstanceHandler) ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// vibecheck answers liveness with 204, or proves process identity when
// called with the self-check key.
func (h *InstanceHandler) vibecheck(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	presented := sha256.Sum256([]byte(key))
	actual := sha256.Sum256([]byte(h.SelfCheckKey))
	if subtle.ConstantTimeCompare(presented[:], actual[:]) != 1 {
		respondError(w, http.StatusBadRequest, errorBody{Error: "self_check_failed"})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("You are you"))
}

// sign is the peer-facing half of the handshake: sign whatever challenge
// the peer sends, proving control of this instance's key.
func (h *InstanceHandler) sign(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("tosign")
	if challenge == "" {
		respondError(w, http.StatusBadRequest, errorBody{Error: "missing_challenge", Message: "tosign query parameter is required"})
		return
	}
	sig, err := h.Handshake.SignChallenge([]byte(challenge))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	respond(w, http.StatusOK, federation.SignResponse{
		ServerKey: h.Store.CurrentInstance().Key.String(),
		Signature: sig.String(),
	})
}

// verifyResponse carries the minted server token.
type verifyResponse struct {
	Token string `json:"token"`
}

// verify runs the handshake against the caller's claimed identity and
// returns a token on success.
func (h *InstanceHandler) verify(w http.ResponseWriter, r *http.Request) {
	var claimed plot.SendInstance
	if err := json.NewDecoder(r.Body).Decode(&claimed); err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed_body", Message: err.Error()})
		return
	}
	instance, err := claimed.Parse()
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	token, err := h.Handshake.Verify(r.Context(), instance)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	respond(w, http.StatusOK, verifyResponse{Token: token})
}

func (h *InstanceHandler) whoami(w http.ResponseWriter, r *http.Request) {
	principal, err := h.Auth.Authenticate(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	respond(w, http.StatusOK, principal.Plot.PlotID)
}

// plotResponse is the public view of a plot.
type plotResponse struct {
	PlotID   plot.ID           `json:"plot_id"`
	Owner    string            `json:"owner"`
	Instance plot.SendInstance `json:"instance"`
}

func (h *InstanceHandler) getPlot(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("id")
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id < 0 {
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed_plot_id", Message: "id must be a non-negative integer"})
		return
	}
	p, err := h.Store.Get(r.Context(), plot.ID(id))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if p == nil {
		writeError(w, h.Log, store.ErrPlotNotFound)
		return
	}
	respond(w, http.StatusOK, h.plotResponse(*p))
}

func (h *InstanceHandler) plotResponse(p plot.Plot) plotResponse {
	domain := p.Instance.Domain
	if p.Instance.IsCurrent() {
		domain = h.Domain
	}
	return plotResponse{
		PlotID: p.PlotID,
		Owner:  p.Owner.String(),
		Instance: plot.SendInstance{
			Key:    p.Instance.Key.String(),
			Domain: string(domain),
		},
	}
}

// plotBody is the register/edit request body. A null instance key assigns
// the plot to this instance.
type plotBody struct {
	InstanceKey *string `json:"instance_key"`
}

func (b plotBody) key() (crypto.PublicKey, error) {
	if b.InstanceKey == nil {
		return nil, nil
	}
	return crypto.NewPublicKeyFromString(*b.InstanceKey)
}

// registerPlot creates a plot for the claiming game server. This is the
// only endpoint reachable with an unregistered plot claim: the claimed
// owner name is resolved to its account UUID before the insert.
func (h *InstanceHandler) registerPlot(w http.ResponseWriter, r *http.Request) {
	claim, err := h.UnregisteredOK.AuthenticateUnregistered(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	var body plotBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed_body", Message: err.Error()})
		return
	}
	instanceKey, err := body.key()
	if err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed_instance_key", Message: err.Error()})
		return
	}

	owner, err := h.Store.ResolveOwner(r.Context(), claim.Owner)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Store.Register(r.Context(), claim.PlotID, owner, instanceKey); err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info("plot registered", "plot", claim.PlotID, "owner", claim.Owner)
	w.WriteHeader(http.StatusOK)
}

// editPlot reassigns the authenticated plot to another known instance.
func (h *InstanceHandler) editPlot(w http.ResponseWriter, r *http.Request) {
	principal, err := h.Auth.Authenticate(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	var body plotBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed_body", Message: err.Error()})
		return
	}
	instanceKey, err := body.key()
	if err != nil {
		respondError(w, http.StatusBadRequest, errorBody{Error: "malformed_instance_key", Message: err.Error()})
		return
	}

	if err := h.Store.Edit(r.Context(), principal.Plot.PlotID, instanceKey); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// keyResponse returns the plaintext API key exactly once.
type keyResponse struct {
	Key string `json:"key"`
}

// createKey mints an API key. Restricted to plot auth: only the game
// server process itself can bootstrap keys for its plot.
func (h *InstanceHandler) createKey(w http.ResponseWriter, r *http.Request) {
	p, err := h.PlotAuth.Authenticate(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	key, err := h.Store.CreateKey(r.Context(), p.PlotID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	respond(w, http.StatusOK, keyResponse{Key: key})
}

// deleteKeys soft-disables every key of the authenticated plot.
func (h *InstanceHandler) deleteKeys(w http.ResponseWriter, r *http.Request) {
	principal, err := h.Auth.Authenticate(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Store.DisableKeys(r.Context(), principal.Plot.PlotID); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
