// Package federation establishes mutual trust between instances without a
// central authority: a challenge-response signature over the peer's /sign
// endpoint, followed by a short-lived bearer token.
//
// This is trust-on-first-verified-signature, not a PKI. The only binding
// between a domain and a key is that the domain's signing endpoint
// currently controls the matching private key, and that binding is
// re-verified on every token request.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/DynamicCake/dftools/crypto"
	"github.com/DynamicCake/dftools/metrics"
	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/store"
)

// Handshake errors.
var (
	// ErrSelfReference is returned when an instance tries to federate
	// with itself.
	ErrSelfReference = errors.New("cannot federate with own instance")
	// ErrCannotPing wraps any failure to reach or verify the peer's
	// signing endpoint: network errors, malformed responses, bad
	// signatures. Callers may retry.
	ErrCannotPing = errors.New("cannot ping instance")
)

// InconsistentKeysError reports that the peer proved control of a
// different key than it claimed. The proven key is surfaced so the caller
// can correct its claim.
type InconsistentKeysError struct {
	Proven crypto.PublicKey
}

func (e *InconsistentKeysError) Error() string {
	return fmt.Sprintf("claimed key does not match proven key %s", e.Proven)
}

const challengeMarker = "DFTOOLS VERIFY"

// challengeTimeLayout renders the challenge timestamp to millisecond
// precision.
const challengeTimeLayout = "2006-01-02 15:04:05.000"

const peerTimeout = 10 * time.Second

// SignResponse is the body of the peer signing endpoint: base64 key and
// signature over the exact challenge string.
type SignResponse struct {
	ServerKey string `json:"server_key"`
	Signature string `json:"signature"`
}

// Config assembles a Handshake.
type Config struct {
	Log    *slog.Logger
	Store  *store.Store
	Tokens *Tokens

	// Domain is the running instance's own domain.
	Domain plot.InstanceDomain
	// SigningKey signs challenges presented by peers.
	SigningKey crypto.PrivateKey

	// Client performs the outbound peer call; a default with a timeout is
	// used when nil.
	Client *http.Client
	// Insecure switches peer calls to plain HTTP for local development.
	Insecure bool
}

// Handshake performs challenge-response verification of peer instances and
// issues tokens for verified peers.
type Handshake struct {
	log        *slog.Logger
	store      *store.Store
	tokens     *Tokens
	domain     plot.InstanceDomain
	signingKey crypto.PrivateKey
	client     *http.Client
	scheme     string

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Handshake.
func New(cfg Config) *Handshake {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: peerTimeout}
	}
	scheme := "https"
	if cfg.Insecure {
		scheme = "http"
	}
	return &Handshake{
		log:        log,
		store:      cfg.Store,
		tokens:     cfg.Tokens,
		domain:     cfg.Domain,
		signingKey: cfg.SigningKey,
		client:     client,
		scheme:     scheme,
		now:        time.Now,
	}
}

// SignChallenge signs an arbitrary challenge with the instance key. This
// side of the handshake is what peers call through the /sign endpoint.
func (h *Handshake) SignChallenge(msg []byte) (crypto.Signature, error) {
	return crypto.Sign(h.signingKey, msg)
}

// Verify runs the full handshake against a claimed peer instance and, on
// success, persists the peer as a known instance and returns a token it
// can present on privileged calls.
func (h *Handshake) Verify(ctx context.Context, claimed plot.Instance) (string, error) {
	token, err := h.verify(ctx, claimed)
	if err != nil {
		metrics.HandshakeResults.WithLabelValues(outcomeLabel(err)).Inc()
		return "", err
	}
	metrics.HandshakeResults.WithLabelValues("verified").Inc()
	return token, nil
}

func (h *Handshake) verify(ctx context.Context, claimed plot.Instance) (string, error) {
	if claimed.IsCurrent() || claimed.Domain == h.domain {
		return "", ErrSelfReference
	}

	proven, err := h.pingInstance(ctx, claimed.Domain)
	if err != nil {
		return "", err
	}
	if !proven.Equal(claimed.Key) {
		h.log.Info("handshake key mismatch",
			"domain", claimed.Domain, "claimed", claimed.Key, "proven", proven)
		return "", &InconsistentKeysError{Proven: proven}
	}

	if err := h.store.RegisterInstance(ctx, claimed.Domain, claimed.Key); err != nil {
		return "", fmt.Errorf("persisting verified instance: %w", err)
	}

	return h.tokens.Mint(claimed)
}

// pingInstance asks the claimed domain's signing endpoint to sign a fresh
// challenge and returns the key that produced a valid signature.
func (h *Handshake) pingInstance(ctx context.Context, domain plot.InstanceDomain) (crypto.PublicKey, error) {
	challenge := fmt.Sprintf("%s %s", challengeMarker,
		h.now().UTC().Format(challengeTimeLayout))

	endpoint := fmt.Sprintf("%s://%s/instance/v0/sign?tosign=%s",
		h.scheme, domain, url.QueryEscape(challenge))
	h.log.Debug("pinging instance", "url", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotPing, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotPing, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: signing endpoint returned status %d", ErrCannotPing, resp.StatusCode)
	}

	var body SignResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response (is this a dftools server?): %w", ErrCannotPing, err)
	}

	key, err := crypto.NewPublicKeyFromString(body.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("%w: server key: %w", ErrCannotPing, err)
	}
	sig, err := crypto.NewSignatureFromString(body.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %w", ErrCannotPing, err)
	}
	if !sig.Verify(key, []byte(challenge)) {
		return nil, fmt.Errorf("%w: invalid signature over challenge", ErrCannotPing)
	}
	return key, nil
}

func outcomeLabel(err error) string {
	var mismatch *InconsistentKeysError
	switch {
	case errors.Is(err, ErrSelfReference):
		return "self_reference"
	case errors.As(err, &mismatch):
		return "inconsistent_keys"
	case errors.Is(err, ErrCannotPing):
		return "cannot_ping"
	default:
		return "error"
	}
}
