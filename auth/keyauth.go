package auth

import (
	"fmt"
	"net/http"

	"github.com/DynamicCake/dftools/plot"
	"github.com/DynamicCake/dftools/store"
)

// KeyAuth authenticates requests by their X-API-Key header. A successful
// check yields the plot the key belongs to, with its instance resolved.
type KeyAuth struct {
	Store *store.Store
}

// Authenticate checks the bearer key against the store. Misses (including
// disabled keys) return ErrInvalidAPIKey.
func (a *KeyAuth) Authenticate(r *http.Request) (plot.Plot, error) {
	key := r.Header.Get(HeaderAPIKey)
	if key == "" {
		return plot.Plot{}, ErrInvalidAPIKey
	}
	p, err := a.Store.VerifyKey(r.Context(), key)
	if err != nil {
		return plot.Plot{}, fmt.Errorf("verifying api key: %w", err)
	}
	if p == nil {
		return plot.Plot{}, ErrInvalidAPIKey
	}
	return *p, nil
}
