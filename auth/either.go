package auth

import (
	"net/http"

	"github.com/DynamicCake/dftools/plot"
)

// Principal is the result of the composite check: the resolved plot plus
// which scheme vouched for it.
type Principal struct {
	Plot   plot.Plot
	Scheme Scheme
}

// Either accepts either API-key or plot-header authentication, resolved
// once per request. The presence of the X-API-Key header decides which
// scheme runs; the schemes never cascade on failure.
type Either struct {
	Key  *KeyAuth
	Plot *PlotAuth
}

// Authenticate resolves a principal from whichever credential the request
// carries.
func (e *Either) Authenticate(r *http.Request) (Principal, error) {
	if r.Header.Get(HeaderAPIKey) != "" {
		p, err := e.Key.Authenticate(r)
		if err != nil {
			return Principal{}, err
		}
		return Principal{Plot: p, Scheme: SchemeKey}, nil
	}
	if r.Header.Get(HeaderUserAgent) != "" {
		p, err := e.Plot.Authenticate(r)
		if err != nil {
			return Principal{}, err
		}
		return Principal{Plot: p, Scheme: SchemePlot}, nil
	}
	return Principal{}, ErrMissingCredentials
}
