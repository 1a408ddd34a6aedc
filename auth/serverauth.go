package auth

import (
	"net/http"

	"github.com/DynamicCake/dftools/federation"
)

// ServerAuth authenticates another instance by the signed token in the
// X-Server-Key header. Tokens come out of the federation handshake and
// expire; an expired token means redoing the handshake.
type ServerAuth struct {
	Tokens *federation.Tokens
}

// Authenticate verifies the presented token and returns the peer identity
// it was minted for.
func (a *ServerAuth) Authenticate(r *http.Request) (federation.ExternalServer, error) {
	return a.Tokens.Verify(r.Header.Get(HeaderServerKey))
}
