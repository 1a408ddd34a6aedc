// Package auth implements the three credential checks requests can carry:
// an API key (X-API-Key), a game-server plot claim (User-Agent plus an IP
// allow-list), and a federation server token (X-Server-Key).
//
// Every rejection maps to 401 with a stable error kind; the schemes never
// retry and never fall through to one another implicitly.
package auth

import "errors"

// Header names carrying credentials.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderUserAgent = "User-Agent"
	HeaderServerKey = "X-Server-Key"
)

// Credential errors. All surface as 401.
var (
	// ErrInvalidAPIKey is returned when no active key matches.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrIPNotAllowed is returned when the caller's IP is not on the
	// game-server allow-list.
	ErrIPNotAllowed = errors.New("ip not allowed")
	// ErrNotIPv4 is returned when the peer address is missing or not IPv4.
	ErrNotIPv4 = errors.New("peer address must be ipv4")
	// ErrPlotNotRegistered is returned by the registered variant of plot
	// auth when the claimed plot does not exist.
	ErrPlotNotRegistered = errors.New("plot not registered")
	// ErrMissingCredentials is returned by the composite scheme when the
	// request carries neither credential.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Scheme names which credential authenticated a request.
type Scheme string

const (
	// SchemeKey marks API-key authentication.
	SchemeKey Scheme = "key"
	// SchemePlot marks game-server plot authentication.
	SchemePlot Scheme = "plot"
)
