package plot

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMalformedUserAgent is returned when a User-Agent credential does not
// match the expected shape.
var ErrMalformedUserAgent = errors.New("malformed user agent")

const userAgentPrefix = "Hypercube/"

// ParseUserAgent extracts a plot claim from a game-server User-Agent of the
// form "Hypercube/7.2 (23612, DynamicCake)".
func ParseUserAgent(header string) (Unregistered, error) {
	if !strings.HasPrefix(header, userAgentPrefix) {
		return Unregistered{}, ErrMalformedUserAgent
	}
	_, rest, ok := strings.Cut(header, "(")
	if !ok {
		return Unregistered{}, ErrMalformedUserAgent
	}
	rawID, owner, ok := strings.Cut(rest, ", ")
	if !ok {
		return Unregistered{}, ErrMalformedUserAgent
	}
	owner, _, ok = strings.Cut(owner, ")")
	if !ok {
		return Unregistered{}, ErrMalformedUserAgent
	}
	id, err := strconv.ParseInt(rawID, 10, 32)
	if err != nil || id < 0 {
		return Unregistered{}, ErrMalformedUserAgent
	}
	return Unregistered{PlotID: ID(id), Owner: owner}, nil
}
