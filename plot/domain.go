package plot

import (
	"errors"
	"fmt"
	"strings"
)

// InstanceDomain is a validated instance domain. The empty string refers to
// the current instance.
type InstanceDomain string

// Current refers to the running instance.
const Current InstanceDomain = ""

// ErrInvalidDomain is returned when a domain string fails validation.
var ErrInvalidDomain = errors.New("invalid instance domain")

const maxDomainLength = 253

// ParseInstanceDomain validates a domain string. Labels are limited to
// lowercase letters, digits, and hyphens, dot-separated; ports are allowed
// so local deployments can federate. The empty string parses to Current.
func ParseInstanceDomain(s string) (InstanceDomain, error) {
	if s == "" {
		return Current, nil
	}
	if len(s) > maxDomainLength {
		return Current, fmt.Errorf("%w: too long", ErrInvalidDomain)
	}
	host := s
	if idx := strings.LastIndexByte(s, ':'); idx >= 0 {
		host = s[:idx]
		port := s[idx+1:]
		if port == "" || !isDigits(port) {
			return Current, fmt.Errorf("%w: bad port in %q", ErrInvalidDomain, s)
		}
	}
	for _, label := range strings.Split(host, ".") {
		if !validLabel(label) {
			return Current, fmt.Errorf("%w: %q", ErrInvalidDomain, s)
		}
	}
	return InstanceDomain(s), nil
}

// IsCurrent reports whether the domain refers to the running instance.
func (d InstanceDomain) IsCurrent() bool {
	return d == Current
}

func validLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' {
			continue
		}
		return false
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
