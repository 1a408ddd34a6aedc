package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ErrOwnerNotFound is returned when the external lookup does not know the
// player name.
var ErrOwnerNotFound = errors.New("owner name not found")

// NameResolver maps a player name to its stable account UUID.
type NameResolver interface {
	Resolve(ctx context.Context, name string) (uuid.UUID, error)
}

// ResolveOwner resolves a player name to a UUID, caching the result
// indefinitely. Names rarely change hands; staleness is accepted.
func (s *Store) ResolveOwner(ctx context.Context, name string) (uuid.UUID, error) {
	cached, err := s.cache.Get(ctx, playerCacheKey(name)).Result()
	if err == nil {
		id, parseErr := uuid.Parse(cached)
		if parseErr != nil {
			return uuid.Nil, fmt.Errorf("cached uuid for %q: %w", name, parseErr)
		}
		return id, nil
	}

	id, err := s.resolver.Resolve(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.cache.Set(ctx, playerCacheKey(name), id.String(), 0).Err(); err != nil {
		return uuid.Nil, fmt.Errorf("caching uuid for %q: %w", name, err)
	}
	return id, nil
}

// MojangResolver resolves player names against the Mojang profile API.
type MojangResolver struct {
	// BaseURL defaults to the public Mojang endpoint.
	BaseURL string
	Client  *http.Client
}

const mojangBaseURL = "https://api.mojang.com/users/profiles/minecraft"

// Resolve looks up a player profile by name.
func (r *MojangResolver) Resolve(ctx context.Context, name string) (uuid.UUID, error) {
	base := r.BaseURL
	if base == "" {
		base = mojangBaseURL
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+url.PathEscape(name), nil)
	if err != nil {
		return uuid.Nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("profile lookup for %q: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return uuid.Nil, ErrOwnerNotFound
	default:
		return uuid.Nil, fmt.Errorf("profile lookup for %q: status %d", name, resp.StatusCode)
	}

	var profile struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return uuid.Nil, fmt.Errorf("decoding profile for %q: %w", name, err)
	}
	return profile.ID, nil
}
