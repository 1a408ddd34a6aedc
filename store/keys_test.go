package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyKeyRoundTrip(t *testing.T) {
	s, db, _, _ := newTestStore(t)
	ctx := context.Background()

	owner := uuid.New()
	require.NoError(t, db.InsertPlot(ctx, 23612, owner, nil))

	key, err := s.CreateKey(ctx, 23612)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	p, err := s.VerifyKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.EqualValues(t, 23612, p.PlotID)
	assert.Equal(t, owner, p.Owner)
	assert.True(t, p.Instance.IsCurrent())
}

func TestVerifyKeyCachesHit(t *testing.T) {
	s, db, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, db.InsertPlot(ctx, 1, uuid.New(), nil))
	key, err := s.CreateKey(ctx, 1)
	require.NoError(t, err)
	db.Queries = map[string]int{}

	for i := 0; i < 3; i++ {
		p, err := s.VerifyKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, p)
	}
	assert.Equal(t, 1, db.Queries["SelectKeyPlot"])
}

func TestVerifyKeyCachesSentinelForMisses(t *testing.T) {
	s, db, _, _ := newTestStore(t)
	ctx := context.Background()

	p, err := s.VerifyKey(ctx, "definitely-not-a-key")
	require.NoError(t, err)
	assert.Nil(t, p)

	// The repeated probe is answered by the sentinel entry without a
	// second relational query.
	p, err = s.VerifyKey(ctx, "definitely-not-a-key")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 1, db.Queries["SelectKeyPlot"])
}

func TestDisableKeysStopsAuthenticating(t *testing.T) {
	s, db, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, db.InsertPlot(ctx, 1, uuid.New(), nil))
	first, err := s.CreateKey(ctx, 1)
	require.NoError(t, err)
	second, err := s.CreateKey(ctx, 1)
	require.NoError(t, err)

	// Warm the cache for the first key.
	p, err := s.VerifyKey(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, p)

	require.NoError(t, s.DisableKeys(ctx, 1))

	// Both keys are rejected, including the one that was cached.
	p, err = s.VerifyKey(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, p)
	p, err = s.VerifyKey(ctx, second)
	require.NoError(t, err)
	assert.Nil(t, p)
}
