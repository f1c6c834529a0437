package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duetmatch/core"
)

func TestStoreSessionLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	session := core.NewSession("s1", "ava", "ben", now)
	require.NoError(t, store.CreateSession(ctx, session))

	// Mutating the caller's session must not leak into the store.
	session.ElapsedSeconds = 99
	got, ok := store.GetSession("s1")
	require.True(t, ok)
	assert.Zero(t, got.ElapsedSeconds)

	msg := core.NewMessage("s1", "ava", "hello", now)
	require.NoError(t, store.AppendMessage(ctx, "s1", msg))
	require.NoError(t, store.UpdateState(ctx, "s1", core.StateWrap))
	require.NoError(t, store.UpdateEnd(ctx, "s1", now.Add(3*time.Minute), 180))

	got, ok = store.GetSession("s1")
	require.True(t, ok)
	assert.Len(t, got.Messages, 1)
	assert.Equal(t, core.StateWrap, got.State)
	assert.Equal(t, 180, got.ElapsedSeconds)
	assert.Equal(t, now.Add(3*time.Minute), got.EndedAt)
}

func TestStoreResult(t *testing.T) {
	store := NewStore()
	result := core.CompatibilityResult{SessionID: "s1", CompatibilityScore: 72, RecommendMatch: true}
	require.NoError(t, store.CreateResult(context.Background(), result))

	got, ok := store.GetResult("s1")
	require.True(t, ok)
	assert.Equal(t, 72, got.CompatibilityScore)

	_, ok = store.GetResult("missing")
	assert.False(t, ok)
}

func TestProfileStore(t *testing.T) {
	store := NewProfileStore(core.SeedProfiles()...)
	ctx := context.Background()

	profile, err := store.GetProfile(ctx, "ava")
	require.NoError(t, err)
	assert.Equal(t, "ava", profile.UserID)
	assert.NotEmpty(t, profile.Embedding)

	_, err = store.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrProfileNotFound)

	store.Put(core.ProfileVector{UserID: "nobody"})
	_, err = store.GetProfile(ctx, "nobody")
	assert.NoError(t, err)
}
