package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-helpdesk/backend/internal/store"
)

type brokenKV struct {
	loadErr error
	saveErr error
}

func (b brokenKV) Load(context.Context, string) (string, error) {
	if b.loadErr != nil {
		return "", b.loadErr
	}
	return "", store.ErrNotFound
}

func (b brokenKV) Save(context.Context, string, string) error { return b.saveErr }
func (b brokenKV) Close() error                               { return nil }

func TestGetOrCreate_PersistsAndReuses(t *testing.T) {
	kv := store.NewMemoryStore()
	ctx := context.Background()

	first, err := NewIdentity(kv, nil).GetOrCreate(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ID, "session_"))

	stored, err := kv.Load(ctx, StorageKey)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored)

	// A fresh Identity over the same storage simulates a restart.
	second, err := NewIdentity(kv, nil).GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt.UnixMilli(), second.CreatedAt.UnixMilli())
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	id := NewIdentity(store.NewMemoryStore(), nil)
	ctx := context.Background()

	a, err := id.GetOrCreate(ctx)
	require.NoError(t, err)
	b, err := id.GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.False(t, id.Degraded())
}

func TestGetOrCreate_ForeignToken(t *testing.T) {
	kv := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, kv.Save(ctx, StorageKey, "legacy-token"))

	sess, err := NewIdentity(kv, nil).GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", sess.ID)
	assert.False(t, sess.CreatedAt.IsZero())
}

func TestGetOrCreate_StorageUnavailable(t *testing.T) {
	tests := []struct {
		name string
		kv   store.KV
	}{
		{name: "read fails", kv: brokenKV{loadErr: errors.New("disk gone")}},
		{name: "write fails", kv: brokenKV{saveErr: errors.New("read-only")}},
		{name: "no storage", kv: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewIdentity(tt.kv, nil)

			sess, err := id.GetOrCreate(context.Background())
			require.ErrorIs(t, err, ErrStorageUnavailable)
			assert.NotEmpty(t, sess.ID)
			assert.True(t, id.Degraded())

			again, err := id.GetOrCreate(context.Background())
			require.ErrorIs(t, err, ErrStorageUnavailable)
			assert.Equal(t, sess.ID, again.ID)
		})
	}
}

func TestNewID_Unique(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	seen := make(map[string]bool)
	for range 1000 {
		id := NewID(now)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), createdAt(NewID(now), time.Time{}))
}
