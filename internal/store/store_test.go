package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Save(ctx, "chat_session_id", "session_1_abc"))
	got, err := kv.Load(ctx, "chat_session_id")
	require.NoError(t, err)
	assert.Equal(t, "session_1_abc", got)

	require.NoError(t, kv.Save(ctx, "chat_session_id", "session_2_def"))
	got, err = kv.Load(ctx, "chat_session_id")
	require.NoError(t, err)
	assert.Equal(t, "session_2_def", got)
}

func TestMemoryStore(t *testing.T) {
	kv := NewMemoryStore()
	defer kv.Close()
	exerciseKV(t, kv)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	kv := NewFileStore(path)
	exerciseKV(t, kv)

	reopened := NewFileStore(path)
	got, err := reopened.Load(context.Background(), "chat_session_id")
	require.NoError(t, err)
	assert.Equal(t, "session_2_def", got)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background(), "chat_session_id")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	kv, err := NewSQLiteStore(path)
	require.NoError(t, err)
	exerciseKV(t, kv)
	require.NoError(t, kv.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(context.Background(), "chat_session_id")
	require.NoError(t, err)
	assert.Equal(t, "session_2_def", got)
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	kv := NewRedisStore(client, defaultRedisPrefix)
	defer kv.Close()

	_, err := kv.Load(context.Background(), "chat_session_id")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		typ     Type
		opts    []Option
		wantErr error
	}{
		{name: "memory", typ: TypeMemory},
		{name: "file", typ: TypeFile, opts: []Option{WithPath(filepath.Join(dir, "s.json"))}},
		{name: "sqlite", typ: TypeSQLite, opts: []Option{WithPath(filepath.Join(dir, "s.db"))}},
		{name: "file without path", typ: TypeFile, wantErr: ErrInvalidConfig},
		{name: "redis without client", typ: TypeRedis, wantErr: ErrInvalidConfig},
		{name: "unknown", typ: Type("etcd"), wantErr: ErrInvalidStoreType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := New(tt.typ, tt.opts...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, kv.Close())
		})
	}
}
