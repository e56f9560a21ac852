package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
	"github.com/zhouzirui/z-helpdesk/backend/internal/store"
)

// StorageKey is the fixed key the session token is persisted under.
const StorageKey = "chat_session_id"

const idPrefix = "session_"

// ErrStorageUnavailable means the token could not be read or written. The
// Session returned alongside it is valid only for the current process.
var ErrStorageUnavailable = errors.New("session storage unavailable")

// Identity hands out the stable session of this client install.
type Identity struct {
	kv     store.KV
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	session  *chat.Session
	degraded bool
}

// NewIdentity builds an Identity over kv. A nil kv always degrades.
func NewIdentity(kv store.KV, logger *slog.Logger) *Identity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{
		kv:     kv,
		logger: logger.With("component", "session"),
		now:    time.Now,
	}
}

// GetOrCreate returns the stored session, creating and persisting one when
// absent. Every call within a process returns the same Session. When the
// storage fails, an ephemeral session is returned together with
// ErrStorageUnavailable, and later calls keep returning both.
func (i *Identity) GetOrCreate(ctx context.Context) (chat.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.session != nil {
		if i.degraded {
			return *i.session, ErrStorageUnavailable
		}
		return *i.session, nil
	}

	sess, err := i.loadOrCreate(ctx)
	if err != nil {
		i.logger.Warn("session storage unavailable, history will not survive a restart", "error", err)
		ephemeral := i.newSession()
		i.session = &ephemeral
		i.degraded = true
		return ephemeral, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	i.session = &sess
	return sess, nil
}

// Degraded reports whether the session is process-local.
func (i *Identity) Degraded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.degraded
}

func (i *Identity) loadOrCreate(ctx context.Context) (chat.Session, error) {
	if i.kv == nil {
		return chat.Session{}, errors.New("no storage configured")
	}

	token, err := i.kv.Load(ctx, StorageKey)
	switch {
	case err == nil && strings.TrimSpace(token) != "":
		return chat.Session{ID: token, CreatedAt: createdAt(token, i.now())}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return chat.Session{}, err
	}

	sess := i.newSession()
	if err := i.kv.Save(ctx, StorageKey, sess.ID); err != nil {
		return chat.Session{}, err
	}
	i.logger.Info("created session", "session_id", sess.ID)
	return sess, nil
}

func (i *Identity) newSession() chat.Session {
	now := i.now().UTC()
	return chat.Session{ID: NewID(now), CreatedAt: now}
}

// NewID formats a session token from a timestamp and a random suffix.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%s", idPrefix, now.UnixMilli(), suffix)
}

// createdAt recovers the creation time embedded in a token, or fallback for
// tokens written by other clients.
func createdAt(token string, fallback time.Time) time.Time {
	rest, ok := strings.CutPrefix(token, idPrefix)
	if !ok {
		return fallback.UTC()
	}
	millis, _, _ := strings.Cut(rest, "_")
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return fallback.UTC()
	}
	return time.UnixMilli(ms).UTC()
}
