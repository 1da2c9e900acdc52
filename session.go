// Package browserstate persists browser profile directories under a
// (user, session) key and mounts them into local working directories.
package browserstate

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/minus-twelve/browserstate/storage"
	"github.com/minus-twelve/browserstate/types"
	"go.uber.org/zap"
	"io"
	"os"
)

type Options struct {
	// UserID owns every session this BrowserState touches. Falls back to
	// Config.UserID.
	UserID string
	// Store overrides the backend that Config would select.
	Store  Store
	Config types.Config
	Logger *zap.Logger
}

// BrowserState mounts at most one session at a time. It is not safe for
// concurrent use; callers that need parallelism create one per goroutine.
type BrowserState struct {
	userID string
	store  Store
	log    *zap.Logger
	active *types.ActiveSession
}

func New(ctx context.Context, opts Options) (*BrowserState, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	userID := opts.UserID
	if userID == "" {
		userID = opts.Config.UserID
	}
	if err := storage.ValidateID("user_id", userID); err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		var err error
		if store, err = CreateStore(ctx, opts.Config, log); err != nil {
			return nil, err
		}
	}

	return &BrowserState{
		userID: userID,
		store:  store,
		log:    log.With(zap.String("user_id", userID)),
	}, nil
}

func (b *BrowserState) UserID() string {
	return b.userID
}

func (b *BrowserState) Store() Store {
	return b.store
}

// Mount downloads sessionID into a local directory and returns its path. A
// session that is already mounted is unmounted first, so mounting the same
// id twice persists and reloads it.
func (b *BrowserState) Mount(ctx context.Context, sessionID string) (string, error) {
	if err := storage.ValidateID("session_id", sessionID); err != nil {
		return "", err
	}

	if b.active != nil {
		if err := b.Unmount(ctx); err != nil {
			return "", err
		}
	}

	path, err := b.store.Download(ctx, b.userID, sessionID)
	if err != nil {
		b.log.Error("mount failed", zap.String("session_id", sessionID), zap.Error(err))
		return "", fmt.Errorf("mount session %s: %w", sessionID, err)
	}

	b.active = &types.ActiveSession{ID: sessionID, Path: path}
	b.log.Info("session mounted", zap.String("session_id", sessionID), zap.String("path", path))
	return path, nil
}

// MountNew mounts a session under a freshly generated id.
func (b *BrowserState) MountNew(ctx context.Context) (types.ActiveSession, error) {
	id := uuid.NewString()
	path, err := b.Mount(ctx, id)
	if err != nil {
		return types.ActiveSession{}, err
	}
	return types.ActiveSession{ID: id, Path: path}, nil
}

// Unmount uploads the active session and removes its working copy. The
// active session is released even when the upload fails; in that case the
// working copy is left on disk and its path is logged.
func (b *BrowserState) Unmount(ctx context.Context) error {
	if b.active == nil {
		b.log.Warn("no active session to unmount")
		return nil
	}

	active := *b.active
	b.active = nil

	if err := b.store.Upload(ctx, b.userID, active.ID, active.Path); err != nil {
		b.log.Error("unmount failed, working copy kept",
			zap.String("session_id", active.ID), zap.String("path", active.Path), zap.Error(err))
		return fmt.Errorf("unmount session %s: %w", active.ID, err)
	}

	if err := os.RemoveAll(active.Path); err != nil {
		b.log.Warn("cannot remove working copy", zap.String("path", active.Path), zap.Error(err))
	}
	b.log.Info("session unmounted", zap.String("session_id", active.ID))
	return nil
}

// ListSessions never fails: backend errors are logged and yield no sessions.
func (b *BrowserState) ListSessions(ctx context.Context) []string {
	sessions, err := b.store.ListSessions(ctx, b.userID)
	if err != nil {
		b.log.Error("listing sessions failed", zap.Error(err))
		return []string{}
	}
	return sessions
}

// DeleteSession removes a stored session. Deleting the active session
// unmounts it first; its local edits are uploaded and then deleted with it.
func (b *BrowserState) DeleteSession(ctx context.Context, sessionID string) error {
	if err := storage.ValidateID("session_id", sessionID); err != nil {
		return err
	}

	if b.active != nil && b.active.ID == sessionID {
		if err := b.Unmount(ctx); err != nil {
			return err
		}
	}

	if err := b.store.DeleteSession(ctx, b.userID, sessionID); err != nil {
		b.log.Error("delete failed", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// ActiveSession returns a copy of the mounted session, or nil.
func (b *BrowserState) ActiveSession() *types.ActiveSession {
	if b.active == nil {
		return nil
	}
	active := *b.active
	return &active
}

// Close unmounts any active session and releases the store's connections.
func (b *BrowserState) Close(ctx context.Context) error {
	var errs []error
	if b.active != nil {
		errs = append(errs, b.Unmount(ctx))
	}
	if closer, ok := b.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
