package browserstate

import (
	"context"
	"github.com/minus-twelve/browserstate/storage"
)

// Store is the contract every session backend implements.
//
// Download returns a local directory holding the session's files. A session
// that was never uploaded is not an error: Download returns a fresh, empty
// directory. Any earlier working copy at the returned path is discarded.
//
// Upload replaces whatever is stored for the session with the contents of
// localPath.
//
// ListSessions returns the session ids of one user. Bookkeeping entries such
// as metadata keys are never included.
//
// DeleteSession removes every stored artifact of the session. Deleting a
// session that does not exist is a no-op.
type Store interface {
	Download(ctx context.Context, userID, sessionID string) (string, error)
	Upload(ctx context.Context, userID, sessionID, localPath string) error
	ListSessions(ctx context.Context, userID string) ([]string, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

var (
	_ Store = (*storage.LocalStore)(nil)
	_ Store = (*storage.RedisStore)(nil)
	_ Store = (*storage.ObjectStore)(nil)
	_ Store = (*storage.MemoryStore)(nil)
)
