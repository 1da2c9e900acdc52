package storage

import (
	"context"
	"github.com/minus-twelve/browserstate/internal/archive"
	"github.com/minus-twelve/browserstate/types"
	"go.uber.org/zap"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ObjectClient is the slice of an S3/GCS style API that ObjectStore needs.
// Keys are full object names; ListObjects is recursive.
type ObjectClient interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	DeleteObject(ctx context.Context, key string) error
}

// ObjectStore keeps one object per session file at
// {prefix}/{user}/{session}/{relative path}. Empty directories are not kept.
type ObjectStore struct {
	client   ObjectClient
	prefix   string
	tempRoot string
	log      *zap.Logger
}

func NewObjectStore(client ObjectClient, cfg types.ObjectStoreConfig, log *zap.Logger) *ObjectStore {
	if log == nil {
		log = zap.NewNop()
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "" {
		prefix = DefaultPrefix
	}
	return &ObjectStore{
		client:   client,
		prefix:   prefix,
		tempRoot: tempRoot(cfg.TempDir),
		log:      log.With(zap.String("store", "object")),
	}
}

func (o *ObjectStore) userPrefix(userID string) string {
	return path.Join(o.prefix, userID) + "/"
}

func (o *ObjectStore) sessionPrefix(userID, sessionID string) string {
	return path.Join(o.prefix, userID, sessionID) + "/"
}

func (o *ObjectStore) Download(ctx context.Context, userID, sessionID string) (string, error) {
	if err := validateIDs(userID, sessionID); err != nil {
		return "", err
	}

	prefix := o.sessionPrefix(userID, sessionID)
	keys, err := o.client.ListObjects(ctx, prefix)
	if err != nil {
		return "", backendErr("list "+prefix, err)
	}

	target, err := workingCopy(o.tempRoot, userID, sessionID)
	if err != nil {
		return "", err
	}
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		if err := o.fetch(ctx, key, rel, target); err != nil {
			os.RemoveAll(target)
			return "", err
		}
	}

	o.log.Debug("downloaded session",
		zap.String("user_id", userID), zap.String("session_id", sessionID), zap.Int("objects", len(keys)))
	return target, nil
}

func (o *ObjectStore) fetch(ctx context.Context, key, rel, target string) error {
	dest, err := archive.SafeJoin(target, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return backendErr("create directory", err)
	}

	body, err := o.client.GetObject(ctx, key)
	if err != nil {
		return backendErr("get "+key, err)
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return backendErr("create "+rel, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return backendErr("get "+key, err)
	}
	return f.Close()
}

// Upload writes every regular file below localPath, then removes objects of
// the session that no longer exist locally.
func (o *ObjectStore) Upload(ctx context.Context, userID, sessionID, localPath string) error {
	if err := validateIDs(userID, sessionID); err != nil {
		return err
	}

	prefix := o.sessionPrefix(userID, sessionID)
	written := make(map[string]struct{})

	err := filepath.WalkDir(localPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localPath, p)
		if err != nil {
			return err
		}
		key := prefix + filepath.ToSlash(rel)
		if err := o.put(ctx, key, p); err != nil {
			return err
		}
		written[key] = struct{}{}
		return nil
	})
	if err != nil {
		return backendErr("upload "+prefix, err)
	}

	existing, err := o.client.ListObjects(ctx, prefix)
	if err != nil {
		return backendErr("list "+prefix, err)
	}
	for _, key := range existing {
		if _, ok := written[key]; ok {
			continue
		}
		if err := o.client.DeleteObject(ctx, key); err != nil {
			return backendErr("delete stale "+key, err)
		}
	}
	return nil
}

func (o *ObjectStore) put(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return o.client.PutObject(ctx, key, f, info.Size())
}

func (o *ObjectStore) ListSessions(ctx context.Context, userID string) ([]string, error) {
	if err := ValidateID("user_id", userID); err != nil {
		return nil, err
	}

	prefix := o.userPrefix(userID)
	keys, err := o.client.ListObjects(ctx, prefix)
	if err != nil {
		return nil, backendErr("list "+prefix, err)
	}

	seen := make(map[string]struct{})
	for _, key := range keys {
		session, _, found := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		if found && session != "" {
			seen[session] = struct{}{}
		}
	}

	sessions := make([]string, 0, len(seen))
	for id := range seen {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (o *ObjectStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if err := validateIDs(userID, sessionID); err != nil {
		return err
	}

	prefix := o.sessionPrefix(userID, sessionID)
	keys, err := o.client.ListObjects(ctx, prefix)
	if err != nil {
		return backendErr("list "+prefix, err)
	}
	for _, key := range keys {
		if err := o.client.DeleteObject(ctx, key); err != nil {
			return backendErr("delete "+key, err)
		}
	}
	return nil
}
