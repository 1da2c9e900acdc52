package storage

import (
	"context"
	"errors"
	"fmt"
	"github.com/minus-twelve/browserstate/types"
	"go.uber.org/zap"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const stagingDir = ".staging"

// LocalStore keeps sessions as plain directories under {base}/{user}/{session}.
type LocalStore struct {
	basePath string
	tempRoot string
	log      *zap.Logger
}

func NewLocalStore(cfg types.LocalConfig, log *zap.Logger) (*LocalStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	base, err := expandHome(cfg.Path)
	if err != nil {
		return nil, err
	}
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, backendErr("resolve home directory", err)
		}
		base = filepath.Join(home, ".browserstate")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, backendErr("create base directory", err)
	}

	return &LocalStore{
		basePath: base,
		tempRoot: tempRoot(cfg.TempDir),
		log:      log,
	}, nil
}

func (s *LocalStore) BasePath() string {
	return s.basePath
}

// validateLocalUser reserves the staging directory name, which shares the user
// namespace under basePath.
func validateLocalUser(userID string) error {
	if userID == stagingDir {
		return fmt.Errorf("%w: user_id %q is reserved", types.ErrValidation, userID)
	}
	return nil
}

func (s *LocalStore) validate(userID, sessionID string) error {
	if err := validateIDs(userID, sessionID); err != nil {
		return err
	}
	return validateLocalUser(userID)
}

func (s *LocalStore) sessionPath(userID, sessionID string) string {
	return filepath.Join(s.basePath, userID, sessionID)
}

func (s *LocalStore) Download(ctx context.Context, userID, sessionID string) (string, error) {
	if err := s.validate(userID, sessionID); err != nil {
		return "", err
	}

	target, err := workingCopy(s.tempRoot, userID, sessionID)
	if err != nil {
		return "", err
	}

	src := s.sessionPath(userID, sessionID)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		s.log.Debug("no stored session, starting empty",
			zap.String("user_id", userID), zap.String("session_id", sessionID))
		return target, nil
	} else if err != nil {
		return "", backendErr("stat session", err)
	}

	if err := CopyTree(ctx, src, target); err != nil {
		return "", backendErr("copy session", err)
	}
	return target, nil
}

// Upload replaces the stored session with the contents of localPath. The copy
// is staged first so a failed upload leaves the previous version intact.
func (s *LocalStore) Upload(ctx context.Context, userID, sessionID, localPath string) error {
	if err := s.validate(userID, sessionID); err != nil {
		return err
	}

	staging := filepath.Join(s.basePath, stagingDir)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return backendErr("create staging directory", err)
	}
	tmp, err := os.MkdirTemp(staging, userID+"-"+sessionID+"-")
	if err != nil {
		return backendErr("create staging directory", err)
	}
	defer os.RemoveAll(tmp)

	if err := CopyTree(ctx, localPath, tmp); err != nil {
		return backendErr("stage session", err)
	}

	dest := s.sessionPath(userID, sessionID)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return backendErr("create user directory", err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return backendErr("remove previous session", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return backendErr("commit session", err)
	}
	return nil
}

func (s *LocalStore) ListSessions(_ context.Context, userID string) ([]string, error) {
	if err := ValidateID("user_id", userID); err != nil {
		return nil, err
	}
	if err := validateLocalUser(userID); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.basePath, userID))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, backendErr("list sessions", err)
	}

	sessions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			sessions = append(sessions, e.Name())
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (s *LocalStore) DeleteSession(_ context.Context, userID, sessionID string) error {
	if err := s.validate(userID, sessionID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.sessionPath(userID, sessionID)); err != nil {
		return backendErr("delete session", err)
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", backendErr("resolve home directory", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// CopyTree copies directories and regular files from src into dst. Other
// entries such as symlinks and sockets are skipped.
func CopyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case info.IsDir():
			return os.MkdirAll(target, 0o755)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
