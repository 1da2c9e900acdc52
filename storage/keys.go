// Package storage holds the backends a BrowserState can persist sessions to.
package storage

import (
	"fmt"
	"github.com/minus-twelve/browserstate/types"
	"os"
	"path/filepath"
	"strings"
)

// Delimiter separates the parts of key-value keys. It may not appear in a
// prefix, user id or session id.
const Delimiter = ":"

const DefaultPrefix = "browserstate"

// ValidateID rejects identifiers that are empty, contain the key delimiter or
// cannot be used as a single path segment.
func ValidateID(kind, id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: %s must not be empty", types.ErrValidation, kind)
	case strings.Contains(id, Delimiter):
		return fmt.Errorf("%w: %s %q must not contain %q", types.ErrValidation, kind, id, Delimiter)
	case strings.ContainsAny(id, `/\`), id == ".", id == "..":
		return fmt.Errorf("%w: %s %q is not a valid path segment", types.ErrValidation, kind, id)
	}
	return nil
}

func validateIDs(userID, sessionID string) error {
	if err := ValidateID("user_id", userID); err != nil {
		return err
	}
	return ValidateID("session_id", sessionID)
}

func backendErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrBackend, op, err)
}

func tempRoot(dir string) string {
	if dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "browserstate")
}

// workingCopy returns {root}/{user}/{session}, emptied and recreated.
func workingCopy(root, userID, sessionID string) (string, error) {
	path := filepath.Join(root, userID, sessionID)
	if err := os.RemoveAll(path); err != nil {
		return "", backendErr("clear working copy", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", backendErr("create working copy", err)
	}
	return path, nil
}
