package archive

import (
	"fmt"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/minus-twelve/browserstate/types"
	"path/filepath"
	"strings"
)

// SafeJoin resolves an archive entry or object key beneath root. Names whose
// cleaned form leaves root are rejected with ErrSecurity; accepted names are
// resolved through securejoin so symlinks already inside root cannot redirect
// the write.
func SafeJoin(root, name string) (string, error) {
	if _, err := relative(root, name); err != nil {
		return "", err
	}
	return securejoin.SecureJoin(root, filepath.FromSlash(name))
}

func relative(root, name string) (string, error) {
	root = filepath.Clean(root)
	rel, err := filepath.Rel(root, filepath.Join(root, filepath.FromSlash(name)))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", types.ErrSecurity, name)
	}
	return rel, nil
}
