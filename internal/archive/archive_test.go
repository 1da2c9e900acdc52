package archive

import (
	"archive/tar"
	"bytes"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/minus-twelve/browserstate/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string, dirs ...string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	for _, dir := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755))
	}
}

func readTree(t *testing.T, root string) (map[string]string, []string) {
	t.Helper()
	files := map[string]string{}
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		if d.IsDir() {
			dirs = append(dirs, filepath.ToSlash(rel))
			return nil
		}
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files, dirs
}

func TestPackUnpackRoundTrip(t *testing.T) {
	files := map[string]string{
		"Cookies":                      "cookie-jar",
		"Default/Local Storage/leveldb": "ls-data",
		"Default/Preferences":          `{"profile":{}}`,
		"empty.txt":                    "",
	}

	for _, format := range []Format{FormatTarGz, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			src := t.TempDir()
			writeTree(t, src, files, "Cache/empty")

			data, err := Pack(src, format)
			require.NoError(t, err)
			assert.Equal(t, format, Detect(data))

			dst := filepath.Join(t.TempDir(), "out")
			require.NoError(t, Unpack(data, format, dst))

			gotFiles, gotDirs := readTree(t, dst)
			assert.Equal(t, files, gotFiles)
			assert.Contains(t, gotDirs, "Cache/empty")
		})
	}
}

func TestUnpackClearsTarget(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"fresh.txt": "new"})
	data, err := Pack(src, FormatTarGz)
	require.NoError(t, err)

	dst := t.TempDir()
	writeTree(t, dst, map[string]string{"stale.txt": "old"})

	require.NoError(t, Unpack(data, FormatTarGz, dst))
	files, _ := readTree(t, dst)
	assert.Equal(t, map[string]string{"fresh.txt": "new"}, files)
}

func maliciousTarGz(t *testing.T, name string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, n := range []string{"ok.txt", name} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: n, Mode: 0o644, Size: 4, Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte("evil"))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func maliciousZip(t *testing.T, name string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte("evil"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestUnpackRejectsTraversal(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   func(*testing.T, string) []byte
	}{
		{name: "tar.gz", format: FormatTarGz, data: maliciousTarGz},
		{name: "zip", format: FormatZip, data: maliciousZip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			target := filepath.Join(base, "a", "b", "target")

			err := Unpack(tt.data(t, "../../evil.txt"), tt.format, target)
			require.ErrorIs(t, err, types.ErrSecurity)

			assert.NoFileExists(t, filepath.Join(base, "a", "evil.txt"))
			assert.NoFileExists(t, filepath.Join(base, "evil.txt"))
			assert.NoFileExists(t, filepath.Join(target, "ok.txt"))
		})
	}
}

func TestUnpackCorruptData(t *testing.T) {
	dst := t.TempDir()
	err := Unpack([]byte{0x1f, 0x8b, 0x00, 0x01}, FormatTarGz, dst)
	assert.ErrorIs(t, err, types.ErrFormat)

	err = Unpack([]byte("PK\x03\x04garbage"), FormatZip, dst)
	assert.ErrorIs(t, err, types.ErrFormat)

	err = Unpack(nil, FormatUnknown, dst)
	assert.ErrorIs(t, err, types.ErrFormat)
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	path, err := SafeJoin(root, "Default/Cookies")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Default", "Cookies"), path)

	_, err = SafeJoin(root, "a/../../escape")
	assert.ErrorIs(t, err, types.ErrSecurity)

	_, err = SafeJoin(root, "..")
	assert.ErrorIs(t, err, types.ErrSecurity)
}

func TestFileCount(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a": "1", "b/c": "2", "b/d/e": "3"}, "empty")

	count, err := FileCount(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
