// Package archive serializes a directory tree to a tar+gzip or zip blob and
// back, refusing entries that would land outside the extraction root.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/minus-twelve/browserstate/types"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type entry struct {
	name string
	path string
	info fs.FileInfo
}

// Pack archives the contents of dir. Entry names are slash-separated and
// relative to dir; directories are stored as "name/" so empty ones survive.
func Pack(dir string, format Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatTarGz:
		err = packTarGz(dir, &buf)
	case FormatZip:
		err = packZip(dir, &buf)
	default:
		return nil, fmt.Errorf("%w: cannot pack as %q", types.ErrFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", dir, err)
	}
	return buf.Bytes(), nil
}

// Unpack clears target and extracts data into it. Every entry name is checked
// before anything is written.
func Unpack(data []byte, format Format, target string) error {
	var names []string
	var err error

	switch format {
	case FormatTarGz:
		names, err = tarNames(data)
	case FormatZip:
		names, err = zipNames(data)
	default:
		return fmt.Errorf("%w: cannot unpack %q", types.ErrFormat, format)
	}
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := relative(target, name); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(target); err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}

	if format == FormatTarGz {
		return unpackTarGz(data, target)
	}
	return unpackZip(data, target)
}

// FileCount returns the number of regular files below dir.
func FileCount(dir string) (int, error) {
	count := 0
	err := walk(dir, func(e entry) error {
		if !e.info.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}

func walk(dir string, fn func(entry) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		name := filepath.ToSlash(rel)
		switch {
		case info.IsDir():
			name += "/"
		case !info.Mode().IsRegular():
			return nil
		}
		return fn(entry{name: name, path: path, info: info})
	})
}

func packTarGz(dir string, w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := walk(dir, func(e entry) error {
		hdr, err := tar.FileInfoHeader(e.info, "")
		if err != nil {
			return err
		}
		hdr.Name = e.name
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if e.info.IsDir() {
			return nil
		}
		return copyFrom(tw, e.path)
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func packZip(dir string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := walk(dir, func(e entry) error {
		hdr, err := zip.FileInfoHeader(e.info)
		if err != nil {
			return err
		}
		hdr.Name = e.name
		hdr.Method = zip.Deflate
		if e.info.IsDir() {
			hdr.Method = zip.Store
		}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if e.info.IsDir() {
			return nil
		}
		return copyFrom(fw, e.path)
	})
	if err != nil {
		return err
	}
	return zw.Close()
}

func copyFrom(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func tarNames(data []byte) ([]string, error) {
	var names []string
	err := eachTar(data, func(hdr *tar.Header, _ io.Reader) error {
		names = append(names, hdr.Name)
		return nil
	})
	return names, err
}

func eachTar(data []byte, fn func(*tar.Header, io.Reader) error) error {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrFormat, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrFormat, err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

func unpackTarGz(data []byte, target string) error {
	return eachTar(data, func(hdr *tar.Header, r io.Reader) error {
		switch hdr.Typeflag {
		case tar.TypeDir:
			return makeDir(target, hdr.Name)
		case tar.TypeReg:
			return writeFile(target, hdr.Name, hdr.FileInfo().Mode().Perm(), r)
		default:
			return nil
		}
	})
}

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if zr == nil {
		return nil, fmt.Errorf("%w: %w", types.ErrFormat, err)
	}
	// a reader returned alongside an error only flags suspicious names, which
	// are checked by Unpack itself
	return zr, nil
}

func zipNames(data []byte) ([]string, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func unpackZip(data []byte, target string) error {
	zr, err := openZip(data)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		mode := f.Mode()
		switch {
		case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
			err = makeDir(target, f.Name)
		case mode.IsRegular():
			err = extractZipFile(target, f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(target string, f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", types.ErrFormat, f.Name, err)
	}
	defer rc.Close()
	return writeFile(target, f.Name, f.Mode().Perm(), rc)
}

func makeDir(target, name string) error {
	dest, err := SafeJoin(target, name)
	if err != nil {
		return err
	}
	return os.MkdirAll(dest, 0o755)
}

func writeFile(target, name string, perm fs.FileMode, r io.Reader) error {
	rel, err := relative(target, name)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	dest, err := SafeJoin(target, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
