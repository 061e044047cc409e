// Package archive reads the gzipped tar bottles the fetcher downloads,
// in the two-pass measure-then-unpack shape the unpack stage needs.
package archive

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"

	"github.com/pacbrew/pacbrew/internal/pacerr"
)

// Decompressor wraps a raw file reader with a decompression layer. Only
// gzip is required by the contract; xz and lzip are wired so the same
// reader can be pointed at a differently-compressed archive.
type Decompressor func(io.Reader) (io.Reader, error)

var decompressors = map[string]Decompressor{
	".gz": func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	".xz": func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) },
	".lz": func(r io.Reader) (io.Reader, error) { return lzip.NewReader(r) },
}

// decompressorFor picks a Decompressor from path's extension, defaulting to
// gzip — every bottle filename the catalog produces ends in .tar.gz.
func decompressorFor(path string) Decompressor {
	ext := strings.ToLower(filepath.Ext(path))
	if d, ok := decompressors[ext]; ok {
		return d
	}
	return decompressors[".gz"]
}

func openTar(path string) (*os.File, *tar.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, pacerr.IoFailed("open", path, err)
	}
	dr, err := decompressorFor(path)(f)
	if err != nil {
		f.Close()
		return nil, nil, pacerr.IoFailed("decompress", path, err)
	}
	return f, tar.NewReader(dr), nil
}

// Measure opens path and returns relative_path → uncompressed_byte_size for
// every non-directory entry. Cheap to repeat: each call reopens the file
// from its start, so the caller can measure and then unpack without
// worrying about reader state.
func Measure(path string) (map[string]int64, error) {
	f, tr, err := openTar(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sizes := make(map[string]int64)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pacerr.IoFailed("read tar header", path, err)
		}
		if strings.HasSuffix(hdr.Name, "/") {
			continue
		}
		sizes[cleanEntryName(hdr.Name)] = hdr.Size
	}
	return sizes, nil
}

// Entry reports one unpacked file: its path relative to destRoot and its
// uncompressed size, emitted after the file is fully written.
type Entry struct {
	RelativePath string
	Size         int64
}

// Unpack extracts path's contents under destRoot, creating directories as
// needed and preserving each entry's relative path. onEntry, if non-nil, is
// called once per file entry after it has been written; if it returns a
// non-nil error, extraction stops immediately and that error is returned.
// Every destination path is validated to stay within destRoot before any
// write.
func Unpack(path, destRoot string, onEntry func(Entry) error) error {
	f, tr, err := openTar(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return pacerr.IoFailed("read tar header", path, err)
		}

		rel := cleanEntryName(hdr.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(destRoot, rel)
		if !withinRoot(target, destRoot) {
			return pacerr.IoFailed("extract", path, errEscapesRoot(hdr.Name))
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return pacerr.IoFailed("mkdir", target, err)
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) {
				return pacerr.IoFailed("extract", path, errAbsoluteSymlink(hdr.Name))
			}
			resolved := filepath.Join(filepath.Dir(target), hdr.Linkname)
			if !withinRoot(resolved, destRoot) {
				return pacerr.IoFailed("extract", path, errEscapesRoot(hdr.Name))
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return pacerr.IoFailed("mkdir", target, err)
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return pacerr.IoFailed("symlink", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return pacerr.IoFailed("mkdir", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return pacerr.IoFailed("create", target, err)
			}
			n, err := io.Copy(out, tr)
			out.Close()
			if err != nil {
				return pacerr.IoFailed("write", target, err)
			}
			if onEntry != nil {
				if err := onEntry(Entry{RelativePath: rel, Size: n}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// cleanEntryName strips a leading "./", matching the archive's
// conventional entry-name formatting; the rest of the name is left as is.
func cleanEntryName(name string) string {
	return strings.TrimPrefix(name, "./")
}

// withinRoot reports whether target resolves to a path at or under root.
func withinRoot(target, root string) bool {
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	return absTarget == absRoot || strings.HasPrefix(absTarget, absRoot+string(os.PathSeparator))
}

type pathError string

func (e pathError) Error() string { return string(e) }

func errEscapesRoot(name string) error {
	return pathError("archive entry escapes destination directory: " + name)
}

func errAbsoluteSymlink(name string) error {
	return pathError("archive entry has absolute symlink target: " + name)
}
