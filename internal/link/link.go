// Package link swaps the `<prefix>/opt/<name>` symlink to point at an
// installed package's cellar destination.
package link

import (
	"os"
	"path/filepath"

	"github.com/pacbrew/pacbrew/internal/pacerr"
	"github.com/pacbrew/pacbrew/internal/unpack"
)

// Linked is one finished link: the package name, its cellar destination,
// and its version-full string.
type Linked struct {
	Name    string
	Dest    string
	Version string
}

// ProgressFunc is called once per package after its symlink is swapped,
// and a final time with index == len(items) to signal completion.
type ProgressFunc func(index int, name string)

// Exec creates or replaces `<prefix>/opt/<name>` as a relative symlink to
// each installed package's cellar destination. An existing symlink is
// replaced; an existing regular directory is left alone and reported as a
// failure rather than silently clobbered.
func Exec(prefix string, items []unpack.Installed, on ProgressFunc) ([]Linked, error) {
	optDir := filepath.Join(prefix, "opt")
	if err := os.MkdirAll(optDir, 0o755); err != nil {
		return nil, pacerr.IoFailed("mkdir", optDir, err)
	}

	results := make([]Linked, 0, len(items))
	for i, item := range items {
		linkPath := filepath.Join(optDir, item.Name)

		if fi, err := os.Lstat(linkPath); err == nil {
			if fi.Mode()&os.ModeSymlink == 0 {
				return nil, pacerr.IoFailed("link", linkPath,
					plainError("refusing to replace a regular directory at "+linkPath))
			}
		}

		rel, err := filepath.Rel(optDir, item.Dest)
		if err != nil {
			return nil, pacerr.IoFailed("relativize", item.Dest, err)
		}
		if err := swapSymlink(rel, linkPath); err != nil {
			return nil, pacerr.IoFailed("link", linkPath, err)
		}

		results = append(results, Linked{Name: item.Name, Dest: item.Dest, Version: item.Version})
		if on != nil {
			on(i, item.Name)
		}
	}
	if on != nil {
		on(len(items), "")
	}
	return results, nil
}

// swapSymlink creates target -> linkPath atomically: a temporary symlink
// is created alongside linkPath, then renamed over it so readers never
// observe a missing link.
func swapSymlink(target, linkPath string) error {
	tmp := linkPath + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

type plainError string

func (e plainError) Error() string { return string(e) }
