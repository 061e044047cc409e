// Package unpack stages each fetched bottle, relocates its files, and
// atomically moves the result into the cellar.
package unpack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pacbrew/pacbrew/internal/archive"
	"github.com/pacbrew/pacbrew/internal/pacerr"
	"github.com/pacbrew/pacbrew/internal/relocate"
	"github.com/pacbrew/pacbrew/internal/verify"
)

// Installed is one finished install: the package name, its final versioned
// cellar path, its version-full string, and the relocation kind recorded
// for every file that was touched.
type Installed struct {
	Name    string
	Dest    string
	Version string
	Files   map[string]relocate.Kind
}

// Options configures one unpack run.
type Options struct {
	Prefix string
	Cellar string
	Force  bool
}

// Progress reports byte-level progress for one package's unpack; no
// separate file-count signal is reported.
type Progress struct {
	Max     int64
	Current int64
}

// ProgressFunc is called as a package's unpack advances.
type ProgressFunc func(index int, p Progress)

// Exec unpacks, relocates, and installs each cache entry in order. Steps
// per package run sequentially — link-editor and signer invocations
// serialize on the file being relocated, so there is nothing to gain from
// overlapping packages.
func Exec(opts Options, items []verify.Cache, on ProgressFunc) ([]Installed, error) {
	pattern := relocate.NewPattern(opts.Prefix, opts.Cellar)

	results := make([]Installed, 0, len(items))
	for i, item := range items {
		installed, err := one(opts, pattern, item, func(p Progress) {
			if on != nil {
				on(i, p)
			}
		})
		if err != nil {
			return nil, err
		}
		results = append(results, installed)
	}
	return results, nil
}

func one(opts Options, pattern *relocate.Pattern, item verify.Cache, on func(Progress)) (Installed, error) {
	staging := filepath.Join(opts.Cellar, item.Name, "tmp")
	if err := os.RemoveAll(staging); err != nil {
		return Installed{}, pacerr.IoFailed("clear staging", staging, err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return Installed{}, pacerr.IoFailed("create staging", staging, err)
	}
	defer os.RemoveAll(staging)

	sizes, err := archive.Measure(item.CachePkg)
	if err != nil {
		return Installed{}, err
	}
	var total int64
	for _, s := range sizes {
		total += s
	}
	on(Progress{Max: total})

	files := make(map[string]relocate.Kind)
	var current int64
	err = archive.Unpack(item.CachePkg, staging, func(e archive.Entry) error {
		current += e.Size
		on(Progress{Max: total, Current: current})

		kind, rerr := relocate.File(filepath.Join(staging, e.RelativePath), pattern)
		if rerr != nil {
			return rerr
		}
		if kind != relocate.KindNone {
			files[e.RelativePath] = kind
		}
		return nil
	})
	if err != nil {
		return Installed{}, err
	}

	versionDir, err := soleChild(filepath.Join(staging, item.Name))
	if err != nil {
		return Installed{}, err
	}
	versionFull := filepath.Base(versionDir)

	dest := filepath.Join(opts.Cellar, item.Name, versionFull)
	if opts.Force {
		if err := os.RemoveAll(dest); err != nil {
			return Installed{}, pacerr.IoFailed("force-remove", dest, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Installed{}, pacerr.IoFailed("mkdir", filepath.Dir(dest), err)
	}
	if err := os.Rename(versionDir, dest); err != nil {
		return Installed{}, pacerr.IoFailed("install", dest, err)
	}

	return Installed{Name: item.Name, Dest: dest, Version: versionFull, Files: files}, nil
}

// soleChild returns the single child entry of dir, failing if dir has zero
// or more than one child — the staged bottle's top level must contain
// exactly one version directory.
func soleChild(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", pacerr.IoFailed("read staging tree", dir, err)
	}
	if len(entries) != 1 {
		return "", pacerr.New(pacerr.KindIOFailed,
			fmt.Sprintf("malformed bottle: expected exactly one version directory under %s, found %d", dir, len(entries)))
	}
	return filepath.Join(dir, entries[0].Name()), nil
}
