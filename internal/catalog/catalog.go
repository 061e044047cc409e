// Package catalog parses the upstream Homebrew formula catalog into the
// typed projection the rest of the pipeline consumes. It never round-trips
// unknown fields back out — only the fields enumerated below are kept.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pacbrew/pacbrew/internal/pacerr"
)

// Formula is one catalog entry as read from formula.json. Unknown JSON
// fields are silently ignored by encoding/json's default decode behavior;
// only the fields this package cares about are declared.
type Formula struct {
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Aliases     []string `json:"aliases"`
	OldName     string   `json:"oldname"`
	OldNames    []string `json:"oldnames"`
	Description string   `json:"desc"`
	Versions    struct {
		Stable string `json:"stable"`
	} `json:"versions"`
	Revision     int      `json:"revision"`
	Dependencies []string `json:"dependencies"`
	Bottle       struct {
		Stable struct {
			Rebuild int                    `json:"rebuild"`
			Files   map[string]BottleFile `json:"files"`
		} `json:"stable"`
	} `json:"bottle"`
}

// BottleFile is one arch's entry in a formula's bottle.stable.files map.
type BottleFile struct {
	Cellar string `json:"cellar"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// VersionFull is the `version` or `version_revision` string that determines
// directory names and filenames.
func (f *Formula) VersionFull() string {
	if f.Revision == 0 {
		return f.Versions.Stable
	}
	return fmt.Sprintf("%s_%d", f.Versions.Stable, f.Revision)
}

// Parse decodes a JSON array of formula entries. Two formulae sharing a
// `name` (or sharing a `full_name`) is a catalog-corruption error.
func Parse(r io.Reader) ([]*Formula, error) {
	var formulas []*Formula
	dec := json.NewDecoder(r)
	if err := dec.Decode(&formulas); err != nil {
		return nil, pacerr.Wrap(pacerr.KindSerdeJSON, err, "failed to parse catalog")
	}

	byName := make(map[string]*Formula, len(formulas))
	byFullName := make(map[string]*Formula, len(formulas))
	for _, f := range formulas {
		if _, dup := byName[f.Name]; dup {
			return nil, pacerr.New(pacerr.KindSerdeJSON, fmt.Sprintf("duplicate formula name %q", f.Name))
		}
		byName[f.Name] = f
		if _, dup := byFullName[f.FullName]; dup {
			return nil, pacerr.New(pacerr.KindSerdeJSON, fmt.Sprintf("duplicate formula full_name %q", f.FullName))
		}
		byFullName[f.FullName] = f
	}
	return formulas, nil
}

// PkgBuild is one (name, arch, rebuild, filename, url, sha256) tuple, the
// key used for fetch, verify, and cache lookup.
type PkgBuild struct {
	Name     string
	Arch     string
	Rebuild  int
	Filename string
	URL      string
	SHA256   string
}

// PackageVersion is the resolver's normalized projection of a Formula.
type PackageVersion struct {
	Name         string
	Version      string
	Revision     int
	Dependencies []string
	Builds       []PkgBuild
}

// Filename is the canonical bottle archive name for the given coordinates,
// pure: the same input always yields the same string, and both
// Probe's cache-hit path and Bottle-kind URL construction must call this
// exact function rather than reimplementing the format.
func Filename(name, versionFull, arch string, rebuild int) string {
	s := fmt.Sprintf("%s-%s.%s.bottle", name, versionFull, arch)
	if rebuild != 0 {
		s = fmt.Sprintf("%s.%d", s, rebuild)
	}
	return s + ".tar.gz"
}

// Project builds the PackageVersion normalized form of a Formula: name is
// the formula's full_name, and each PkgBuild's filename is derived
// deterministically from (name, version-full, arch, rebuild). The bottle
// URL is copied as-is (the *origin* URL); mirror URLs replace it at fetch
// time (see internal/mirror).
func (f *Formula) Project() *PackageVersion {
	versionFull := f.VersionFull()
	rebuild := f.Bottle.Stable.Rebuild

	builds := make([]PkgBuild, 0, len(f.Bottle.Stable.Files))
	for arch, file := range f.Bottle.Stable.Files {
		builds = append(builds, PkgBuild{
			Name:     f.FullName,
			Arch:     arch,
			Rebuild:  rebuild,
			Filename: Filename(f.FullName, versionFull, arch, rebuild),
			URL:      file.URL,
			SHA256:   file.SHA256,
		})
	}

	return &PackageVersion{
		Name:         f.FullName,
		Version:      f.Versions.Stable,
		Revision:     f.Revision,
		Dependencies: f.Dependencies,
		Builds:       builds,
	}
}

// VersionFull mirrors Formula.VersionFull for the resolver's projected form.
func (pv *PackageVersion) VersionFull() string {
	if pv.Revision == 0 {
		return pv.Version
	}
	return fmt.Sprintf("%s_%d", pv.Version, pv.Revision)
}

// FindArch selects a PkgBuild by exact arch match, falling back to the
// symbolic "all" arch. Returns the available arch list
// alongside a not-found error so callers can attach it to PackageArchNotFound.
func (pv *PackageVersion) FindArch(arch string) (*PkgBuild, []string) {
	available := make([]string, 0, len(pv.Builds))
	var fallback *PkgBuild
	for i := range pv.Builds {
		b := &pv.Builds[i]
		available = append(available, b.Arch)
		if b.Arch == arch {
			return b, available
		}
		if b.Arch == "all" {
			fallback = b
		}
	}
	return fallback, available
}
