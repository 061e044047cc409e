// Package verify checks that a fetched cache file matches the catalog's
// declared checksum and size before it is trusted for unpack.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/pacbrew/pacbrew/internal/catalog"
	"github.com/pacbrew/pacbrew/internal/pacerr"
	"github.com/pacbrew/pacbrew/internal/probe"
)

// Cache is a locally-present fetched artifact.
type Cache struct {
	Name      string
	CachePkg  string
	CacheSize int64
}

// Failed is one verification failure, carrying enough to let the driver
// rename the offending file aside.
type Failed struct {
	Name   string
	Reason string
	File   string
}

// ProgressFunc reports byte-level progress while hashing one file.
type ProgressFunc func(current int64)

// ComputeFileChecksum streams path through SHA-256, reporting progress
// after every chunk. Grounded on the teacher's ComputeFileChecksum, which
// does the same streaming hash with io.Copy.
func ComputeFileChecksum(path string, on ProgressFunc) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", pacerr.IoFailed("open", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 8*1024*1024)
	var total int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
			if on != nil {
				on(total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", pacerr.IoFailed("read", path, rerr)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Item bundles the three records Verify checks together for one package:
// the catalog's declared build, the probed fetch target, and the local
// cache file.
type Item struct {
	Build catalog.PkgBuild
	URL   probe.URL
	Cache Cache
}

// Exec checks (a) name agreement, (b) size agreement, (c) file existence,
// (d) SHA-256 agreement (case-insensitive hex) for each item in order,
// returning the list of failures. It never mutates files; the caller (the
// pipeline driver) is responsible for renaming failing files aside.
func Exec(items []Item, on func(index int, current int64)) ([]Failed, error) {
	var failures []Failed

	for i, item := range items {
		var reason string
		switch {
		case item.Build.Name != item.URL.Name || item.Build.Name != item.Cache.Name:
			reason = "name not match"
		case item.Cache.CacheSize != item.URL.PkgSize:
			reason = "size not match"
		default:
			if fi, err := os.Stat(item.Cache.CachePkg); err != nil || !fi.Mode().IsRegular() {
				reason = "cache_pkg not exists"
			}
		}

		if reason == "" {
			hash, err := ComputeFileChecksum(item.Cache.CachePkg, func(cur int64) {
				if on != nil {
					on(i, cur)
				}
			})
			if err != nil {
				return nil, err
			}
			if !strings.EqualFold(hash, item.Build.SHA256) {
				reason = "hash not match"
			}
		}

		if reason != "" {
			failures = append(failures, Failed{Name: item.Build.Name, Reason: reason, File: item.Cache.CachePkg})
		}
	}

	return failures, nil
}

// BrokenPath is the `<file>.broken` rename target for a failed verification
// (the VerifyFailed recovery).
func BrokenPath(file string) string { return file + ".broken" }
