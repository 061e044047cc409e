// Package probe selects a per-package bottle build for the configured
// arch and discovers its fetch size, short-circuiting already-cached
// files.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pacbrew/pacbrew/internal/catalog"
	"github.com/pacbrew/pacbrew/internal/mirror"
	"github.com/pacbrew/pacbrew/internal/pacerr"
	"golang.org/x/sync/errgroup"
)

// URL is the resolved fetch target for one package: the selected build,
// the URL to fetch (may be a local path when cached), and the content
// length in bytes.
type URL struct {
	Name    string
	PkgURL  string
	PkgSize int64
	Cached  bool
	Build   catalog.PkgBuild
}

// Options configures a probe run.
type Options struct {
	Arch string
	// CacheDir, when non-empty, is checked for `<cache>/<filename>` before
	// any network call is made.
	CacheDir string
	// FilterCached, when true, skips already-cached packages entirely
	// instead of synthesizing a local PackageUrl for them.
	FilterCached bool
}

// ProgressFunc is called once per package as its probe completes,
// regardless of outcome ordering (probes run concurrently). A nil func is
// a no-op.
type ProgressFunc func(index int)

// Exec selects a PkgBuild per input PackageVersion (arch exact match,
// falling back to "all"), then resolves its fetch URL either from the
// local cache or via a HEAD request across the mirror registry.
//
// Output ordering matches input ordering; probes run with
// bounded concurrency but write results into a pre-sized slice by index
// rather than append order. on, if non-nil, is called once per package as
// its probe finishes.
func Exec(ctx context.Context, registry *mirror.Registry, opts Options, pkgs []*catalog.PackageVersion, on ProgressFunc) ([]*URL, error) {
	// Fail fast: every package must have a selectable build before any
	// network activity starts.
	builds := make([]*catalog.PkgBuild, len(pkgs))
	for i, pv := range pkgs {
		b, available := pv.FindArch(opts.Arch)
		if b == nil {
			return nil, pacerr.PackageArchNotFound(pv.Name, opts.Arch, available)
		}
		builds[i] = b
	}

	results := make([]*URL, len(pkgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i := range pkgs {
		i := i
		g.Go(func() error {
			u, err := probeOne(gctx, registry, opts, pkgs[i].Name, builds[i])
			if err != nil {
				return err
			}
			results[i] = u
			if on != nil {
				on(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// FilterCached compacts the slice, preserving relative order.
	if opts.FilterCached {
		out := results[:0:0]
		for _, r := range results {
			if r != nil {
				out = append(out, r)
			}
		}
		return out, nil
	}
	return results, nil
}

func probeOne(ctx context.Context, registry *mirror.Registry, opts Options, name string, build *catalog.PkgBuild) (*URL, error) {
	if opts.CacheDir != "" {
		cachePath := filepath.Join(opts.CacheDir, build.Filename)
		if fi, err := os.Stat(cachePath); err == nil && fi.Mode().IsRegular() {
			if opts.FilterCached {
				return nil, nil
			}
			return &URL{Name: name, PkgURL: cachePath, PkgSize: fi.Size(), Cached: true, Build: *build}, nil
		}
	}

	endpoints := registry.Iter(mirror.PackageRequest(name, build))
	var lastErr error
	for _, ep := range endpoints {
		size, err := headContentLength(ctx, ep.Client, ep.URL)
		if err == nil {
			return &URL{Name: name, PkgURL: ep.URL, PkgSize: size, Build: *build}, nil
		}
		lastErr = err
	}
	return nil, pacerr.MirrorFailed(fmt.Sprintf("probe %s", name), lastErr)
}

func headContentLength(ctx context.Context, client *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.ContentLength, nil
}
