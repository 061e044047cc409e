// Package pipeline sequences the install pipeline's stages — resolve,
// probe, fetch, verify, unpack, link — driving each in turn and reporting
// progress through the caller's optional trackers. No stage here knows how
// its progress is rendered; a nil tracker is the default no-op listener.
package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/pacbrew/pacbrew/internal/catalog"
	"github.com/pacbrew/pacbrew/internal/fetch"
	"github.com/pacbrew/pacbrew/internal/link"
	"github.com/pacbrew/pacbrew/internal/mirror"
	"github.com/pacbrew/pacbrew/internal/pacerr"
	"github.com/pacbrew/pacbrew/internal/pblog"
	"github.com/pacbrew/pacbrew/internal/probe"
	"github.com/pacbrew/pacbrew/internal/progress"
	"github.com/pacbrew/pacbrew/internal/resolve"
	"github.com/pacbrew/pacbrew/internal/state"
	"github.com/pacbrew/pacbrew/internal/unpack"
	"github.com/pacbrew/pacbrew/internal/verify"
)

// Options configures one pipeline run: where packages live and land, and
// the registry every network stage fetches through.
type Options struct {
	Registry *mirror.Registry
	CacheDir string
	Prefix   string
	Cellar   string
	Arch     string
	Force    bool
	// Store, when non-nil, records every successful unpack and link into
	// the installed-package ledger. A download-only run leaves it nil.
	Store *state.Store
}

// Listeners holds the optional per-stage progress trackers. Every field
// may be left nil; an absent tracker is exactly the event substrate's
// default no-op listener.
type Listeners struct {
	Resolve *progress.Tracker[progress.Event[uint64]]
	Probe   *progress.Tracker[progress.Event[uint64]]
	Fetch   *progress.Tracker[progress.DetailEvent[uint64, uint64]]
	Verify  *progress.Tracker[progress.DetailEvent[uint64, uint64]]
	Unpack  *progress.Tracker[progress.DetailEvent[uint64, uint64]]
	Link    *progress.Tracker[progress.Event[uint64]]
}

func sendEvent(t *progress.Tracker[progress.Event[uint64]], e progress.Event[uint64]) {
	if t != nil {
		t.Send(e)
	}
}

func sendDetail(t *progress.Tracker[progress.DetailEvent[uint64, uint64]], e progress.DetailEvent[uint64, uint64]) {
	if t != nil {
		t.Send(e)
	}
}

// ReadCatalog loads and parses the catalog snapshot at path
// (`<cache>/formula.json`).
func ReadCatalog(path string) ([]*catalog.Formula, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pacerr.IoFailed("open", path, err)
	}
	defer f.Close()
	return catalog.Parse(f)
}

// Update fetches the catalog API endpoint through the mirror registry and
// atomically replaces `<cache>/formula.json`.
func Update(ctx context.Context, registry *mirror.Registry, cacheDir string, l *progress.Tracker[progress.DetailEvent[uint64, uint64]]) error {
	target := filepath.Join(cacheDir, "formula.json")
	endpoints := registry.Iter(mirror.APIRequest("formula.json"))

	sendDetail(l, progress.OverallEvent[uint64, uint64](progress.InitEvent[uint64](0)))
	err := fetch.UpdateCatalog(ctx, endpoints, target, func(data []byte) error {
		formulas, err := catalog.Parse(bytes.NewReader(data))
		if err != nil {
			return err
		}
		if len(formulas) == 0 {
			return pacerr.New(pacerr.KindSerdeJSON, "fetched catalog is empty")
		}
		return nil
	})
	if err != nil {
		return err
	}
	sendDetail(l, progress.OverallEvent[uint64, uint64](progress.FinishEvent[uint64]()))
	return nil
}

// resolveStage runs D: the BFS dependency closure over the catalog.
func resolveStage(formulas []*catalog.Formula, names []string, l *progress.Tracker[progress.Event[uint64]]) (*resolve.Set, error) {
	sendEvent(l, progress.InitEvent(uint64(len(names))))
	set, err := resolve.Exec(formulas, names)
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, pacerr.New(pacerr.KindPackageNotFound, err.Error())
	}
	sendEvent(l, progress.FinishEvent[uint64]())
	return set, nil
}

// probeStage runs E: per-package build selection and fetch-size discovery.
func probeStage(ctx context.Context, opts Options, pkgs []*catalog.PackageVersion, filterCached bool, l *progress.Tracker[progress.Event[uint64]]) ([]*probe.URL, error) {
	sendEvent(l, progress.InitEvent(uint64(len(pkgs))))
	var done atomic.Uint64
	cacheDir := opts.CacheDir
	if opts.Force {
		cacheDir = ""
	}
	urls, err := probe.Exec(ctx, opts.Registry, probe.Options{
		Arch:         opts.Arch,
		CacheDir:     cacheDir,
		FilterCached: filterCached,
	}, pkgs, func(index int) {
		n := done.Add(1)
		sendEvent(l, progress.ProgressEvent(n, uint64(len(pkgs)), true))
	})
	if err != nil {
		return nil, err
	}
	sendEvent(l, progress.FinishEvent[uint64]())
	return urls, nil
}

// fetchStage runs C: the cross-mirror download of every uncached URL.
func fetchStage(ctx context.Context, opts Options, urls []*probe.URL, l *progress.Tracker[progress.DetailEvent[uint64, uint64]]) ([]verify.Cache, error) {
	cached := make([]verify.Cache, len(urls))
	for i, u := range urls {
		cachePkg := filepath.Join(opts.CacheDir, u.Build.Filename)
		if !u.Cached {
			endpoints := opts.Registry.Iter(mirror.PackageRequest(u.Name, &u.Build))
			sendDetail(l, progress.ItemEvent[uint64, uint64](i, progress.MessageEvent[uint64](u.Name)))
			err := fetch.MirrorWrapper(ctx, endpoints, cachePkg, opts.Force, func(p fetch.Progress) {
				sendDetail(l, progress.ItemEvent[uint64, uint64](i, progress.ProgressEvent(uint64(p.Current), uint64(p.Max), p.Max > 0)))
			})
			if err != nil {
				return nil, err
			}
			sendDetail(l, progress.ItemEvent[uint64, uint64](i, progress.FinishEvent[uint64]()))
		}
		fi, err := os.Stat(cachePkg)
		if err != nil {
			return nil, pacerr.IoFailed("stat", cachePkg, err)
		}
		cached[i] = verify.Cache{Name: u.Name, CachePkg: cachePkg, CacheSize: fi.Size()}
	}
	sendDetail(l, progress.OverallEvent[uint64, uint64](progress.FinishEvent[uint64]()))
	return cached, nil
}

// verifyStage runs F: checksum/size/existence verification, renaming any
// failing file aside (the VerifyFailed recovery) before reporting an error.
func verifyStage(urls []*probe.URL, cached []verify.Cache, l *progress.Tracker[progress.DetailEvent[uint64, uint64]]) error {
	items := make([]verify.Item, len(urls))
	for i, u := range urls {
		items[i] = verify.Item{Build: u.Build, URL: *u, Cache: cached[i]}
	}

	sendDetail(l, progress.OverallEvent[uint64, uint64](progress.InitEvent[uint64](uint64(len(items)))))
	failures, err := verify.Exec(items, func(index int, current int64) {
		sendDetail(l, progress.ItemEvent[uint64, uint64](index, progress.ProgressEvent(uint64(current), 0, false)))
	})
	if err != nil {
		return err
	}

	for _, f := range failures {
		pblog.Default().Warn("verify failed", "name", f.Name, "reason", f.Reason, "file", f.File)
		if err := os.Rename(f.File, verify.BrokenPath(f.File)); err != nil {
			pblog.Default().Error("failed to rename broken file aside", "file", f.File, "error", err)
		}
	}
	if len(failures) > 0 {
		first := failures[0]
		return pacerr.VerifyFailed(first.Name, first.Reason, first.File)
	}
	sendDetail(l, progress.OverallEvent[uint64, uint64](progress.FinishEvent[uint64]()))
	return nil
}

// unpackStage runs I: stage, relocate, and atomically install each cached
// bottle, recording it into the ledger when one is configured.
func unpackStage(ctx context.Context, opts Options, cached []verify.Cache, l *progress.Tracker[progress.DetailEvent[uint64, uint64]]) ([]unpack.Installed, error) {
	installed, err := unpack.Exec(unpack.Options{
		Prefix: opts.Prefix,
		Cellar: opts.Cellar,
		Force:  opts.Force,
	}, cached, func(index int, p unpack.Progress) {
		sendDetail(l, progress.ItemEvent[uint64, uint64](index, progress.ProgressEvent(uint64(p.Current), uint64(p.Max), p.Max > 0)))
	})
	if err != nil {
		return nil, err
	}
	sendDetail(l, progress.OverallEvent[uint64, uint64](progress.FinishEvent[uint64]()))

	if opts.Store != nil {
		for _, i := range installed {
			if err := opts.Store.RecordInstall(ctx, i); err != nil {
				return nil, err
			}
		}
	}
	return installed, nil
}

// linkStage runs J: swap `<prefix>/opt/<name>` to each installed package's
// cellar destination, recording the result into the ledger when one is
// configured.
func linkStage(ctx context.Context, opts Options, installed []unpack.Installed, l *progress.Tracker[progress.Event[uint64]]) ([]link.Linked, error) {
	sendEvent(l, progress.InitEvent(uint64(len(installed))))
	linked, err := link.Exec(opts.Prefix, installed, func(index int, name string) {
		sendEvent(l, progress.ProgressEvent(uint64(index), uint64(len(installed)), true))
	})
	if err != nil {
		return nil, err
	}
	sendEvent(l, progress.FinishEvent[uint64]())

	if opts.Store != nil {
		for _, lk := range linked {
			if err := opts.Store.RecordLink(ctx, lk); err != nil {
				return nil, err
			}
		}
	}
	return linked, nil
}

// Download runs resolve → probe → fetch → verify, stopping short of
// unpack and link (the `download` sub-command).
func Download(ctx context.Context, opts Options, formulas []*catalog.Formula, names []string, l *Listeners) ([]verify.Cache, error) {
	if l == nil {
		l = &Listeners{}
	}

	pblog.Default().Info("resolve", "names", names)
	resolved, err := resolveStage(formulas, names, l.Resolve)
	if err != nil {
		return nil, err
	}

	pblog.Default().Info("probe", "names", resolved.CanonicalNames)
	urls, err := probeStage(ctx, opts, resolved.Packages, false, l.Probe)
	if err != nil {
		return nil, err
	}

	pblog.Default().Info("fetch", "count", len(urls))
	cached, err := fetchStage(ctx, opts, urls, l.Fetch)
	if err != nil {
		return nil, err
	}

	pblog.Default().Info("verify", "count", len(cached))
	if err := verifyStage(urls, cached, l.Verify); err != nil {
		return nil, err
	}

	return cached, nil
}

// Install runs the full pipeline through link (the `install` sub-command).
func Install(ctx context.Context, opts Options, formulas []*catalog.Formula, names []string, l *Listeners) ([]link.Linked, error) {
	if l == nil {
		l = &Listeners{}
	}

	cached, err := Download(ctx, opts, formulas, names, l)
	if err != nil {
		return nil, err
	}

	pblog.Default().Info("unpack", "count", len(cached))
	installed, err := unpackStage(ctx, opts, cached, l.Unpack)
	if err != nil {
		return nil, err
	}
	for _, i := range installed {
		pblog.Default().Info("unpacked", "name", i.Name, "dest", i.Dest)
	}

	pblog.Default().Info("link", "count", len(installed))
	linked, err := linkStage(ctx, opts, installed, l.Link)
	if err != nil {
		return nil, err
	}
	for _, lk := range linked {
		pblog.Default().Info("linked", "name", lk.Name, "version", lk.Version)
	}

	return linked, nil
}
