package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pacbrew/pacbrew/internal/catalog"
	"github.com/pacbrew/pacbrew/internal/config"
	"github.com/pacbrew/pacbrew/internal/mirror"
	"github.com/pacbrew/pacbrew/internal/pblog"
	"github.com/pacbrew/pacbrew/internal/pipeline"
	"github.com/pacbrew/pacbrew/internal/progress"
	"github.com/pacbrew/pacbrew/internal/state"
)

// loaded bundles the resolved configuration every sub-command starts from.
type loaded struct {
	cfg      *config.Config
	registry *mirror.Registry
}

func loadConfig() (*loaded, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	registry, err := cfg.Mirrors()
	if err != nil {
		return nil, err
	}
	return &loaded{cfg: cfg, registry: registry}, nil
}

// openStore opens the installed-package ledger at the config's db path,
// defaulting to `<prefix>/state.db` when db is unset.
func openStore(cfg *config.Config) (*state.Store, error) {
	path := cfg.Base.DB
	if path == "" {
		path = filepath.Join(cfg.Base.Prefix, "state.db")
	}
	return state.Open(path)
}

// pipelineOptions builds the pipeline.Options common to download and
// install, opening the ledger only when withStore is true (install needs
// it; a download-only run does not).
func pipelineOptions(l *loaded, force, withStore bool) (pipeline.Options, *state.Store, error) {
	opts := pipeline.Options{
		Registry: l.registry,
		CacheDir: l.cfg.Base.Cache,
		Prefix:   l.cfg.Base.Prefix,
		Cellar:   l.cfg.Base.LocalOpt,
		Arch:     l.cfg.Base.Arch,
		Force:    force,
	}
	if !withStore {
		return opts, nil, nil
	}
	store, err := openStore(l.cfg)
	if err != nil {
		return opts, nil, err
	}
	opts.Store = store
	return opts, store, nil
}

// readCatalog loads `<cache>/formula.json`, failing with a hint to run
// `pacbrew update` first if it is missing.
func readCatalog(l *loaded) ([]*catalog.Formula, error) {
	path := filepath.Join(l.cfg.Base.Cache, "formula.json")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("catalog not found at %s (run `pacbrew update` first): %w", path, err)
	}
	return pipeline.ReadCatalog(path)
}

// interactiveListeners builds the progress listeners for a terminal run: a
// single-bar renderer for the item-count stages, a multi-bar renderer for
// the byte-count stages. The returned stop func tears down every renderer
// goroutine once the pipeline run has finished. Returns (nil, no-op) when
// stdout isn't a terminal — the pipeline reports through no-op listeners.
func interactiveListeners() (*pipeline.Listeners, func()) {
	if !progress.ShouldShowProgress() {
		return nil, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())

	resolveTracker := progress.NewTracker(progress.InitEvent[uint64](0))
	probeTracker := progress.NewTracker(progress.InitEvent[uint64](0))
	linkTracker := progress.NewTracker(progress.InitEvent[uint64](0))
	fetchTracker := progress.NewTracker(progress.OverallEvent[uint64, uint64](progress.InitEvent[uint64](0)))
	verifyTracker := progress.NewTracker(progress.OverallEvent[uint64, uint64](progress.InitEvent[uint64](0)))
	unpackTracker := progress.NewTracker(progress.OverallEvent[uint64, uint64](progress.InitEvent[uint64](0)))

	resolveBar := progress.NewBarRenderer(os.Stderr)
	probeBar := progress.NewBarRenderer(os.Stderr)
	linkBar := progress.NewBarRenderer(os.Stderr)
	fetchBars := progress.NewMultiRenderer(os.Stderr, 0)
	verifyBars := progress.NewMultiRenderer(os.Stderr, 0)
	unpackBars := progress.NewMultiRenderer(os.Stderr, 0)

	go resolveBar.Run(ctx, resolveTracker.Subscribe())
	go probeBar.Run(ctx, probeTracker.Subscribe())
	go linkBar.Run(ctx, linkTracker.Subscribe())
	go fetchBars.Run(ctx, fetchTracker.Subscribe())
	go verifyBars.Run(ctx, verifyTracker.Subscribe())
	go unpackBars.Run(ctx, unpackTracker.Subscribe())

	pblog.SetActiveRenderer(suspendAll{resolveBar, probeBar, linkBar, fetchBars, verifyBars, unpackBars})

	l := &pipeline.Listeners{
		Resolve: resolveTracker,
		Probe:   probeTracker,
		Fetch:   fetchTracker,
		Verify:  verifyTracker,
		Unpack:  unpackTracker,
		Link:    linkTracker,
	}
	return l, func() {
		pblog.SetActiveRenderer(nil)
		cancel()
	}
}

// suspendAll is the active renderer registered while any sub-command is
// running interactively. Only one of the wrapped renderers is actually
// drawing at a time (the pipeline's stages run one at a time), so
// suspending every one of them for a log line is cheap and always safe —
// the idle renderers have nothing to pause.
type suspendAll []pblog.Suspendable

func (s suspendAll) Suspend(f func()) {
	if len(s) == 0 {
		f()
		return
	}
	s[0].Suspend(func() { suspendAll(s[1:]).Suspend(f) })
}
