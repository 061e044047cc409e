package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pacbrew/pacbrew/internal/catalog"
	"github.com/pacbrew/pacbrew/internal/mirror"
)

func TestExecCacheShortCircuit(t *testing.T) {
	dir := t.TempDir()
	build := catalog.PkgBuild{Filename: "wget-1.25.0.all.bottle.tar.gz"}
	if err := os.WriteFile(filepath.Join(dir, build.Filename), []byte("cached bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	pv := &catalog.PackageVersion{Name: "wget", Builds: []catalog.PkgBuild{build}}

	registry := mirror.New() // no mirrors needed: must short-circuit
	results, err := Exec(context.Background(), registry, Options{Arch: "all", CacheDir: dir}, []*catalog.PackageVersion{pv}, nil)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if len(results) != 1 || !results[0].Cached {
		t.Fatalf("expected cached result, got %+v", results)
	}
	if results[0].PkgSize != int64(len("cached bytes")) {
		t.Errorf("expected size from file metadata, got %d", results[0].PkgSize)
	}
}

func TestExecArchFallbackToAll(t *testing.T) {
	pv := &catalog.PackageVersion{Name: "wget", Builds: []catalog.PkgBuild{{Arch: "all", Filename: "x"}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := mirror.New(mirror.Entry{Kind: mirror.KindBottle, BaseURL: srv.URL})
	results, err := Exec(context.Background(), registry, Options{Arch: "arm64_sonoma"}, []*catalog.PackageVersion{pv}, nil)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if results[0].Build.Arch != "all" {
		t.Errorf("expected fallback to all arch, got %s", results[0].Build.Arch)
	}
}

func TestExecArchNotFound(t *testing.T) {
	pv := &catalog.PackageVersion{Name: "wget", Builds: []catalog.PkgBuild{{Arch: "x86_64_linux"}}}
	registry := mirror.New()
	_, err := Exec(context.Background(), registry, Options{Arch: "arm64_sonoma"}, []*catalog.PackageVersion{pv}, nil)
	if err == nil {
		t.Fatal("expected PackageArchNotFound error")
	}
}

func TestExecReportsProgressPerPackage(t *testing.T) {
	dir := t.TempDir()
	mkCached := func(name string) *catalog.PackageVersion {
		build := catalog.PkgBuild{Filename: name + ".bottle.tar.gz", Arch: "all"}
		os.WriteFile(filepath.Join(dir, build.Filename), []byte(name), 0o644)
		return &catalog.PackageVersion{Name: name, Builds: []catalog.PkgBuild{build}}
	}
	pkgs := []*catalog.PackageVersion{mkCached("a"), mkCached("b"), mkCached("c")}
	registry := mirror.New()

	var calls atomic.Int32
	seen := make([]bool, len(pkgs))
	var mu sync.Mutex
	_, err := Exec(context.Background(), registry, Options{Arch: "all", CacheDir: dir}, pkgs, func(index int) {
		calls.Add(1)
		mu.Lock()
		seen[index] = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if int(calls.Load()) != len(pkgs) {
		t.Fatalf("expected %d progress calls, got %d", len(pkgs), calls.Load())
	}
	for i, ok := range seen {
		if !ok {
			t.Errorf("index %d never reported progress", i)
		}
	}
}

func TestExecOrderingPreserved(t *testing.T) {
	dir := t.TempDir()
	mkCached := func(name string) *catalog.PackageVersion {
		build := catalog.PkgBuild{Filename: name + ".bottle.tar.gz", Arch: "all"}
		os.WriteFile(filepath.Join(dir, build.Filename), []byte(name), 0o644)
		return &catalog.PackageVersion{Name: name, Builds: []catalog.PkgBuild{build}}
	}
	pkgs := []*catalog.PackageVersion{mkCached("a"), mkCached("b"), mkCached("c")}
	registry := mirror.New()
	results, err := Exec(context.Background(), registry, Options{Arch: "all", CacheDir: dir}, pkgs, nil)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].Name != want {
			t.Errorf("index %d: expected %s, got %s", i, want, results[i].Name)
		}
	}
}
