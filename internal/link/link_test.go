package link

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pacbrew/pacbrew/internal/unpack"
)

func TestExecCreatesRelativeSymlink(t *testing.T) {
	prefix := t.TempDir()
	dest := filepath.Join(prefix, "Cellar", "wget", "1.25.0")
	os.MkdirAll(dest, 0o755)

	items := []unpack.Installed{{Name: "wget", Dest: dest, Version: "1.25.0"}}
	results, err := Exec(prefix, items, nil)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	linkPath := filepath.Join(prefix, "opt", "wget")
	target, err := os.Readlink(linkPath)
	if err != nil {
		t.Fatalf("expected symlink, got error: %v", err)
	}
	if filepath.IsAbs(target) {
		t.Errorf("expected relative symlink target, got %s", target)
	}
	resolved, err := filepath.Abs(filepath.Join(filepath.Dir(linkPath), target))
	if err != nil || resolved != dest {
		t.Errorf("expected link to resolve to %s, got %s (err=%v)", dest, resolved, err)
	}
}

func TestExecSwapsExistingSymlink(t *testing.T) {
	prefix := t.TempDir()
	oldDest := filepath.Join(prefix, "Cellar", "wget", "1.24.0")
	newDest := filepath.Join(prefix, "Cellar", "wget", "1.25.0")
	os.MkdirAll(oldDest, 0o755)
	os.MkdirAll(newDest, 0o755)
	os.MkdirAll(filepath.Join(prefix, "opt"), 0o755)
	os.Symlink("../Cellar/wget/1.24.0", filepath.Join(prefix, "opt", "wget"))

	_, err := Exec(prefix, []unpack.Installed{{Name: "wget", Dest: newDest, Version: "1.25.0"}}, nil)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	target, _ := os.Readlink(filepath.Join(prefix, "opt", "wget"))
	resolved, _ := filepath.Abs(filepath.Join(prefix, "opt", target))
	if resolved != newDest {
		t.Errorf("expected link swapped to %s, got %s", newDest, resolved)
	}
}

func TestExecRefusesRegularDirectory(t *testing.T) {
	prefix := t.TempDir()
	dest := filepath.Join(prefix, "Cellar", "wget", "1.25.0")
	os.MkdirAll(dest, 0o755)
	os.MkdirAll(filepath.Join(prefix, "opt", "wget"), 0o755) // a real directory, not a symlink

	_, err := Exec(prefix, []unpack.Installed{{Name: "wget", Dest: dest, Version: "1.25.0"}}, nil)
	if err == nil {
		t.Fatal("expected error when opt entry is a regular directory")
	}
}

func TestExecReportsCompletionEvent(t *testing.T) {
	prefix := t.TempDir()
	dest := filepath.Join(prefix, "Cellar", "wget", "1.25.0")
	os.MkdirAll(dest, 0o755)

	var calls []int
	_, err := Exec(prefix, []unpack.Installed{{Name: "wget", Dest: dest}}, func(index int, name string) {
		calls = append(calls, index)
	})
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if len(calls) != 2 || calls[0] != 0 || calls[1] != 1 {
		t.Fatalf("expected per-item event plus final completion event, got %v", calls)
	}
}
