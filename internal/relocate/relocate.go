// Package relocate rewrites embedded paths in unpacked package files so
// they resolve under the actual install prefix. It scans each
// file for Mach-O dynamic-link records first, falling back to a UTF-8 text
// substitution pass, and leaves symlinks untouched.
package relocate

import (
	"bytes"
	"debug/macho"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/pacbrew/pacbrew/internal/pacerr"
)

// Kind records which relocation strategy touched a file.
type Kind int

const (
	KindNone Kind = iota
	KindMachO
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindMachO:
		return "mach-o"
	case KindText:
		return "text"
	default:
		return "none"
	}
}

// ParseKind parses a Kind's String() form back, for the state ledger's
// stored representation.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "mach-o":
		return KindMachO, nil
	case "text":
		return KindText, nil
	case "none":
		return KindNone, nil
	default:
		return KindNone, pacerr.New(pacerr.KindIOFailed, fmt.Sprintf("unknown relocation kind %q", s))
	}
}

// Pattern holds the ordered placeholder → concrete-path substitutions for
// one install prefix. installName entries are applied to
// both Mach-O link records and text; extra entries only to text.
type Pattern struct {
	installName []pair
	extra       []pair
}

type pair struct{ from, to string }

// NewPattern builds the standard four-placeholder table for prefix (the
// install root) and cellar (the opt/cellar directory both absolute and
// already canonicalized by the caller).
func NewPattern(prefix, cellar string) *Pattern {
	return &Pattern{
		installName: []pair{
			{"@@HOMEBREW_PREFIX@@", prefix},
			{"@@HOMEBREW_CELLAR@@", cellar},
		},
		extra: []pair{
			{"@@HOMEBREW_PERL@@", "/usr/bin/perl"},
			{"@@HOMEBREW_JAVA@@", prefix + "/opt/openjdk/libexec"},
		},
	}
}

// replaceDylib rewrites name if it starts with one of the install-name
// placeholders; otherwise it returns name unchanged and ok=false.
func (p *Pattern) replaceDylib(name string) (string, bool) {
	for _, pr := range p.installName {
		if strings.HasPrefix(name, pr.from) {
			return strings.Replace(name, pr.from, pr.to, 1), true
		}
	}
	return name, false
}

// replaceText substitutes every occurrence of every placeholder (both
// install-name and extra) in s, reporting whether anything changed.
func (p *Pattern) replaceText(s string) (string, bool) {
	out := s
	for _, pr := range p.installName {
		out = strings.ReplaceAll(out, pr.from, pr.to)
	}
	for _, pr := range p.extra {
		out = strings.ReplaceAll(out, pr.from, pr.to)
	}
	return out, out != s
}

// plan is the set of rewrites discovered for one Mach-O file: a changed
// install name (LC_ID_DYLIB), changed dylib load paths, and changed rpaths.
type plan struct {
	oldID, newID string
	links        map[string]string
	rpaths       map[string]string
}

func (pl *plan) empty() bool {
	return pl.oldID == "" && len(pl.links) == 0 && len(pl.rpaths) == 0
}

// File relocates one file in place, returning which strategy applied.
// Symlinks are never followed or rewritten (invariant iv).
func File(path string, pattern *Pattern) (Kind, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return KindNone, pacerr.IoFailed("stat", path, err)
	}
	if fi.Mode()&os.ModeSymlink != 0 || !fi.Mode().IsRegular() {
		return KindNone, nil
	}

	if pl, ok, err := scanMachO(path, pattern); err != nil {
		return KindNone, err
	} else if ok {
		if pl.empty() {
			return KindNone, nil
		}
		if err := applyMachO(path, pl); err != nil {
			return KindNone, pacerr.RelocationFailed(path, err)
		}
		return KindMachO, nil
	}

	return relocateText(path, pattern)
}

// scanMachO attempts to parse path as a Mach-O file. ok is false when the
// file is not Mach-O at all (so the caller should fall back to text).
func scanMachO(path string, pattern *Pattern) (*plan, bool, error) {
	f, err := macho.Open(path)
	if err != nil {
		return nil, false, nil
	}
	defer f.Close()

	pl := &plan{links: map[string]string{}, rpaths: map[string]string{}}

	for _, load := range f.Loads {
		raw := load.Raw()
		if len(raw) < 8 {
			continue
		}
		cmd := macho.LoadCmd(f.ByteOrder.Uint32(raw[0:4]))
		switch cmd {
		case lcIDDylib:
			name, ok := dylibName(f, raw)
			if !ok {
				continue
			}
			if newName, changed := pattern.replaceDylib(name); changed {
				pl.oldID, pl.newID = name, newName
			}
		case lcLoadDylib, lcLoadWeakDylib, lcReexportDylib, lcLoadUpwardDylib, lcLazyLoadDylib, lcPreboundDylib:
			name, ok := dylibName(f, raw)
			if !ok {
				continue
			}
			if newName, changed := pattern.replaceDylib(name); changed {
				pl.links[name] = newName
			}
		case lcRpath:
			name, ok := rpathName(f, raw)
			if !ok {
				continue
			}
			if newName, changed := pattern.replaceDylib(name); changed {
				pl.rpaths[name] = newName
			}
		}
	}

	return pl, true, nil
}

// dylibName reads the null-terminated path out of a dylib_command's raw
// load-command bytes: cmd(4) + cmdsize(4) + name_offset(4) + ...
func dylibName(f *macho.File, raw []byte) (string, bool) {
	if len(raw) < 12 {
		return "", false
	}
	offset := f.ByteOrder.Uint32(raw[8:12])
	if int(offset) >= len(raw) {
		return "", false
	}
	b := raw[offset:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), true
}

// rpathName reads the null-terminated path out of an LC_RPATH command's raw
// bytes: cmd(4) + cmdsize(4) + path_offset(4) + ...
func rpathName(f *macho.File, raw []byte) (string, bool) {
	if len(raw) < 12 {
		return "", false
	}
	offset := f.ByteOrder.Uint32(raw[8:12])
	if int(offset) >= len(raw) {
		return "", false
	}
	b := raw[offset:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), true
}

// applyMachO rewrites a Mach-O file's dynamic-link records via
// install_name_tool, then re-signs it with an ad-hoc signature.
func applyMachO(path string, pl *plan) error {
	return withWritePermission(path, func() error {
		args := []string{}
		if pl.oldID != "" {
			args = append(args, "-id", pl.newID)
		}
		for old, new := range pl.links {
			args = append(args, "-change", old, new)
		}
		for old, new := range pl.rpaths {
			args = append(args, "-rpath", old, new)
		}
		args = append(args, path)

		out, err := exec.Command("install_name_tool", args...).CombinedOutput()
		if err != nil {
			return errors.New("install_name_tool: " + string(out))
		}

		out, err = exec.Command("codesign", "--sign", "-", "--force",
			"--preserve-metadata=entitlements,requirements,flags,runtime", path).CombinedOutput()
		if err != nil {
			return errors.New("codesign: " + string(out))
		}
		return nil
	})
}

// relocateText reads path as UTF-8 text and substitutes every placeholder
// occurrence, writing the result back only if something changed.
func relocateText(path string, pattern *Pattern) (Kind, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KindNone, pacerr.IoFailed("read", path, err)
	}
	if !utf8.Valid(data) {
		return KindNone, nil
	}

	replaced, changed := pattern.replaceText(string(data))
	if !changed {
		return KindNone, nil
	}

	err = withWritePermission(path, func() error {
		return os.WriteFile(path, []byte(replaced), 0)
	})
	if err != nil {
		return KindNone, pacerr.IoFailed("write", path, err)
	}
	return KindText, nil
}

// withWritePermission temporarily grants write permission to path's owner
// if it is read-only, runs fn, then restores the original mode.
func withWritePermission(path string, fn func() error) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := fi.Mode()
	readonly := mode&0o200 == 0
	if readonly {
		if err := os.Chmod(path, mode|0o200); err != nil {
			return err
		}
	}
	result := fn()
	if readonly {
		if err := os.Chmod(path, mode); err != nil && result == nil {
			return err
		}
	}
	return result
}
