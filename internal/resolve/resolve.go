// Package resolve implements the BFS transitive-dependency closure over
// the catalog, with alias/old-name indexing.
package resolve

import (
	"fmt"
	"sort"

	"github.com/pacbrew/pacbrew/internal/catalog"
	"github.com/pacbrew/pacbrew/internal/pacerr"
	"github.com/pacbrew/pacbrew/internal/pblog"
)

// Set is the resolver's output: the canonical names reported for the
// user's original query, and the collected PackageVersions in BFS
// discovery order (closed under dependencies).
type Set struct {
	CanonicalNames []string
	Packages       []*catalog.PackageVersion
}

// buildIndex maps name | full_name | alias | old_name(s) to a Formula.
// Layers are inserted in this order so a later layer wins a key collision:
// name, oldname, oldnames, aliases, full_name — matching the original
// resolver's insertion order.
func buildIndex(formulas []*catalog.Formula) map[string]*catalog.Formula {
	index := make(map[string]*catalog.Formula, len(formulas)*2)
	for _, f := range formulas {
		index[f.Name] = f
	}
	for _, f := range formulas {
		if f.OldName != "" {
			index[f.OldName] = f
		}
	}
	for _, f := range formulas {
		for _, old := range f.OldNames {
			index[old] = f
		}
	}
	for _, f := range formulas {
		for _, alias := range f.Aliases {
			index[alias] = f
		}
	}
	for _, f := range formulas {
		index[f.FullName] = f
	}
	return index
}

// Exec resolves query (a list of name strings, which may be aliases or
// old names) against formulas, returning the closed dependency set.
//
// The index lookup failing for a queued name is a PackageNotFound error.
// A dependency edge pointing back at an already-visited formula is
// tolerated and logged as a warning rather than failing resolution —
// cycles in the catalog graph cannot hang the BFS because each formula is
// expanded at most once.
func Exec(formulas []*catalog.Formula, query []string) (*Set, error) {
	index := buildIndex(formulas)

	visited := make(map[string]bool)
	var collected []*catalog.Formula
	canonicalOf := make(map[string]string, len(query))

	queue := make([]string, len(query))
	copy(queue, query)
	// queryAliasOf maps each queued name back to the original query string
	// it was enqueued for, so the first resolution of a query name records
	// its canonical full_name even if later encountered again as a dep.
	queryAliasOf := make(map[string]string, len(query))
	for _, q := range query {
		queryAliasOf[q] = q
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		f, ok := index[name]
		if !ok {
			available := make([]string, 0, len(index))
			for k := range index {
				available = append(available, k)
			}
			sort.Strings(available)
			return nil, pacerr.PackageNotFound(name, available)
		}

		if orig, isQuery := queryAliasOf[name]; isQuery {
			if _, already := canonicalOf[orig]; !already {
				canonicalOf[orig] = f.FullName
			}
		}

		if visited[f.Name] {
			continue
		}
		visited[f.Name] = true
		collected = append(collected, f)

		for _, dep := range f.Dependencies {
			if depFormula, ok := index[dep]; ok && visited[depFormula.Name] {
				pblog.Default().Warn("cyclic dependency tolerated", "from", f.FullName, "to", dep)
				continue
			}
			queue = append(queue, dep)
		}
	}

	names := make([]string, 0, len(canonicalOf))
	for _, q := range query {
		if c, ok := canonicalOf[q]; ok {
			names = append(names, c)
		} else {
			names = append(names, q)
		}
	}
	names = uniqueSorted(names)

	packages := make([]*catalog.PackageVersion, len(collected))
	for i, f := range collected {
		packages[i] = f.Project()
	}

	return &Set{CanonicalNames: names, Packages: packages}, nil
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks the resolved set's closure invariant: every
// dependency referenced by a collected package is itself present.
func (s *Set) Validate() error {
	present := make(map[string]bool, len(s.Packages))
	for _, p := range s.Packages {
		present[p.Name] = true
	}
	for _, p := range s.Packages {
		for _, dep := range p.Dependencies {
			if !present[dep] {
				return fmt.Errorf("resolved set not closed: %s depends on %s, which is absent", p.Name, dep)
			}
		}
	}
	return nil
}
