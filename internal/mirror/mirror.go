// Package mirror builds the ordered list of endpoints a fetch can try, and
// the per-kind HTTP client each endpoint requires.
package mirror

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pacbrew/pacbrew/internal/catalog"
	"github.com/pacbrew/pacbrew/internal/httputil"
)

// Kind governs URL construction for package files and whether an API URL
// is derivable for catalog fetches.
type Kind int

const (
	KindGhcr Kind = iota
	KindOci
	KindBottle
)

// ParseKind maps the TOML config's `type` string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "ghcr":
		return KindGhcr, nil
	case "oci":
		return KindOci, nil
	case "bottle":
		return KindBottle, nil
	default:
		return 0, fmt.Errorf("unknown mirror type %q", s)
	}
}

// Entry is one configured mirror endpoint.
type Entry struct {
	Kind    Kind
	BaseURL string
	// APIBaseURL overrides the API(path) base when set. When empty, a
	// Bottle-kind mirror uses BaseURL + "/api", and a Ghcr or Oci mirror
	// has no API URL.
	APIBaseURL string
}

// Ghcr returns the well-known GitHub Container Registry mirror for the
// homebrew/core tap.
func Ghcr() Entry {
	return Entry{Kind: KindGhcr, BaseURL: "https://ghcr.io/v2/homebrew/core"}
}

// Request is either a catalog API fetch or a package bottle fetch.
type Request struct {
	// APIPath is set for an Api(path) request, e.g. "formula.json".
	APIPath string
	// Pkg is set for a Package(pkg) request.
	Pkg *catalog.PkgBuild
	// PkgName is the formula's full_name, used for the ghcr/oci
	// name-transform: '@' -> '/', '+' -> 'x'.
	PkgName string
}

// APIRequest builds a catalog-fetch request.
func APIRequest(path string) Request { return Request{APIPath: path} }

// PackageRequest builds a bottle-fetch request.
func PackageRequest(name string, pkg *catalog.PkgBuild) Request {
	return Request{Pkg: pkg, PkgName: name}
}

// URL constructs the request's URL for this mirror entry, per the
// table. It returns ("", false) when no URL is derivable (an Api request
// against a Ghcr or Oci mirror that has no APIBaseURL).
func (e Entry) URL(req Request) (string, bool) {
	if req.APIPath != "" {
		switch e.Kind {
		case KindGhcr, KindOci:
			if e.APIBaseURL == "" {
				return "", false
			}
			return fmt.Sprintf("%s/%s", e.APIBaseURL, req.APIPath), true
		case KindBottle:
			base := e.APIBaseURL
			if base == "" {
				return fmt.Sprintf("%s/api/%s", e.BaseURL, req.APIPath), true
			}
			return fmt.Sprintf("%s/%s", base, req.APIPath), true
		}
	}

	if req.Pkg != nil {
		switch e.Kind {
		case KindGhcr, KindOci:
			transformed := strings.NewReplacer("@", "/", "+", "x").Replace(req.PkgName)
			return fmt.Sprintf("%s/%s/blobs/sha256:%s", e.BaseURL, transformed, req.Pkg.SHA256), true
		case KindBottle:
			return fmt.Sprintf("%s/%s", e.BaseURL, req.Pkg.Filename), true
		}
	}
	return "", false
}

// Client returns the HTTP client this mirror kind requires. Ghcr's
// anonymous blob access needs a static bearer token; the other kinds mimic
// Wget so upstream bottle mirrors serve them.
func (e Entry) Client() *http.Client {
	opts := httputil.DefaultOptions()
	switch e.Kind {
	case KindGhcr:
		return httputil.NewSecureClientWithHeaders(opts, map[string]string{
			"Authorization": "Bearer QQ==",
			"User-Agent":    "pacbrew/0.1",
		})
	default:
		return httputil.NewSecureClientWithHeaders(opts, map[string]string{
			"User-Agent": "Wget/1.21.3",
		})
	}
}

// Registry is the ordered list of mirror endpoints a fetch can try, in
// configuration order.
type Registry struct {
	Entries []Entry
}

// New builds a Registry from configured entries, in list order.
func New(entries ...Entry) *Registry {
	return &Registry{Entries: entries}
}

// Endpoint is one (client, url) pair yielded by Iter.
type Endpoint struct {
	Client *http.Client
	URL    string
}

// Iter yields the ordered list of (client, url) pairs for a request,
// skipping mirrors that cannot derive a URL for it. An empty registry (or
// one where no entry can derive a URL) yields an empty slice; the fetcher
// never issues a request in that case and reports MirrorFailed.
func (r *Registry) Iter(req Request) []Endpoint {
	var out []Endpoint
	for _, e := range r.Entries {
		url, ok := e.URL(req)
		if !ok {
			continue
		}
		out = append(out, Endpoint{Client: e.Client(), URL: url})
	}
	return out
}
