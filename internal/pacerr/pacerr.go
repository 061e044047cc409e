// Package pacerr implements the uniform error taxonomy shared by every
// pipeline stage: a typed kind plus whatever context (URL, path, operation
// verb) the stage had in hand when the failure happened.
package pacerr

import (
	"errors"
	"fmt"
)

// Kind identifies which row of the error taxonomy an Error belongs to.
type Kind int

const (
	// KindUnknown is never constructed directly; it is the zero value.
	KindUnknown Kind = iota
	KindMalformedURL
	KindRequestFailed
	KindHTTPDownloadFailed
	KindMirrorFailed
	KindIOFailed
	KindSerdeJSON
	KindSerdeTOML
	KindPackageNotFound
	KindPackageArchNotFound
	KindRelocationFailed
	KindVerifyFailed
)

func (k Kind) String() string {
	switch k {
	case KindMalformedURL:
		return "MalformedUrl"
	case KindRequestFailed:
		return "RequestFailed"
	case KindHTTPDownloadFailed:
		return "HttpDownloadFailed"
	case KindMirrorFailed:
		return "MirrorFailed"
	case KindIOFailed:
		return "IoFailed"
	case KindSerdeJSON:
		return "SerdeJson"
	case KindSerdeTOML:
		return "SerdeToml"
	case KindPackageNotFound:
		return "PackageNotFound"
	case KindPackageArchNotFound:
		return "PackageArchNotFound"
	case KindRelocationFailed:
		return "RelocationFailed"
	case KindVerifyFailed:
		return "VerifyFailed"
	default:
		return "Unknown"
	}
}

// Error is the single error type used across every stage. Context is kept
// as named fields rather than a generic map so the zero value never hides
// useful context behind a nil map.
type Error struct {
	Kind Kind
	// Op is the action verb for IoFailed errors ("open", "rename",
	// "create_dir_all", ...).
	Op string
	// Path and URL attach the offending filesystem path or request URL.
	Path string
	URL  string
	// Names carries PackageNotFound's list of available names, or
	// PackageArchNotFound's list of available archs.
	Names []string
	// Msg is a short human summary, used when no other field says enough.
	Msg string
	// Cause is the underlying error, if any.
	Cause error
}

// Option mutates an *Error during construction, in the functional-options
// idiom used throughout this module's ambient and domain packages.
type Option func(*Error)

// WithOp attaches the operation verb (for IoFailed errors).
func WithOp(op string) Option { return func(e *Error) { e.Op = op } }

// WithPath attaches an offending filesystem path.
func WithPath(path string) Option { return func(e *Error) { e.Path = path } }

// WithURL attaches an offending request URL.
func WithURL(url string) Option { return func(e *Error) { e.URL = url } }

// WithNames attaches the list of available names/archs.
func WithNames(names []string) Option { return func(e *Error) { e.Names = names } }

// WithCause attaches the underlying error.
func WithCause(err error) Option { return func(e *Error) { e.Cause = err } }

// New constructs an Error of the given kind with a message and options.
func New(kind Kind, msg string, opts ...Option) *Error {
	e := &Error{Kind: kind, Msg: msg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Wrap is New with the cause pre-attached, for the common case of
// converting a lower-level error into a taxonomy kind.
func Wrap(kind Kind, cause error, msg string, opts ...Option) *Error {
	opts = append(opts, WithCause(cause))
	return New(kind, msg, opts...)
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s: %s", e.Kind, e.Msg))
	if e.Op != "" && e.Path != "" {
		parts = append(parts, fmt.Sprintf("(%s %s)", e.Op, e.Path))
	} else if e.Path != "" {
		parts = append(parts, fmt.Sprintf("(%s)", e.Path))
	}
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.URL))
	}
	s := parts[0]
	for _, p := range parts[1:] {
		s += " " + p
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is comparison against a bare Kind sentinel built via
// New(kind, "") — callers typically use errors.As to inspect fields instead.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// IoFailed wraps a filesystem error with its action verb and path, matching
// the teacher's registry/checksum error-context-attachment idiom.
func IoFailed(op, path string, cause error) *Error {
	return Wrap(KindIOFailed, cause, fmt.Sprintf("%s failed", op), WithOp(op), WithPath(path))
}

// MirrorFailed reports that every mirror in the registry failed a request.
func MirrorFailed(what string, cause error) *Error {
	return Wrap(KindMirrorFailed, cause, fmt.Sprintf("all mirrors failed for %s", what))
}

// PackageNotFound reports a resolver lookup miss.
func PackageNotFound(name string, available []string) *Error {
	return New(KindPackageNotFound, fmt.Sprintf("package %q not found", name), WithNames(available))
}

// PackageArchNotFound reports a probe arch-selection miss.
func PackageArchNotFound(name, arch string, available []string) *Error {
	return New(KindPackageArchNotFound,
		fmt.Sprintf("package %q has no bottle for arch %q", name, arch),
		WithNames(available))
}

// VerifyFailed reports a checksum/size/existence mismatch.
func VerifyFailed(name, reason, path string) *Error {
	return New(KindVerifyFailed, fmt.Sprintf("%s: %s", name, reason), WithPath(path))
}

// RelocationFailed reports a link-editor or signer failure.
func RelocationFailed(path string, cause error) *Error {
	return Wrap(KindRelocationFailed, cause, "relocation failed", WithPath(path))
}
