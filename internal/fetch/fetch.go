// Package fetch implements the single-URL streamed download with atomic
// publish, and the cross-mirror retry wrapper built on top of it.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pacbrew/pacbrew/internal/mirror"
	"github.com/pacbrew/pacbrew/internal/pacerr"
	"github.com/pacbrew/pacbrew/internal/pblog"
)

// Progress is reported after every chunk: bytes received so far, and the
// content length if known (0 otherwise).
type Progress struct {
	Current int64
	Max     int64
}

// ProgressFunc is the event listener a single fetch reports through. A nil
// func is treated as a no-op, matching the event substrate's default
// listener.
type ProgressFunc func(Progress)

// Single performs one GET against client/url, streaming the body to
// destination via a sibling ".part" file and renaming atomically on
// success.
//
// If force is false and destination already exists, it returns immediately
// with {current=max=size-on-disk} and never touches the network — this is
// the fetcher's own cache short-circuit.
func Single(ctx context.Context, client *http.Client, url, destination string, force bool, on ProgressFunc) error {
	if !force {
		if fi, err := os.Stat(destination); err == nil {
			if on != nil {
				on(Progress{Current: fi.Size(), Max: fi.Size()})
			}
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return pacerr.IoFailed("create_dir_all", filepath.Dir(destination), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pacerr.New(pacerr.KindMalformedURL, "invalid URL", pacerr.WithURL(url), pacerr.WithCause(err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return pacerr.Wrap(pacerr.KindRequestFailed, err, "request failed", pacerr.WithURL(url))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pacerr.New(pacerr.KindHTTPDownloadFailed,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), pacerr.WithURL(url))
	}

	partPath := destination + ".part"
	part, err := os.Create(partPath)
	if err != nil {
		return pacerr.IoFailed("create", partPath, err)
	}
	// A mid-stream failure leaves .part on disk rather than removing it;
	// there's no resumable-download support, so the next attempt just
	// truncates and overwrites it via os.Create above.
	defer part.Close()

	contentLength := resp.ContentLength
	if contentLength < 0 {
		contentLength = 0
	}

	var written int64
	buf := make([]byte, 256*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := part.Write(buf[:n]); werr != nil {
				return pacerr.IoFailed("write", partPath, werr)
			}
			written += int64(n)
			if on != nil {
				on(Progress{Current: written, Max: contentLength})
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return pacerr.Wrap(pacerr.KindHTTPDownloadFailed, rerr, "body stream error", pacerr.WithURL(url))
		}
	}

	if err := part.Sync(); err != nil {
		return pacerr.IoFailed("fsync", partPath, err)
	}
	if err := part.Close(); err != nil {
		return pacerr.IoFailed("close", partPath, err)
	}
	if err := os.Rename(partPath, destination); err != nil {
		return pacerr.IoFailed("rename", partPath, err)
	}
	return nil
}

// MirrorWrapper walks a mirror registry's endpoint list in order, attempting
// Single against each until one succeeds. Any error advances to the next
// mirror with a logged warning; if every mirror fails, it returns
// MirrorFailed.
func MirrorWrapper(ctx context.Context, endpoints []mirror.Endpoint, destination string, force bool, on ProgressFunc) error {
	var lastErr error
	for _, ep := range endpoints {
		err := Single(ctx, ep.Client, ep.URL, destination, force, on)
		if err == nil {
			return nil
		}
		pblog.Default().Warn("mirror attempt failed", "url", ep.URL, "error", err)
		lastErr = err
	}
	return pacerr.MirrorFailed(destination, lastErr)
}

// UpdateCatalog fetches the catalog API endpoint through the mirror
// registry and atomically replaces the on-disk catalog file: write to
// `<target>.new`, validate it decodes as non-empty JSON, rename into place
// (the `update` sub-command, grounded on
// original_source's download_db with force=true semantics).
func UpdateCatalog(ctx context.Context, endpoints []mirror.Endpoint, target string, validate func([]byte) error) error {
	tmp := target + ".new"
	if err := MirrorWrapper(ctx, endpoints, tmp, true, nil); err != nil {
		return err
	}
	data, err := os.ReadFile(tmp)
	if err != nil {
		return pacerr.IoFailed("read", tmp, err)
	}
	if validate != nil {
		if err := validate(data); err != nil {
			os.Remove(tmp)
			return err
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		return pacerr.IoFailed("rename", tmp, err)
	}
	return nil
}
