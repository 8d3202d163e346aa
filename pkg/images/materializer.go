// Package images downloads product images into a per-company folder tree.
//
// Downloads are best effort: a file already on disk is never fetched again,
// responses that are not HTTP 200 with an image content type are rejected,
// and failures are reported to the caller without aborting anything.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds a single image request.
const DefaultTimeout = 15 * time.Second

var (
	// ErrUnexpectedStatus is returned when the image endpoint answers with a status other than 200.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrNotImage is returned when the response content type does not mention "image".
	ErrNotImage = errors.New("not an image")
)

// Outcome classifies a download attempt.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeExists     Outcome = "exists"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
)

// Job is one image to materialize.
type Job struct {
	// URL is the remote image location.
	URL string

	// Dir is the destination folder, usually <image root>/<company code>.
	Dir string

	// Filename overrides the name derived from URL.
	Filename string
}

// Path returns the destination file path, or "" when no filename can be derived.
func (j Job) Path() string {
	name := j.Filename
	if name == "" {
		name = FilenameFromURL(j.URL)
	}
	if name == "" {
		return ""
	}
	return filepath.Join(j.Dir, name)
}

// FilenameFromURL returns the last path segment of a URL with any query
// string removed. For ".../imgresize.php?pic=immagini/articoli/c/x.png" the
// last "/" segment is "x.png".
func FilenameFromURL(rawURL string) string {
	name := rawURL
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// Config holds the downloader configuration.
type Config struct {
	// Timeout per request (default DefaultTimeout).
	Timeout time.Duration

	// Headers sent with every image request (user-agent, cookie, referer).
	Headers map[string]string
}

// Materializer fetches images and stores them on disk.
type Materializer struct {
	http *resty.Client
}

// NewMaterializer creates a downloader.
func NewMaterializer(cfg Config) *Materializer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeaders(cfg.Headers)

	return &Materializer{http: client}
}

// HTTPClient returns the underlying HTTP client (for testing).
func (m *Materializer) HTTPClient() *http.Client {
	return m.http.GetClient()
}

// Download stores the image of job unless its file already exists.
func (m *Materializer) Download(ctx context.Context, job Job) (Outcome, error) {
	dest := job.Path()
	if job.URL == "" || dest == "" {
		return OutcomeSkipped, nil
	}

	if err := os.MkdirAll(job.Dir, 0o755); err != nil {
		return OutcomeFailed, fmt.Errorf("create folder: %w", err)
	}

	if _, err := os.Stat(dest); err == nil {
		return OutcomeExists, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return OutcomeFailed, fmt.Errorf("stat %s: %w", dest, err)
	}

	resp, err := m.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(job.URL)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("get %s: %w", job.URL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return OutcomeRejected, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}

	contentType := resp.Header().Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "image") {
		return OutcomeRejected, fmt.Errorf("%w: content-type %q", ErrNotImage, contentType)
	}

	if err := writeAtomic(dest, body); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeDownloaded, nil
}

// writeAtomic streams r into a temp file next to dest and renames it into place.
func writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", dest, err)
	}
	return nil
}
