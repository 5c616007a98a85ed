// Package download fetches model files over HTTP(S) into the models
// directory. Bytes land in a ".part" file that is renamed into place only
// after the body has been fully written, so the registry never lists a
// partial model.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chatcore/internal/common/fsutil"
	"chatcore/internal/registry"
)

const partSuffix = ".part"

// Progress is a point-in-time view of one download.
type Progress struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Name       string    `json:"name"`
	Downloaded int64     `json:"downloaded"`
	Total      int64     `json:"total"`
	Done       bool      `json:"done"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Fraction reports completion in [0,1]; zero when the size is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Downloaded) / float64(p.Total)
}

// Downloader runs downloads into Dir and tracks background jobs by id.
type Downloader struct {
	client     *http.Client
	dir        string
	log        zerolog.Logger
	every      time.Duration
	onComplete func(path string)
	base       context.Context

	mu   sync.Mutex
	jobs map[string]*Progress
	wg   sync.WaitGroup
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithClient replaces the default HTTP client.
func WithClient(c *http.Client) Option { return func(d *Downloader) { d.client = c } }

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(d *Downloader) { d.log = l } }

// WithProgressInterval sets the minimum spacing between progress callbacks.
func WithProgressInterval(every time.Duration) Option {
	return func(d *Downloader) { d.every = every }
}

// OnComplete registers a hook run with the final path after each success.
func OnComplete(fn func(path string)) Option { return func(d *Downloader) { d.onComplete = fn } }

// WithBaseContext bounds background jobs; canceling it aborts them.
func WithBaseContext(ctx context.Context) Option { return func(d *Downloader) { d.base = ctx } }

// New returns a Downloader writing into dir.
func New(dir string, opts ...Option) *Downloader {
	d := &Downloader{
		client: &http.Client{},
		dir:    dir,
		log:    zerolog.Nop(),
		every:  250 * time.Millisecond,
		base:   context.Background(),
		jobs:   map[string]*Progress{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// NameFromURL derives a file name from the last path segment of rawURL.
func NameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("cannot derive a file name from %q", rawURL)
	}
	return name, nil
}

// requestError rejects a download before any network traffic.
type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

// IsInvalidRequest reports whether err came from validating the URL or
// target name.
func IsInvalidRequest(err error) bool {
	var re requestError
	return errors.As(err, &re)
}

func (d *Downloader) prepare(rawURL, name string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", requestError{fmt.Errorf("invalid download url %q", rawURL)}
	}
	if name == "" {
		if name, err = NameFromURL(rawURL); err != nil {
			return "", "", requestError{err}
		}
	}
	if err := registry.ValidateName(name); err != nil {
		return "", "", requestError{err}
	}
	dest := filepath.Join(d.dir, name)
	if fsutil.PathExists(dest) {
		return "", "", requestError{fmt.Errorf("%s already exists", name)}
	}
	return name, dest, nil
}

// Download fetches rawURL into the models directory as name (derived from
// the URL when empty) and returns the final path. onProgress is called at
// most once per progress interval plus once at the end.
func (d *Downloader) Download(ctx context.Context, rawURL, name string, onProgress func(Progress)) (string, error) {
	name, dest, err := d.prepare(rawURL, name)
	if err != nil {
		return "", err
	}
	p := Progress{ID: uuid.NewString(), URL: rawURL, Name: name, StartedAt: time.Now()}
	return dest, d.fetch(ctx, &p, dest, onProgress)
}

func (d *Downloader) fetch(ctx context.Context, p *Progress, dest string, onProgress func(Progress)) (err error) {
	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	defer func() {
		p.Done = true
		if err != nil {
			p.Err = err.Error()
			d.log.Warn().Err(err).Str("name", p.Name).Msg("download failed")
		} else {
			d.log.Info().Str("name", p.Name).Int64("bytes", p.Downloaded).Msg("download complete")
		}
		report(*p)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", p.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("get %s: unexpected status %s", p.URL, resp.Status)
	}
	if resp.ContentLength > 0 {
		p.Total = resp.ContentLength
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}
	part := dest + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}
	limiter := rate.NewLimiter(rate.Every(d.every), 1)
	cw := &countingWriter{w: f, onWrite: func(n int64) {
		p.Downloaded = n
		if limiter.Allow() {
			report(*p)
		}
	}}
	_, copyErr := io.Copy(cw, resp.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("write %s: %w", p.Name, err)
	}
	if p.Total > 0 && p.Downloaded != p.Total {
		_ = os.Remove(part)
		return fmt.Errorf("short download: got %d of %d bytes", p.Downloaded, p.Total)
	}
	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return fmt.Errorf("rename: %w", err)
	}
	if d.onComplete != nil {
		d.onComplete(dest)
	}
	return nil
}

// Start runs a download in the background and returns its id. The job
// outlives the caller's request; ctx only bounds validation.
func (d *Downloader) Start(ctx context.Context, rawURL, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, dest, err := d.prepare(rawURL, name)
	if err != nil {
		return "", err
	}
	p := &Progress{ID: uuid.NewString(), URL: rawURL, Name: name, StartedAt: time.Now()}
	d.mu.Lock()
	d.jobs[p.ID] = &Progress{ID: p.ID, URL: p.URL, Name: p.Name, StartedAt: p.StartedAt}
	d.mu.Unlock()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.fetch(d.base, p, dest, func(snap Progress) {
			d.mu.Lock()
			*d.jobs[snap.ID] = snap
			d.mu.Unlock()
		})
	}()
	return p.ID, nil
}

// Get returns the latest progress for a background job.
func (d *Downloader) Get(id string) (Progress, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.jobs[id]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// Wait blocks until every background job has finished.
func (d *Downloader) Wait() { d.wg.Wait() }

type countingWriter struct {
	w       io.Writer
	n       int64
	onWrite func(total int64)
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	c.onWrite(c.n)
	return n, err
}
