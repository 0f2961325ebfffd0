package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rtm0/icedrift/internal/httputil"
	"github.com/rtm0/icedrift/internal/metrics"
	"github.com/rtm0/icedrift/internal/osisaf"
)

// DefaultCatalogRoot is the met.no THREDDS catalog of merged low resolution
// drift products.
const DefaultCatalogRoot = "https://thredds.met.no/thredds/catalog/osisaf/met.no/ice/drift_lr/merged"

// Thredds fetches products listed in monthly THREDDS catalogs.
type Thredds struct {
	logger     *slog.Logger
	httpCli    *http.Client
	root       string
	tempDir    string
	maxElapsed time.Duration
}

// NewThredds creates a THREDDS source rooted at catalogRoot, under which
// catalogs live at YYYY/MM/catalog.xml.
func NewThredds(logger *slog.Logger, catalogRoot string) (*Thredds, error) {
	u, err := url.Parse(catalogRoot)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog root %q is not an HTTP URL", catalogRoot)
	}
	return &Thredds{
		logger:     logger,
		httpCli:    httputil.NewClient(),
		root:       catalogRoot,
		tempDir:    os.TempDir(),
		maxElapsed: 2 * time.Minute,
	}, nil
}

// Name implements Source.
func (t *Thredds) Name() string {
	return "thredds"
}

// Catalog fetches the catalog listing the month the product is filed under.
func (t *Thredds) Catalog(ctx context.Context, p osisaf.Product) (*Catalog, error) {
	catalogURL := p.CatalogURL(t.root)
	var body []byte
	err := t.get(ctx, catalogURL, func(r io.Reader) error {
		var err error
		body, err = io.ReadAll(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return ParseCatalog(catalogURL, body)
}

// Fetch implements Source. The product is downloaded to a temporary file
// that Release removes.
func (t *Thredds) Fetch(ctx context.Context, p osisaf.Product) (*Fetched, error) {
	cat, err := t.Catalog(ctx, p)
	if err != nil {
		return nil, err
	}
	ds, ok := cat.Lookup(p.Filename())
	if !ok {
		metrics.CatalogLookups.WithLabelValues(t.Name(), "missing").Inc()
		return nil, fmt.Errorf("%s not in file list for %s catalog: %w", p.Filename(), p.Dir(), ErrNotFound)
	}
	metrics.CatalogLookups.WithLabelValues(t.Name(), "found").Inc()

	fileURL, err := cat.FileURL(ds)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("Downloading product", "url", fileURL)

	var path string
	var n int64
	err = t.get(ctx, fileURL, func(r io.Reader) error {
		var err error
		path, n, err = spool(t.tempDir, r)
		return err
	})
	if err != nil {
		metrics.Downloads.WithLabelValues(t.Name(), "error").Inc()
		return nil, fmt.Errorf("download %s: %w", fileURL, err)
	}
	metrics.Downloads.WithLabelValues(t.Name(), "ok").Inc()
	metrics.DownloadedBytes.WithLabelValues(t.Name()).Add(float64(n))

	return &Fetched{Path: path, Location: fileURL, release: removeFunc(path)}, nil
}

// get performs a GET request and hands the body to read. Rate limiting,
// server errors and transport failures are retried with exponential
// backoff; any other status is final.
func (t *Thredds) get(ctx context.Context, rawURL string, read func(io.Reader) error) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", httputil.UserAgent)

		resp, err := t.httpCli.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s: status %d", rawURL, resp.StatusCode)
		}
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("%s: %w", rawURL, ErrNotFound))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%s: unexpected status %d", rawURL, resp.StatusCode))
		}
		if err := read(resp.Body); err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = t.maxElapsed
	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}
