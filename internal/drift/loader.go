package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rtm0/icedrift/internal/metrics"
	"github.com/rtm0/icedrift/internal/osisaf"
	"github.com/rtm0/icedrift/internal/source"
)

// Loader turns requested dates into records using a product source.
type Loader struct {
	logger *slog.Logger
	src    source.Source
}

// NewLoader creates a loader reading products from src.
func NewLoader(logger *slog.Logger, src source.Source) *Loader {
	return &Loader{logger: logger, src: src}
}

// Load fetches, extracts and derives the product centered on date.
//
// A product that the source does not have is reported as a warning and
// yields a nil record with a nil error so that callers iterating over dates
// can skip it. Any other failure, including a file with an unexpected
// layout, is returned.
func (l *Loader) Load(ctx context.Context, date time.Time) (*Record, error) {
	p := osisaf.For(date)
	f, err := l.src.Fetch(ctx, p)
	if errors.Is(err, source.ErrNotFound) {
		l.logger.Warn("Product not available", "source", l.src.Name(), "date", p.Date.Format(time.DateOnly), "err", err)
		metrics.MissingProducts.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.Filename(), err)
	}
	defer func() {
		if err := f.Release(); err != nil {
			l.logger.Error("Could not release product file", "path", f.Path, "err", err)
		}
	}()

	return l.read(p, f.Path, f.Location)
}

// LoadFile extracts and derives a product file that is already on disk.
// The product is recovered from the file name.
func (l *Loader) LoadFile(path string) (*Record, error) {
	p, err := osisaf.ParseFilename(path)
	if err != nil {
		return nil, err
	}
	return l.read(p, path, path)
}

func (l *Loader) read(p osisaf.Product, path, location string) (*Record, error) {
	r, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	rec, err := Build(p, location, r)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}

	rec.LatMid, rec.LonMid, err = rec.Projection.Geographic(rec.XMid, rec.YMid)
	if err != nil {
		l.logger.Warn("Could not locate midpoints", "proj", rec.Projection.Proj4(), "err", err)
		rec.LatMid, rec.LonMid = nil, nil
	}

	metrics.RecordsDerived.Inc()
	l.logger.Debug("Loaded product", append([]any{"file", p.Filename(), "from", location}, Summarize(rec).LogAttrs()...)...)
	return rec, nil
}
