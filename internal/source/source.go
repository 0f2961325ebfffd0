// Package source retrieves OSI-SAF drift product files from the places they
// are published: the met.no THREDDS catalog, the OSI-SAF FTP archive or a
// local mirror of either.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rtm0/icedrift/internal/osisaf"
)

// ErrNotFound is returned when the requested product is not published.
var ErrNotFound = errors.New("product not found")

// Source locates a product and makes it available as a local NetCDF file.
type Source interface {
	// Name is a short identifier used in logs and metrics.
	Name() string
	// Fetch returns a local copy of the product or an error wrapping
	// ErrNotFound.
	Fetch(ctx context.Context, p osisaf.Product) (*Fetched, error)
}

// Fetched is a product file ready to be opened. Release must be called once
// the file is no longer needed.
type Fetched struct {
	// Path is the local file to open.
	Path string
	// Location is where the file was found: a URL or a path.
	Location string

	release func() error
}

// Release frees any temporary copy of the file.
func (f *Fetched) Release() error {
	if f.release == nil {
		return nil
	}
	err := f.release()
	f.release = nil
	return err
}

// spool copies r into a new temporary file in dir and returns the file path
// along with the number of bytes written.
func spool(dir string, r io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(dir, "icedrift-*.nc")
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("write %s: %w", f.Name(), err)
	}
	return f.Name(), n, nil
}

func removeFunc(path string) func() error {
	return func() error {
		return os.Remove(path)
	}
}
