package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rtm0/icedrift/internal/osisaf"
)

// Local reads products from a directory tree laid out as root/YYYY/MM/file.
type Local struct {
	root string
}

// NewLocal creates a source over a local archive.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// Name implements Source.
func (l *Local) Name() string {
	return "local"
}

// Fetch implements Source. The file is used in place.
func (l *Local) Fetch(_ context.Context, p osisaf.Product) (*Fetched, error) {
	path := p.LocalPath(l.root)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &Fetched{Path: path, Location: path}, nil
}
