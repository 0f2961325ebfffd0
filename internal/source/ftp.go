package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/rtm0/icedrift/internal/metrics"
	"github.com/rtm0/icedrift/internal/osisaf"
)

const (
	// DefaultFTPAddr is the OSI-SAF anonymous FTP server.
	DefaultFTPAddr = "osisaf.met.no:21"
	// DefaultFTPDir holds the merged low resolution drift archive.
	DefaultFTPDir = "/archive/ice/drift_lr/merged"
)

// FTP fetches products from an FTP archive laid out as dir/YYYY/MM/file.
type FTP struct {
	logger   *slog.Logger
	addr     string
	dir      string
	user     string
	password string
	timeout  time.Duration
	tempDir  string
}

// NewFTP creates an anonymous FTP source.
func NewFTP(logger *slog.Logger, addr, dir string) *FTP {
	if addr == "" {
		addr = DefaultFTPAddr
	}
	if dir == "" {
		dir = DefaultFTPDir
	}
	return &FTP{
		logger:   logger,
		addr:     addr,
		dir:      dir,
		user:     "anonymous",
		password: "anonymous",
		timeout:  30 * time.Second,
		tempDir:  os.TempDir(),
	}
}

// Name implements Source.
func (f *FTP) Name() string {
	return "ftp"
}

// Fetch implements Source. The month directory is listed first so a missing
// product is reported as ErrNotFound rather than a transfer failure.
func (f *FTP) Fetch(ctx context.Context, p osisaf.Product) (*Fetched, error) {
	conn, err := ftp.Dial(f.addr, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(f.user, f.password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	monthDir := path.Join(f.dir, p.Dir())
	names, err := conn.NameList(monthDir)
	if err != nil {
		return nil, fmt.Errorf("ftp list %s: %w", monthDir, err)
	}
	if !listed(names, p.Filename()) {
		metrics.CatalogLookups.WithLabelValues(f.Name(), "missing").Inc()
		return nil, fmt.Errorf("%s not in %s: %w", p.Filename(), monthDir, ErrNotFound)
	}
	metrics.CatalogLookups.WithLabelValues(f.Name(), "found").Inc()

	remote := path.Join(monthDir, p.Filename())
	f.logger.Debug("Retrieving product", "addr", f.addr, "path", remote)
	resp, err := conn.Retr(remote)
	if err != nil {
		metrics.Downloads.WithLabelValues(f.Name(), "error").Inc()
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	local, n, err := spool(f.tempDir, resp)
	resp.Close()
	if err != nil {
		metrics.Downloads.WithLabelValues(f.Name(), "error").Inc()
		return nil, err
	}
	metrics.Downloads.WithLabelValues(f.Name(), "ok").Inc()
	metrics.DownloadedBytes.WithLabelValues(f.Name()).Add(float64(n))

	location := "ftp://" + f.addr + remote
	return &Fetched{Path: local, Location: location, release: removeFunc(local)}, nil
}

// listed reports whether name appears in an NLST reply. Servers differ in
// whether they return bare names or full paths.
func listed(names []string, name string) bool {
	for _, n := range names {
		if path.Base(n) == name {
			return true
		}
	}
	return false
}
