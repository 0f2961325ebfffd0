package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rtm0/icedrift/internal/osisaf"
)

const catalogXML = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="http://www.unidata.ucar.edu/namespaces/thredds/InvCatalog/v1.0" xmlns:xlink="http://www.w3.org/1999/xlink" name="Catalog" version="1.2.1">
  <service name="all" serviceType="Compound" base="">
    <service name="odap" serviceType="OpenDAP" base="/thredds/dodsC/" />
    <service name="http" serviceType="HTTPServer" base="/thredds/fileServer/" />
    <service name="wms" serviceType="WMS" base="/thredds/wms/" />
  </service>
  <dataset name="2024/01" ID="osisaf/met.no/ice/drift_lr/merged/2024/01">
    <metadata inherited="true">
      <serviceName>all</serviceName>
    </metadata>
    <dataset name="ice_drift_nh_polstere-625_multi-oi_202401011200-202401031200.nc" ID="drift_lr/merged/2024/01/a" urlPath="osisaf/met.no/ice/drift_lr/merged/2024/01/ice_drift_nh_polstere-625_multi-oi_202401011200-202401031200.nc">
      <dataSize units="Kbytes">612.4</dataSize>
      <date type="modified">2024-01-04T08:15:00Z</date>
    </dataset>
    <dataset name="ice_drift_nh_polstere-625_multi-oi_202401021200-202401041200.nc" ID="drift_lr/merged/2024/01/b" urlPath="osisaf/met.no/ice/drift_lr/merged/2024/01/ice_drift_nh_polstere-625_multi-oi_202401021200-202401041200.nc">
      <dataSize units="Kbytes">611.9</dataSize>
    </dataset>
  </dataset>
</catalog>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func catalogServer(t *testing.T, fileStatus *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/thredds/catalog/osisaf/met.no/ice/drift_lr/merged/2024/01/catalog.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, catalogXML)
	})
	mux.HandleFunc("/thredds/fileServer/osisaf/met.no/ice/drift_lr/merged/2024/01/", func(w http.ResponseWriter, r *http.Request) {
		if fileStatus != nil {
			if code := fileStatus.Swap(0); code != 0 {
				w.WriteHeader(int(code))
				return
			}
		}
		io.WriteString(w, "CDF"+strings.TrimPrefix(r.URL.Path, "/thredds/fileServer/"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestThredds(t *testing.T, srv *httptest.Server) *Thredds {
	t.Helper()
	th, err := NewThredds(testLogger(), srv.URL+"/thredds/catalog/osisaf/met.no/ice/drift_lr/merged/")
	if err != nil {
		t.Fatalf("NewThredds: %v", err)
	}
	th.tempDir = t.TempDir()
	th.maxElapsed = 10 * time.Second
	return th
}

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog("https://thredds.met.no/thredds/catalog/osisaf/met.no/ice/drift_lr/merged/2024/01/catalog.xml", []byte(catalogXML))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}

	files := cat.Files()
	if len(files) != 2 {
		t.Fatalf("len(Files()) = %d, want 2", len(files))
	}
	if files[0].Size.Value != 612.4 || files[0].Size.Units != "Kbytes" {
		t.Errorf("Size = %+v", files[0].Size)
	}

	ds, ok := cat.Lookup("ice_drift_nh_polstere-625_multi-oi_202401011200-202401031200.nc")
	if !ok {
		t.Fatal("Lookup did not find listed file")
	}
	got, err := cat.FileURL(ds)
	if err != nil {
		t.Fatalf("FileURL: %v", err)
	}
	want := "https://thredds.met.no/thredds/fileServer/osisaf/met.no/ice/drift_lr/merged/2024/01/ice_drift_nh_polstere-625_multi-oi_202401011200-202401031200.nc"
	if got != want {
		t.Errorf("FileURL = %q, want %q", got, want)
	}

	if _, ok := cat.Lookup("ice_drift_nh_polstere-625_multi-oi_202401101200-202401121200.nc"); ok {
		t.Error("Lookup found a file that is not listed")
	}
}

func TestParseCatalogWithoutHTTPServer(t *testing.T) {
	doc := `<catalog><service name="odap" serviceType="OpenDAP" base="/dodsC/"/><dataset name="a.nc" urlPath="x/a.nc"/></catalog>`
	cat, err := ParseCatalog("http://example.com/catalog.xml", []byte(doc))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	ds, ok := cat.Lookup("a.nc")
	if !ok {
		t.Fatal("Lookup(a.nc) failed")
	}
	if _, err := cat.FileURL(ds); err == nil {
		t.Error("FileURL succeeded without an HTTPServer service")
	}
}

func TestThreddsFetch(t *testing.T) {
	srv := catalogServer(t, nil)
	th := newTestThredds(t, srv)

	p := osisaf.For(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	f, err := th.Fetch(context.Background(), p)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	b, err := os.ReadFile(f.Path)
	if err != nil {
		t.Fatalf("read fetched file: %v", err)
	}
	if !strings.HasSuffix(string(b), p.Filename()) {
		t.Errorf("fetched content = %q", b)
	}
	if !strings.HasSuffix(f.Location, "/thredds/fileServer/osisaf/met.no/ice/drift_lr/merged/2024/01/"+p.Filename()) {
		t.Errorf("Location = %q", f.Location)
	}

	if err := f.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(f.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary file still exists after Release: %v", err)
	}
}

func TestThreddsFetchNotListed(t *testing.T) {
	srv := catalogServer(t, nil)
	th := newTestThredds(t, srv)

	p := osisaf.For(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	_, err := th.Fetch(context.Background(), p)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch error = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "2024/01") {
		t.Errorf("error %q does not name the catalog month", err)
	}
}

func TestThreddsMissingCatalog(t *testing.T) {
	srv := catalogServer(t, nil)
	th := newTestThredds(t, srv)

	p := osisaf.For(time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC))
	if _, err := th.Fetch(context.Background(), p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch error = %v, want ErrNotFound", err)
	}
}

func TestThreddsRetriesServerErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := catalogServer(t, &status)
	th := newTestThredds(t, srv)

	p := osisaf.For(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	f, err := th.Fetch(context.Background(), p)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer f.Release()
}

func TestThreddsClientErrorIsFinal(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusForbidden)
	srv := catalogServer(t, &status)
	th := newTestThredds(t, srv)

	p := osisaf.For(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	_, err := th.Fetch(context.Background(), p)
	if err == nil {
		t.Fatal("Fetch succeeded after 403")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("403 reported as not found: %v", err)
	}
}

func TestNewThreddsRejectsNonHTTP(t *testing.T) {
	if _, err := NewThredds(testLogger(), "/local/dir"); err == nil {
		t.Error("NewThredds accepted a path")
	}
}

func TestLocalFetch(t *testing.T) {
	root := t.TempDir()
	p := osisaf.For(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	path := p.LocalPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("CDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLocal(root)
	f, err := l.Fetch(context.Background(), p)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if f.Path != filepath.Join(root, "2025", "01", p.Filename()) {
		t.Errorf("Path = %q", f.Path)
	}
	if err := f.Release(); err != nil {
		t.Errorf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Release removed the local archive file: %v", err)
	}
}

func TestLocalFetchMissing(t *testing.T) {
	l := NewLocal(t.TempDir())
	p := osisaf.For(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if _, err := l.Fetch(context.Background(), p); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Fetch error = %v, want ErrNotFound", err)
	}
}

func TestListed(t *testing.T) {
	names := []string{
		"/archive/ice/drift_lr/merged/2024/01/a.nc",
		"b.nc",
	}
	for _, name := range []string{"a.nc", "b.nc"} {
		if !listed(names, name) {
			t.Errorf("listed(%q) = false", name)
		}
	}
	if listed(names, "c.nc") {
		t.Error("listed(c.nc) = true")
	}
}
