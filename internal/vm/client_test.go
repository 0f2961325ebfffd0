package vm

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rtm0/icedrift/internal/drift"
)

var testCells = []drift.Cell{
	{Timestamp: 1704196800000, Row: 3, Col: 4, Lat: 80.123, Lon: -45.5, DX: 100000, DY: -5000, U: 57.87037, V: -2.89352, Speed: 57.94266},
	{Timestamp: 1704196800000, Row: 3, Col: 5, Lat: 80.2, Lon: -44.9, DX: 0, DY: 0},
}

func TestCellToInfluxDB(t *testing.T) {
	var sb strings.Builder
	cellToInfluxDB(&sb, &testCells[0], "icedrift")
	want := "icedrift,row=3,col=4,lat=80.12,lon=-45.50 dx=100000.0,dy=-5000.0,u=57.8704,v=-2.8935,speed=57.9427 1704196800000"
	if got := sb.String(); got != want {
		t.Errorf("cellToInfluxDB =\n%s\nwant\n%s", got, want)
	}
}

func TestCellToCSV(t *testing.T) {
	var sb strings.Builder
	cellToCSV(&sb, &testCells[0], "icedrift")
	want := "1704196800000,3,4,80.12,-45.50,100000.0,-5000.0,57.8704,-2.8935,57.9427"
	if got := sb.String(); got != want {
		t.Errorf("cellToCSV = %q, want %q", got, want)
	}
}

func TestNewClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		url       string
		prefix    string
		wantQuery string
		wantErr   bool
	}{
		{"http://localhost:8428/write", "icedrift", "precision=ms", false},
		{"http://localhost:8428/api/v1/import/csv", "osisaf", "format=1%3Atime%3Aunix_ms%2C2%3Alabel%3Arow", false},
		{"http://localhost:8428/api/v1/import/prometheus", "icedrift", "", true},
		{"http://localhost:8428/write", "bad prefix", "", true},
	}
	for _, tt := range tests {
		c, err := NewClient(logger, tt.url, 2, tt.prefix)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewClient(%q, %q) error = %v, wantErr %v", tt.url, tt.prefix, err, tt.wantErr)
			continue
		}
		if err == nil && !strings.Contains(c.insertURL, tt.wantQuery) {
			t.Errorf("insertURL = %q, want it to contain %q", c.insertURL, tt.wantQuery)
		}
	}
}

func TestInsert(t *testing.T) {
	var mu sync.Mutex
	var body, query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body, query = string(b), r.URL.RawQuery
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL+"/write", 1, "icedrift")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if !c.Insert(testCells) {
		t.Fatal("Insert reported failure")
	}

	mu.Lock()
	defer mu.Unlock()
	if query != "precision=ms" {
		t.Errorf("query = %q", query)
	}
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("posted %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[1], "icedrift,row=3,col=5,") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestInsertFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad line", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL+"/write", 1, "icedrift")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Insert(testCells) {
		t.Error("Insert reported success on 400")
	}
}
