package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCellsExported(t *testing.T) {
	before := testutil.ToFloat64(CellsExported.WithLabelValues("csv"))
	CellsExported.WithLabelValues("csv").Add(42)
	if got := testutil.ToFloat64(CellsExported.WithLabelValues("csv")) - before; got != 42 {
		t.Errorf("cells exported delta = %g, want 42", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	CatalogLookups.WithLabelValues("thredds", "found").Inc()
	RecordsDerived.Inc()

	path := filepath.Join(t.TempDir(), "icedrift.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, name := range []string{
		`icedrift_catalog_lookups_total{result="found",source="thredds"}`,
		"icedrift_records_derived_total",
	} {
		if !strings.Contains(string(b), name) {
			t.Errorf("textfile has no %s:\n%s", name, b)
		}
	}
}
