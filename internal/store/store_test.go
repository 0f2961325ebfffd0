package store

import (
	"database/sql"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rtm0/icedrift/internal/drift"
	"github.com/rtm0/icedrift/internal/osisaf"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testProduct(date time.Time) Product {
	return Product{
		Date:        date,
		Filename:    "ice_drift_nh_polstere-625_multi-oi_" + date.AddDate(0, 0, -1).Format("20060102") + "1200-" + date.AddDate(0, 0, 1).Format("20060102") + "1200.nc",
		Source:      "thredds",
		Location:    "https://thredds.met.no/thredds/fileServer/x.nc",
		T0:          date.AddDate(0, 0, -1).Add(12 * time.Hour),
		T1:          date.AddDate(0, 0, 1).Add(12 * time.Hour),
		ElapsedDays: 2,
		DYVariable:  "dY",
		ValidCells:  1200,
		MeanSpeed:   sql.NullFloat64{Float64: 8.5, Valid: true},
		MaxSpeed:    sql.NullFloat64{Float64: 41.2, Valid: true},
		ProcessedAt: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestMigrate(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}

	// Running again is a no-op.
	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestUpsertAndGetProduct(t *testing.T) {
	store := setupTestStore(t)

	p := testProduct(day(2024, 1, 2))
	if err := store.UpsertProduct(p); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}

	got, err := store.GetProduct(day(2024, 1, 2))
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got == nil {
		t.Fatal("GetProduct returned nil")
	}
	if !got.Date.Equal(p.Date) {
		t.Errorf("Date = %s, want %s", got.Date, p.Date)
	}
	if got.Filename != p.Filename || got.Source != "thredds" || got.DYVariable != "dY" {
		t.Errorf("product = %+v", got)
	}
	if !got.T0.Equal(p.T0) || !got.T1.Equal(p.T1) {
		t.Errorf("T0/T1 = %s/%s, want %s/%s", got.T0, got.T1, p.T0, p.T1)
	}
	if !got.MeanSpeed.Valid || got.MeanSpeed.Float64 != 8.5 {
		t.Errorf("MeanSpeed = %+v", got.MeanSpeed)
	}

	p.ValidCells = 900
	p.Source = "ftp"
	if err := store.UpsertProduct(p); err != nil {
		t.Fatalf("second UpsertProduct: %v", err)
	}
	got, err = store.GetProduct(day(2024, 1, 2))
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.ValidCells != 900 || got.Source != "ftp" {
		t.Errorf("upsert did not replace entry: %+v", got)
	}
}

func TestGetProductMissing(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.GetProduct(day(2024, 1, 2))
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got != nil {
		t.Errorf("GetProduct = %+v, want nil", got)
	}
}

func TestListProducts(t *testing.T) {
	store := setupTestStore(t)

	for _, d := range []time.Time{day(2024, 1, 3), day(2024, 1, 1), day(2024, 1, 2), day(2024, 2, 1)} {
		if err := store.UpsertProduct(testProduct(d)); err != nil {
			t.Fatalf("UpsertProduct(%s): %v", d, err)
		}
	}

	ps, err := store.ListProducts(day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(ps) != 3 {
		t.Fatalf("len = %d, want 3", len(ps))
	}
	for i, want := range []time.Time{day(2024, 1, 1), day(2024, 1, 2), day(2024, 1, 3)} {
		if !ps[i].Date.Equal(want) {
			t.Errorf("ps[%d].Date = %s, want %s", i, ps[i].Date, want)
		}
	}
}

func TestMarkMissing(t *testing.T) {
	store := setupTestStore(t)
	checked := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	if err := store.MarkMissing(day(2024, 1, 5), "a.nc", "thredds", checked); err != nil {
		t.Fatalf("MarkMissing: %v", err)
	}
	if err := store.MarkMissing(day(2024, 1, 6), "b.nc", "thredds", checked); err != nil {
		t.Fatalf("MarkMissing: %v", err)
	}

	dates, err := store.MissingDates(day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatalf("MissingDates: %v", err)
	}
	if len(dates) != 2 || !dates[0].Equal(day(2024, 1, 5)) {
		t.Fatalf("MissingDates = %v", dates)
	}

	// Processing the product later clears the marker.
	if err := store.UpsertProduct(testProduct(day(2024, 1, 5))); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
	dates, err = store.MissingDates(day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatalf("MissingDates: %v", err)
	}
	if len(dates) != 1 || !dates[0].Equal(day(2024, 1, 6)) {
		t.Errorf("MissingDates after upsert = %v", dates)
	}
}

func TestProductFromRecord(t *testing.T) {
	rec := &drift.Record{
		Product:  osisaf.For(day(2024, 12, 31)),
		Location: "/data/2025/01/x.nc",
		Fields: &drift.Fields{
			T0:         time.Date(2024, 12, 30, 12, 0, 0, 0, time.UTC),
			T1:         time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
			DYVariable: "dY_v1p4",
		},
		Derived: &drift.Derived{
			ElapsedDays: 2,
			Speed:       &drift.Grid{NY: 1, NX: 3, Data: []float64{10, 20, math.NaN()}},
		},
	}

	p := ProductFromRecord(rec, "local", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
	if p.Filename != "ice_drift_nh_polstere-625_multi-oi_202412301200-202501011200.nc" {
		t.Errorf("Filename = %q", p.Filename)
	}
	if p.ValidCells != 2 || p.MeanSpeed.Float64 != 15 || p.MaxSpeed.Float64 != 20 {
		t.Errorf("summary = %d %+v %+v", p.ValidCells, p.MeanSpeed, p.MaxSpeed)
	}
	if p.DYVariable != "dY_v1p4" || p.Source != "local" {
		t.Errorf("product = %+v", p)
	}

	store := setupTestStore(t)
	if err := store.UpsertProduct(p); err != nil {
		t.Fatalf("UpsertProduct: %v", err)
	}
}
