// Package drifttest writes small drift product files for tests.
package drifttest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/rtm0/icedrift/internal/osisaf"
)

// Fill is the fill value of the displacement and end position fields.
const Fill = float32(-1e10)

// Epoch is the reference time of the time axis.
var Epoch = time.Date(1978, 1, 1, 0, 0, 0, 0, time.UTC)

// WriteArchive writes the product centered on date below root in the
// YYYY/MM layout of the OSI-SAF archive and returns its path.
//
// The grid is 2x3 with xc = -100, 0, 100 km and yc = 200, 100 km. Every
// cell moves 100 km east and, according to dY_v1p4, 50 km north; the
// uncorrected dY says 40 km. Cell (0, 1) is missing.
func WriteArchive(root string, date time.Time) (string, error) {
	p := osisaf.For(date)
	path := p.LocalPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	t0 := p.Before.Add(12 * time.Hour)
	t1 := p.After.Add(12 * time.Hour)
	if err := Write(path, t0, t1); err != nil {
		return "", err
	}
	return path, nil
}

// Write writes the product described by WriteArchive to path with the
// displacement interval [t0, t1].
func Write(path string, t0, t1 time.Time) (err error) {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cw.Close(); err == nil {
			err = cerr
		}
	}()

	seconds := func(t time.Time) float64 { return t.Sub(Epoch).Seconds() }
	grid := []string{"yc", "xc"}
	timeGrid := []string{"time", "yc", "xc"}

	vars := []struct {
		name  string
		val   any
		dims  []string
		attrs map[string]any
	}{
		{"time", []float64{seconds(t1)}, []string{"time"}, map[string]any{"units": "seconds since 1978-01-01 00:00:00"}},
		{"time_bnds", [][]float64{{seconds(t0), seconds(t1)}}, []string{"time", "nv"}, nil},
		{"xc", []float32{-100, 0, 100}, []string{"xc"}, map[string]any{"units": "km"}},
		{"yc", []float32{200, 100}, []string{"yc"}, map[string]any{"units": "km"}},
		{"lat", [][]float32{{80, 80.5, 81}, {79, 79.5, 80}}, grid, map[string]any{"units": "degrees_north"}},
		{"lon", [][]float32{{-45, -40, -35}, {-45, -40, -35}}, grid, map[string]any{"units": "degrees_east"}},
		{"lat1", [][][]float32{{{80.5, Fill, 81.5}, {79.5, 80, 80.5}}}, timeGrid, map[string]any{"units": "degrees_north", "_FillValue": Fill}},
		{"lon1", [][][]float32{{{-44, Fill, -34}, {-44, -39, -34}}}, timeGrid, map[string]any{"units": "degrees_east", "_FillValue": Fill}},
		{"dX", [][][]float32{{{100, Fill, 100}, {100, 100, 100}}}, timeGrid, map[string]any{"units": "km", "_FillValue": Fill}},
		{"dY", [][][]float32{{{40, Fill, 40}, {40, 40, 40}}}, timeGrid, map[string]any{"units": "km", "_FillValue": Fill}},
		{"dY_v1p4", [][][]float32{{{50, Fill, 50}, {50, 50, 50}}}, timeGrid, map[string]any{"units": "km", "_FillValue": Fill}},
		{"Polar_Stereographic_Grid", int32(0), nil, map[string]any{
			"grid_mapping_name":                     "polar_stereographic",
			"straight_vertical_longitude_from_pole": float32(-45),
			"latitude_of_projection_origin":         float32(90),
			"standard_parallel":                     float32(70),
			"semi_major_axis":                       float32(6378273),
			"semi_minor_axis":                       float32(6356889.5),
		}},
	}
	for _, v := range vars {
		am, err := attributes(v.attrs)
		if err != nil {
			return err
		}
		if err := cw.AddVar(v.name, api.Variable{Values: v.val, Dimensions: v.dims, Attributes: am}); err != nil {
			return fmt.Errorf("add %s: %w", v.name, err)
		}
	}

	global, err := attributes(map[string]any{"product_id": "osi-405-c", "title": "Low resolution sea ice drift"})
	if err != nil {
		return err
	}
	return cw.AddGlobalAttrs(global)
}

func attributes(values map[string]any) (*util.OrderedMap, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	if values == nil {
		values = map[string]any{}
	}
	return util.NewOrderedMap(keys, values)
}
