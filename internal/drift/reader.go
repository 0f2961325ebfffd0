package drift

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// Variable names of the OSI-SAF low resolution drift product.
const (
	varX           = "xc"
	varY           = "yc"
	varLat         = "lat"
	varLon         = "lon"
	varLat1        = "lat1"
	varLon1        = "lon1"
	varDX          = "dX"
	varDY          = "dY"
	varDYCorrected = "dY_v1p4"
	varTime        = "time"
	varTimeBounds  = "time_bnds"
	varDT0         = "dt0"
	varDT1         = "dt1"
	varGridMapping = "Polar_Stereographic_Grid"
)

// ErrShape is returned when a field does not cover the product grid.
var ErrShape = errors.New("field shape does not match grid")

// Group is the part of a NetCDF group the reader needs. api.Group
// satisfies it.
type Group interface {
	ListVariables() []string
	GetVariable(name string) (*api.Variable, error)
	Attributes() api.AttributeMap
	Close()
}

// Reader extracts drift fields from an open product file.
type Reader struct {
	nc   Group
	vars []string
}

// Open opens a drift product file.
func Open(filePath string) (*Reader, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	return NewReader(nc), nil
}

// NewReader wraps an already opened group.
func NewReader(nc Group) *Reader {
	return &Reader{nc: nc, vars: nc.ListVariables()}
}

// Close releases the file handle.
func (r *Reader) Close() {
	r.nc.Close()
}

func (r *Reader) has(name string) bool {
	return slices.Contains(r.vars, name)
}

// Attributes returns a copy of the global attributes.
func (r *Reader) Attributes() map[string]any {
	return attributeSnapshot(r.nc.Attributes())
}

// Fields holds the raw product fields converted to meters, degrees and
// absolute times. All grids share the shape len(Y) x len(X).
type Fields struct {
	// X and Y are the projection axes in meters.
	X, Y []float64
	// Lat and Lon locate the start of each displacement.
	Lat, Lon *Grid
	// Lat1 and Lon1 locate the end of each displacement.
	Lat1, Lon1 *Grid
	// DX and DY are the displacements in meters.
	DX, DY *Grid
	// DYVariable names the variable DY was read from.
	DYVariable string
	// DT0 and DT1 are the per-cell time offsets in seconds, or nil when
	// the file does not carry them.
	DT0, DT1 *Grid
	// T0 and T1 bound the displacement interval.
	T0, T1 time.Time
}

// Shape returns the number of rows and columns of the grid.
func (f *Fields) Shape() (int, int) {
	return len(f.Y), len(f.X)
}

// Initial returns the start positions of every cell in projected meters.
func (f *Fields) Initial() (x, y *Grid) {
	return meshgrid(f.X, f.Y, unitMeters)
}

// Fields reads every field of the product. The corrected dY_v1p4
// displacement is used instead of dY when the file carries it.
func (r *Reader) Fields() (*Fields, error) {
	f := &Fields{}
	var err error

	if f.X, err = r.axis(varX); err != nil {
		return nil, err
	}
	if f.Y, err = r.axis(varY); err != nil {
		return nil, err
	}
	ny, nx := f.Shape()

	if f.Lat, err = r.angleGrid(varLat, ny, nx); err != nil {
		return nil, err
	}
	if f.Lon, err = r.angleGrid(varLon, ny, nx); err != nil {
		return nil, err
	}
	if f.Lat1, err = r.angleGrid(varLat1, ny, nx); err != nil {
		return nil, err
	}
	if f.Lon1, err = r.angleGrid(varLon1, ny, nx); err != nil {
		return nil, err
	}

	if f.DX, err = r.lengthGrid(varDX, ny, nx); err != nil {
		return nil, err
	}
	f.DYVariable = varDY
	if r.has(varDYCorrected) {
		f.DYVariable = varDYCorrected
	}
	if f.DY, err = r.lengthGrid(f.DYVariable, ny, nx); err != nil {
		return nil, err
	}

	if r.has(varDT0) {
		if f.DT0, err = r.durationGrid(varDT0, ny, nx); err != nil {
			return nil, err
		}
	}
	if r.has(varDT1) {
		if f.DT1, err = r.durationGrid(varDT1, ny, nx); err != nil {
			return nil, err
		}
	}

	if f.T0, f.T1, err = r.timeBounds(); err != nil {
		return nil, err
	}

	return f, nil
}

// variable reads a variable with missing values masked.
func (r *Reader) variable(name string) (*api.Variable, []float64, []int, error) {
	v, err := r.nc.GetVariable(name)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("variable %s: %w", name, err)
	}
	vals, shape, err := flatten(v.Values)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("variable %s: %w", name, err)
	}
	unpack(vals, v.Attributes)
	return v, vals, shape, nil
}

// axis reads a 1-D coordinate axis in meters.
func (r *Reader) axis(name string) ([]float64, error) {
	v, vals, shape, err := r.variable(name)
	if err != nil {
		return nil, err
	}
	if len(shape) != 1 {
		return nil, fmt.Errorf("axis %s has %d dimensions", name, len(shape))
	}
	units, _ := attrString(v.Attributes, "units")
	scale, err := metersPer(units)
	if err != nil {
		return nil, fmt.Errorf("axis %s: %w", name, err)
	}
	for k := range vals {
		vals[k] *= scale
	}
	return vals, nil
}

func (r *Reader) grid(name string, ny, nx int, scaleFor func(string) (float64, error), units string) (*Grid, error) {
	v, vals, shape, err := r.variable(name)
	if err != nil {
		return nil, err
	}
	shape = squeeze(shape, 2)
	if len(shape) != 2 || shape[0] != ny || shape[1] != nx {
		return nil, fmt.Errorf("%s has shape %v, grid is %dx%d: %w", name, shape, ny, nx, ErrShape)
	}
	if scaleFor != nil {
		from, _ := attrString(v.Attributes, "units")
		scale, err := scaleFor(from)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		for k := range vals {
			vals[k] *= scale
		}
	}
	return &Grid{NY: ny, NX: nx, Data: vals, Units: units}, nil
}

func (r *Reader) lengthGrid(name string, ny, nx int) (*Grid, error) {
	return r.grid(name, ny, nx, metersPer, unitMeters)
}

func (r *Reader) angleGrid(name string, ny, nx int) (*Grid, error) {
	units := "degrees_north"
	if name == varLon || name == varLon1 {
		units = "degrees_east"
	}
	return r.grid(name, ny, nx, degreesPer, units)
}

func (r *Reader) durationGrid(name string, ny, nx int) (*Grid, error) {
	return r.grid(name, ny, nx, func(units string) (float64, error) {
		d, err := durationUnit(units)
		if err != nil {
			return 0, err
		}
		return d.Seconds(), nil
	}, unitSeconds)
}

// timeBounds reads the start and end of the displacement interval. Bounds
// without units of their own use those of the time axis, as CF allows.
func (r *Reader) timeBounds() (time.Time, time.Time, error) {
	v, vals, _, err := r.variable(varTimeBounds)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(vals) < 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("%s has %d values, want 2", varTimeBounds, len(vals))
	}
	units, ok := attrString(v.Attributes, "units")
	if !ok {
		tv, err := r.nc.GetVariable(varTime)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("variable %s: %w", varTime, err)
		}
		units, _ = attrString(tv.Attributes, "units")
	}
	axis, err := parseTimeUnits(units)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("variable %s: %w", varTimeBounds, err)
	}
	return axis.At(vals[0]), axis.At(vals[1]), nil
}

// Projection reads the grid mapping of the product.
func (r *Reader) Projection() (Projection, error) {
	name, err := r.gridMapping()
	if err != nil {
		return Projection{}, err
	}
	v, err := r.nc.GetVariable(name)
	if err != nil {
		return Projection{}, fmt.Errorf("variable %s: %w", name, err)
	}

	var p Projection
	var ok bool
	if p.CentralMeridian, ok = attrFloat(v.Attributes, "straight_vertical_longitude_from_pole"); !ok {
		return Projection{}, fmt.Errorf("%s has no straight_vertical_longitude_from_pole", name)
	}
	if p.StandardParallel, ok = attrFloat(v.Attributes, "standard_parallel"); !ok {
		return Projection{}, fmt.Errorf("%s has no standard_parallel", name)
	}
	if p.LatitudeOfOrigin, ok = attrFloat(v.Attributes, "latitude_of_projection_origin"); !ok {
		p.LatitudeOfOrigin = 90
	}
	p.SemiMajor, _ = attrFloat(v.Attributes, "semi_major_axis")
	p.SemiMinor, _ = attrFloat(v.Attributes, "semi_minor_axis")
	return p, nil
}

// gridMapping finds the grid mapping variable, falling back to any variable
// declaring a polar stereographic grid_mapping_name.
func (r *Reader) gridMapping() (string, error) {
	if r.has(varGridMapping) {
		return varGridMapping, nil
	}
	for _, name := range r.vars {
		v, err := r.nc.GetVariable(name)
		if err != nil {
			continue
		}
		if gm, _ := attrString(v.Attributes, "grid_mapping_name"); gm == "polar_stereographic" {
			return name, nil
		}
	}
	return "", errors.New("no polar stereographic grid mapping")
}
