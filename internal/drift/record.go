package drift

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/rtm0/icedrift/internal/osisaf"
)

// Record is the extracted and derived content of one drift product. It is
// built once per requested date and not modified afterwards.
type Record struct {
	Product osisaf.Product
	// Location is where the product file was read from.
	Location string
	// Attributes are the global attributes of the file.
	Attributes map[string]any
	Projection Projection

	*Fields
	*Derived

	// XInit and YInit are the start positions in projected meters.
	XInit, YInit *Grid
	// LatMid and LonMid locate the midpoints, or are nil when the
	// projection could not be inverted.
	LatMid, LonMid *Grid
}

// Build reads fields, projection and attributes from r and derives the
// record. The reader can be closed once Build returns.
func Build(p osisaf.Product, location string, r *Reader) (*Record, error) {
	f, err := r.Fields()
	if err != nil {
		return nil, err
	}
	proj, err := r.Projection()
	if err != nil {
		return nil, err
	}
	d, err := Derive(f)
	if err != nil {
		return nil, err
	}
	x, y := f.Initial()
	return &Record{
		Product:    p,
		Location:   location,
		Attributes: r.Attributes(),
		Projection: proj,
		Fields:     f,
		Derived:    d,
		XInit:      x,
		YInit:      y,
	}, nil
}

// Cell is one grid cell of a record with a valid displacement, flattened for
// export.
type Cell struct {
	// Timestamp is the midpoint time in unix milliseconds.
	Timestamp      int64
	Row, Col       int
	X, Y           float64
	XMid, YMid     float64
	Lat, Lon       float64
	LatMid, LonMid float64
	Lat1, Lon1     float64
	DX, DY         float64
	U, V, Speed    float64
}

// Cells returns the cells whose displacement is known, row by row.
func (r *Record) Cells() []Cell {
	ts := r.TimeMid.UnixMilli()
	var cells []Cell
	for i := 0; i < r.DX.NY; i++ {
		for j := 0; j < r.DX.NX; j++ {
			dx, dy := r.DX.At(i, j), r.DY.At(i, j)
			if math.IsNaN(dx) || math.IsNaN(dy) {
				continue
			}
			c := Cell{
				Timestamp: ts,
				Row:       i,
				Col:       j,
				X:         r.XInit.At(i, j),
				Y:         r.YInit.At(i, j),
				XMid:      r.XMid.At(i, j),
				YMid:      r.YMid.At(i, j),
				Lat:       r.Lat.At(i, j),
				Lon:       r.Lon.At(i, j),
				LatMid:    math.NaN(),
				LonMid:    math.NaN(),
				Lat1:      r.Lat1.At(i, j),
				Lon1:      r.Lon1.At(i, j),
				DX:        dx,
				DY:        dy,
				U:         r.U.At(i, j),
				V:         r.V.At(i, j),
				Speed:     r.Speed.At(i, j),
			}
			if r.LatMid != nil && r.LonMid != nil {
				c.LatMid, c.LonMid = r.LatMid.At(i, j), r.LonMid.At(i, j)
			}
			cells = append(cells, c)
		}
	}
	return cells
}

// Summary condenses a record for logging and indexing.
type Summary struct {
	ValidCells int
	// MeanSpeed and MaxSpeed are in cm/s.
	MeanSpeed float64
	MaxSpeed  float64
}

// Summarize computes speed statistics over the cells with a known
// displacement.
func Summarize(r *Record) Summary {
	speeds := r.Speed.Valid()
	if len(speeds) == 0 {
		return Summary{}
	}
	return Summary{
		ValidCells: len(speeds),
		MeanSpeed:  floats.Sum(speeds) / float64(len(speeds)),
		MaxSpeed:   floats.Max(speeds),
	}
}

// LogAttrs returns the summary as key/value pairs suitable for logging.
func (s Summary) LogAttrs() []any {
	return []any{
		"validCells", s.ValidCells,
		"meanSpeedCmS", s.MeanSpeed,
		"maxSpeedCmS", s.MaxSpeed,
	}
}
