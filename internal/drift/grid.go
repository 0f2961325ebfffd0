package drift

import "math"

// Grid is a 2-D field on the product grid, stored row-major with y as the
// slow axis. Missing values are NaN.
type Grid struct {
	NY, NX int
	Data   []float64
	Units  string
}

// NewGrid allocates a zero filled grid.
func NewGrid(ny, nx int, units string) *Grid {
	return &Grid{NY: ny, NX: nx, Data: make([]float64, ny*nx), Units: units}
}

// At returns the value in row i, column j.
func (g *Grid) At(i, j int) float64 {
	return g.Data[i*g.NX+j]
}

// Set stores v in row i, column j.
func (g *Grid) Set(i, j int, v float64) {
	g.Data[i*g.NX+j] = v
}

// SameShape reports whether g and o cover the same number of rows and
// columns.
func (g *Grid) SameShape(o *Grid) bool {
	return g.NY == o.NY && g.NX == o.NX
}

// Valid returns the finite values of the grid.
func (g *Grid) Valid() []float64 {
	vals := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	return vals
}

// combine applies f cell by cell over grids of the same shape.
func combine(units string, f func(a, b float64) float64, a, b *Grid) *Grid {
	out := NewGrid(a.NY, a.NX, units)
	for k := range out.Data {
		out.Data[k] = f(a.Data[k], b.Data[k])
	}
	return out
}

// meshgrid spreads 1-D axes over the grid: rows follow y, columns follow x.
func meshgrid(x, y []float64, units string) (*Grid, *Grid) {
	xs := NewGrid(len(y), len(x), units)
	ys := NewGrid(len(y), len(x), units)
	for i := range y {
		for j := range x {
			xs.Set(i, j, x[j])
			ys.Set(i, j, y[i])
		}
	}
	return xs, ys
}
