// Package sink writes drift cells to files and databases.
package sink

import (
	"strconv"

	"github.com/rtm0/icedrift/internal/drift"
)

// Row is the flat export schema of a drift cell.
type Row struct {
	Product   string  `parquet:"product"`
	Timestamp int64   `parquet:"timestamp"`
	Row       int32   `parquet:"row"`
	Col       int32   `parquet:"col"`
	X         float64 `parquet:"x"`
	Y         float64 `parquet:"y"`
	XMid      float64 `parquet:"x_mid"`
	YMid      float64 `parquet:"y_mid"`
	Lat       float64 `parquet:"lat"`
	Lon       float64 `parquet:"lon"`
	LatMid    float64 `parquet:"lat_mid"`
	LonMid    float64 `parquet:"lon_mid"`
	Lat1      float64 `parquet:"lat1"`
	Lon1      float64 `parquet:"lon1"`
	DX        float64 `parquet:"dx"`
	DY        float64 `parquet:"dy"`
	U         float64 `parquet:"u"`
	V         float64 `parquet:"v"`
	Speed     float64 `parquet:"speed"`
}

// Header names the CSV columns in Row order.
var Header = []string{
	"product", "timestamp", "row", "col",
	"x", "y", "x_mid", "y_mid",
	"lat", "lon", "lat_mid", "lon_mid", "lat1", "lon1",
	"dx", "dy", "u", "v", "speed",
}

// Rows converts the cells of a product to export rows.
func Rows(product string, cells []drift.Cell) []Row {
	rows := make([]Row, len(cells))
	for i, c := range cells {
		rows[i] = Row{
			Product:   product,
			Timestamp: c.Timestamp,
			Row:       int32(c.Row),
			Col:       int32(c.Col),
			X:         c.X,
			Y:         c.Y,
			XMid:      c.XMid,
			YMid:      c.YMid,
			Lat:       c.Lat,
			Lon:       c.Lon,
			LatMid:    c.LatMid,
			LonMid:    c.LonMid,
			Lat1:      c.Lat1,
			Lon1:      c.Lon1,
			DX:        c.DX,
			DY:        c.DY,
			U:         c.U,
			V:         c.V,
			Speed:     c.Speed,
		}
	}
	return rows
}

func (r *Row) record() []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		r.Product,
		strconv.FormatInt(r.Timestamp, 10),
		strconv.Itoa(int(r.Row)),
		strconv.Itoa(int(r.Col)),
		f(r.X), f(r.Y), f(r.XMid), f(r.YMid),
		f(r.Lat), f(r.Lon), f(r.LatMid), f(r.LonMid), f(r.Lat1), f(r.Lon1),
		f(r.DX), f(r.DY), f(r.U), f(r.V), f(r.Speed),
	}
}
