package drift

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"
)

// Projection describes the polar stereographic grid of the product. Its
// parameters are read from the grid mapping variable and never change.
type Projection struct {
	// CentralMeridian is the straight vertical longitude from the pole.
	CentralMeridian float64
	// StandardParallel is the latitude of true scale.
	StandardParallel float64
	// LatitudeOfOrigin is 90 for the northern hemisphere grid.
	LatitudeOfOrigin float64
	// SemiMajor and SemiMinor are the ellipsoid axes in meters. Zero means
	// WGS84.
	SemiMajor float64
	SemiMinor float64
}

func (p Projection) ellipsoid() string {
	if p.SemiMajor > 0 && p.SemiMinor > 0 {
		return " +a=" + formatFloat(p.SemiMajor) + " +b=" + formatFloat(p.SemiMinor)
	}
	return " +ellps=WGS84"
}

// Proj4 renders the projection as a PROJ definition string in meters.
func (p Projection) Proj4() string {
	return "+proj=stere" +
		" +lat_0=" + formatFloat(p.LatitudeOfOrigin) +
		" +lat_ts=" + formatFloat(p.StandardParallel) +
		" +lon_0=" + formatFloat(p.CentralMeridian) +
		" +k=1 +x_0=0 +y_0=0" +
		p.ellipsoid() +
		" +units=m +no_defs"
}

// ToLonLat returns a transform from projected meters to longitude and
// latitude in degrees on the same ellipsoid.
func (p Projection) ToLonLat() (proj.Transformer, error) {
	sr, err := proj.Parse(p.Proj4())
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", p.Proj4(), err)
	}
	_, inverse, err := polarStereographic(sr)
	if err != nil {
		return nil, err
	}
	return inverse, nil
}

const (
	halfPi    = math.Pi / 2
	polarEps  = 1e-10
	maxPhiItr = 15
)

// polarStereographic builds the ellipsoidal polar stereographic transforms
// (Snyder, Map Projections: A Working Manual, 21-33 to 21-41) for sr.
// Forward maps longitude/latitude in degrees to meters, inverse the
// reverse.
func polarStereographic(sr *proj.SR) (forward, inverse proj.Transformer, err error) {
	lat0 := sr.Lat0
	if math.IsNaN(lat0) || math.Abs(math.Abs(lat0)-halfPi) > polarEps {
		return nil, nil, fmt.Errorf("latitude of origin %g is not a pole", lat0/deg2rad)
	}
	s := 1.0
	if lat0 < 0 {
		s = -1
	}
	latTS := sr.LatTS
	if math.IsNaN(latTS) {
		latTS = lat0
	}
	lon0 := orZero(sr.Long0)
	x0, y0 := orZero(sr.X0), orZero(sr.Y0)
	k0 := sr.K0
	if math.IsNaN(k0) {
		k0 = 1
	}
	a, e := sr.A, sr.E

	// rho = scale * t
	var scale float64
	phiC := s * latTS
	if math.Abs(phiC-halfPi) < polarEps {
		scale = 2 * a * k0 / math.Sqrt(math.Pow(1+e, 1+e)*math.Pow(1-e, 1-e))
	} else {
		sinC := math.Sin(phiC)
		scale = a * msfnz(e, sinC, math.Cos(phiC)) / tsfnz(e, phiC, sinC)
	}

	forward = func(lon, lat float64) (float64, float64, error) {
		phi := s * lat * deg2rad
		if phi <= -halfPi+polarEps {
			return math.NaN(), math.NaN(), fmt.Errorf("latitude %g is the opposite pole", lat)
		}
		rho := scale * tsfnz(e, phi, math.Sin(phi))
		dlon := lon*deg2rad - lon0
		return x0 + rho*math.Sin(dlon), y0 - s*rho*math.Cos(dlon), nil
	}
	inverse = func(x, y float64) (float64, float64, error) {
		x, y = x-x0, y-y0
		rho := math.Hypot(x, y)
		if rho < polarEps {
			return lon0 / deg2rad, s * 90, nil
		}
		phi, err := phi2z(e, rho/scale)
		if err != nil {
			return math.NaN(), math.NaN(), err
		}
		lon := normalizeLon(lon0 + math.Atan2(x, -s*y))
		return lon / deg2rad, s * phi / deg2rad, nil
	}
	return forward, inverse, nil
}

const deg2rad = math.Pi / 180

func orZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func normalizeLon(lon float64) float64 {
	for lon > math.Pi {
		lon -= 2 * math.Pi
	}
	for lon < -math.Pi {
		lon += 2 * math.Pi
	}
	return lon
}

func msfnz(e, sinPhi, cosPhi float64) float64 {
	con := e * sinPhi
	return cosPhi / math.Sqrt(1-con*con)
}

func tsfnz(e, phi, sinPhi float64) float64 {
	con := e * sinPhi
	return math.Tan(0.5*(halfPi-phi)) / math.Pow((1-con)/(1+con), 0.5*e)
}

// phi2z inverts tsfnz by fixed point iteration.
func phi2z(e, ts float64) (float64, error) {
	phi := halfPi - 2*math.Atan(ts)
	for i := 0; i < maxPhiItr; i++ {
		con := e * math.Sin(phi)
		dphi := halfPi - 2*math.Atan(ts*math.Pow((1-con)/(1+con), 0.5*e)) - phi
		phi += dphi
		if math.Abs(dphi) <= polarEps {
			return phi, nil
		}
	}
	return math.NaN(), fmt.Errorf("latitude did not converge for t=%g", ts)
}

// Geographic converts projected positions to latitude and longitude grids.
// Cells with a missing position stay NaN.
func (p Projection) Geographic(xs, ys *Grid) (lat, lon *Grid, err error) {
	if !xs.SameShape(ys) {
		return nil, nil, fmt.Errorf("x is %dx%d, y is %dx%d: %w", xs.NY, xs.NX, ys.NY, ys.NX, ErrShape)
	}
	t, err := p.ToLonLat()
	if err != nil {
		return nil, nil, err
	}
	lat = NewGrid(xs.NY, xs.NX, "degrees_north")
	lon = NewGrid(xs.NY, xs.NX, "degrees_east")
	for k := range xs.Data {
		x, y := xs.Data[k], ys.Data[k]
		if math.IsNaN(x) || math.IsNaN(y) {
			lat.Data[k], lon.Data[k] = math.NaN(), math.NaN()
			continue
		}
		lo, la, err := t(x, y)
		if err != nil {
			return nil, nil, fmt.Errorf("transform (%g, %g): %w", x, y, err)
		}
		lat.Data[k], lon.Data[k] = la, lo
	}
	return lat, lon, nil
}
