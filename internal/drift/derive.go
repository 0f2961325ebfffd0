package drift

import (
	"errors"
	"math"
	"time"
)

const (
	cmPerMeter    = 100
	secondsPerDay = 86400
)

// ErrInterval is returned when a product's end time does not follow its
// start time, which leaves velocity undefined.
var ErrInterval = errors.New("displacement interval is not positive")

// Derived holds the quantities computed from the raw fields.
type Derived struct {
	// XMid and YMid are the positions halfway along each displacement.
	XMid, YMid *Grid
	// XFinal and YFinal are the positions at the end of each displacement.
	XFinal, YFinal *Grid
	// TimeMid is halfway between T0 and T1.
	TimeMid time.Time
	// Elapsed is T1 - T0; ElapsedDays is the same in days.
	Elapsed     time.Duration
	ElapsedDays float64
	// U, V and Speed are the drift velocity components and magnitude in
	// cm/s.
	U, V, Speed *Grid
}

// Derive computes midpoint and final positions and drift velocity.
//
// A missing displacement counts as no motion for the midpoint, so the
// midpoint of such a cell is its initial position. Final positions and
// velocities of those cells stay missing.
func Derive(f *Fields) (*Derived, error) {
	elapsed := f.T1.Sub(f.T0)
	if elapsed <= 0 {
		return nil, ErrInterval
	}
	days := elapsed.Hours() / 24

	x, y := f.Initial()
	d := &Derived{
		XMid:        combine(unitMeters, halfway, x, f.DX),
		YMid:        combine(unitMeters, halfway, y, f.DY),
		XFinal:      combine(unitMeters, plus, x, f.DX),
		YFinal:      combine(unitMeters, plus, y, f.DY),
		TimeMid:     f.T0.Add(elapsed / 2),
		Elapsed:     elapsed,
		ElapsedDays: days,
		U:           velocity(f.DX, days),
		V:           velocity(f.DY, days),
	}
	d.Speed = combine(unitCMPerS, math.Hypot, d.U, d.V)
	return d, nil
}

func halfway(pos, disp float64) float64 {
	if math.IsNaN(disp) {
		return pos
	}
	return pos + disp/2
}

func plus(pos, disp float64) float64 {
	return pos + disp
}

// velocity converts a displacement in meters over days into cm/s.
func velocity(disp *Grid, days float64) *Grid {
	v := NewGrid(disp.NY, disp.NX, unitCMPerS)
	for k, m := range disp.Data {
		v.Data[k] = m / days * cmPerMeter / secondsPerDay
	}
	return v
}
