package drift

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	unitMeters  = "m"
	unitSeconds = "s"
	unitCMPerS  = "cm/s"
)

var lengthScales = map[string]float64{
	"m":          1,
	"meter":      1,
	"meters":     1,
	"metre":      1,
	"metres":     1,
	"km":         1000,
	"kilometer":  1000,
	"kilometers": 1000,
	"kilometre":  1000,
	"kilometres": 1000,
	"cm":         0.01,
	"mm":         0.001,
}

// metersPer returns the factor converting a length in units to meters.
func metersPer(units string) (float64, error) {
	if f, ok := lengthScales[strings.ToLower(strings.TrimSpace(units))]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unknown length unit %q", units)
}

// degreesPer returns the factor converting an angle in units to degrees.
func degreesPer(units string) (float64, error) {
	u := strings.ToLower(strings.TrimSpace(units))
	switch {
	case strings.HasPrefix(u, "degree"):
		return 1, nil
	case u == "rad" || u == "radian" || u == "radians":
		return 180 / math.Pi, nil
	}
	return 0, fmt.Errorf("unknown angle unit %q", units)
}

var durationUnits = map[string]time.Duration{
	"s":       time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hr":      time.Hour,
	"hrs":     time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       24 * time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

// durationUnit parses a plain time unit such as "seconds".
func durationUnit(units string) (time.Duration, error) {
	if d, ok := durationUnits[strings.ToLower(strings.TrimSpace(units))]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", units)
}

var epochLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// timeAxis decodes CF time units of the form "<unit> since <epoch>".
type timeAxis struct {
	unit  time.Duration
	epoch time.Time
}

func parseTimeUnits(units string) (timeAxis, error) {
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return timeAxis{}, fmt.Errorf("time units %q have no epoch", units)
	}
	d, err := durationUnit(unit)
	if err != nil {
		return timeAxis{}, err
	}
	since = strings.TrimSpace(since)
	since = strings.TrimSuffix(since, " UTC")
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, since); err == nil {
			return timeAxis{unit: d, epoch: t.UTC()}, nil
		}
	}
	return timeAxis{}, fmt.Errorf("cannot parse epoch %q", since)
}

// At converts an offset along the axis to an absolute time, rounded to the
// millisecond.
func (a timeAxis) At(v float64) time.Time {
	ms := math.Round(v * float64(a.unit/time.Millisecond))
	return a.epoch.Add(time.Duration(ms) * time.Millisecond)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
