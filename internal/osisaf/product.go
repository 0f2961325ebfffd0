// Package osisaf knows the naming and directory conventions of the OSI-SAF
// low resolution sea ice drift product.
package osisaf

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// FilePrefix is shared by every merged northern hemisphere drift file.
	FilePrefix = "ice_drift_nh_polstere-625_multi-oi_"
	// FileSuffix is the NetCDF extension of the product files.
	FileSuffix = ".nc"

	// Each product starts and ends at noon UTC.
	stampLayout = "20060102"
	stampHour   = "1200"
)

// Product identifies the drift file centered on Date. Displacements are
// measured from noon of the day before to noon of the day after.
type Product struct {
	Date   time.Time
	Before time.Time
	After  time.Time
}

// For returns the product covering the 48 hour window centered on date.
func For(date time.Time) Product {
	d := day(date)
	return Product{
		Date:   d,
		Before: d.AddDate(0, 0, -1),
		After:  d.AddDate(0, 0, 1),
	}
}

// Range returns one product per calendar day in [from, to].
func Range(from, to time.Time) []Product {
	from, to = day(from), day(to)
	var ps []Product
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		ps = append(ps, For(d))
	}
	return ps
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func stamp(t time.Time) string {
	return t.Format(stampLayout) + stampHour
}

// Filename returns the vendor file name, e.g.
// ice_drift_nh_polstere-625_multi-oi_202401011200-202401031200.nc.
func (p Product) Filename() string {
	return FilePrefix + stamp(p.Before) + "-" + stamp(p.After) + FileSuffix
}

// CatalogMonth returns the year and month of the directory the product is
// filed under. That is the month of the later bracketing date, so a product
// centered on December 31 lives in January of the following year.
func (p Product) CatalogMonth() (int, time.Month) {
	if p.Date.Month() == time.December && p.Date.Day() == 31 {
		return p.Date.Year() + 1, time.January
	}
	return p.After.Year(), p.After.Month()
}

// Dir returns the YYYY/MM directory of the product relative to an archive
// root.
func (p Product) Dir() string {
	y, m := p.CatalogMonth()
	return fmt.Sprintf("%d/%02d", y, int(m))
}

// LocalPath returns the location of the product inside a local archive laid
// out as root/YYYY/MM/file.
func (p Product) LocalPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(p.Dir()), p.Filename())
}

// CatalogURL returns the THREDDS catalog listing the product's month.
func (p Product) CatalogURL(root string) string {
	return strings.TrimRight(root, "/") + "/" + p.Dir() + "/catalog.xml"
}

// String implements fmt.Stringer.
func (p Product) String() string {
	return p.Filename()
}

// ParseFilename recovers the product from a vendor file name.
func ParseFilename(name string) (Product, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, FilePrefix) || !strings.HasSuffix(base, FileSuffix) {
		return Product{}, fmt.Errorf("%q is not an ice drift file name", name)
	}
	stamps := strings.TrimSuffix(strings.TrimPrefix(base, FilePrefix), FileSuffix)
	before, after, ok := strings.Cut(stamps, "-")
	if !ok {
		return Product{}, fmt.Errorf("%q has no time range", name)
	}
	b, err := parseStamp(before)
	if err != nil {
		return Product{}, fmt.Errorf("start of %q: %w", name, err)
	}
	a, err := parseStamp(after)
	if err != nil {
		return Product{}, fmt.Errorf("end of %q: %w", name, err)
	}
	if a.Sub(b) != 48*time.Hour {
		return Product{}, fmt.Errorf("%q does not span 48 hours", name)
	}
	return For(b.AddDate(0, 0, 1)), nil
}

func parseStamp(s string) (time.Time, error) {
	if !strings.HasSuffix(s, stampHour) {
		return time.Time{}, fmt.Errorf("stamp %q does not end at noon", s)
	}
	return time.Parse(stampLayout, strings.TrimSuffix(s, stampHour))
}
