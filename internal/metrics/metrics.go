package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icedrift_catalog_lookups_total",
			Help: "Product lookups against a remote listing, by source and result",
		},
		[]string{"source", "result"},
	)

	Downloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icedrift_downloads_total",
			Help: "Product file downloads, by source and status",
		},
		[]string{"source", "status"},
	)

	DownloadedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icedrift_downloaded_bytes_total",
			Help: "Bytes of product files downloaded",
		},
		[]string{"source"},
	)

	RecordsDerived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "icedrift_records_derived_total",
			Help: "Drift records extracted and derived",
		},
	)

	MissingProducts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "icedrift_missing_products_total",
			Help: "Requested dates with no product available",
		},
	)

	CellsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icedrift_cells_exported_total",
			Help: "Grid cells written to an export sink",
		},
		[]string{"sink"},
	)
)

// WriteTextfile dumps the default registry in the node exporter textfile
// format, for batch runs that exit before they could be scraped.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
