package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/parquet-go/parquet-go"

	"github.com/rtm0/icedrift/internal/metrics"
)

// WriteParquet writes rows as a single Parquet file.
func WriteParquet(w io.Writer, rows []Row) error {
	pw := parquet.NewGenericWriter[Row](w)
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	metrics.CellsExported.WithLabelValues("parquet").Add(float64(len(rows)))
	return nil
}

// WriteCSV writes rows as CSV with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for i := range rows {
		if err := cw.Write(rows[i].record()); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	metrics.CellsExported.WithLabelValues("csv").Add(float64(len(rows)))
	return nil
}

// WriteCSVGzip writes rows as gzip compressed CSV.
func WriteCSVGzip(w io.Writer, rows []Row) error {
	gz := pgzip.NewWriter(w)
	if err := WriteCSV(gz, rows); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// WriteFile picks the format from the file extension: .parquet, .csv or
// .csv.gz.
func WriteFile(path string, rows []Row) error {
	var write func(io.Writer, []Row) error
	switch {
	case strings.HasSuffix(path, ".parquet"):
		write = WriteParquet
	case strings.HasSuffix(path, ".csv.gz"):
		write = WriteCSVGzip
	case strings.HasSuffix(path, ".csv"):
		write = WriteCSV
	default:
		return fmt.Errorf("unsupported output format %q", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
