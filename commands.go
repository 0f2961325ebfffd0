package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rtm0/icedrift/internal/drift"
	"github.com/rtm0/icedrift/internal/osisaf"
	"github.com/rtm0/icedrift/internal/sink"
	"github.com/rtm0/icedrift/internal/source"
	"github.com/rtm0/icedrift/internal/store"
	"github.com/rtm0/icedrift/internal/vm"
)

const dateFormat = "2006-01-02"

// SourceFlags selects where products are read from.
type SourceFlags struct {
	Source     string `default:"thredds" enum:"thredds,ftp,local" env:"ICEDRIFT_SOURCE" help:"Where products are read from (${enum})."`
	CatalogURL string `name:"catalog-url" default:"${catalogRoot}" env:"ICEDRIFT_CATALOG_URL" help:"THREDDS catalog root holding YYYY/MM/catalog.xml."`
	FTPAddr    string `name:"ftp-addr" default:"${ftpAddr}" env:"ICEDRIFT_FTP_ADDR" help:"FTP server host:port."`
	FTPDir     string `name:"ftp-dir" default:"${ftpDir}" env:"ICEDRIFT_FTP_DIR" help:"FTP directory holding YYYY/MM/."`
	LocalRoot  string `name:"local-root" env:"ICEDRIFT_LOCAL_ROOT" help:"Local archive laid out as YYYY/MM/file."`
}

func (f *SourceFlags) open(logger *slog.Logger) (source.Source, error) {
	switch f.Source {
	case "thredds":
		return source.NewThredds(logger, f.CatalogURL)
	case "ftp":
		return source.NewFTP(logger, f.FTPAddr, f.FTPDir), nil
	case "local":
		if f.LocalRoot == "" {
			return nil, errors.New("--local-root is required with --source=local")
		}
		return source.NewLocal(f.LocalRoot), nil
	}
	return nil, fmt.Errorf("unknown source %q", f.Source)
}

type resolveCmd struct {
	Date      time.Time `required:"" format:"2006-01-02" help:"Center date of the product (YYYY-MM-DD)."`
	Root      string    `default:"${catalogRoot}" help:"Catalog root used to print the catalog URL."`
	LocalRoot string    `name:"local-root" default:"." help:"Local archive root used to print the local path."`
}

func (c *resolveCmd) Run(e *env) error {
	p := osisaf.For(c.Date)
	fmt.Printf("file:    %s\n", p.Filename())
	fmt.Printf("window:  %s - %s\n", p.Before.Add(12*time.Hour).Format(time.RFC3339), p.After.Add(12*time.Hour).Format(time.RFC3339))
	fmt.Printf("dir:     %s\n", p.Dir())
	fmt.Printf("local:   %s\n", p.LocalPath(c.LocalRoot))
	fmt.Printf("catalog: %s\n", p.CatalogURL(c.Root))
	return nil
}

type extractCmd struct {
	SourceFlags `embed:""`

	Date time.Time `format:"2006-01-02" xor:"input" help:"Center date of the product (YYYY-MM-DD)."`
	File string    `type:"existingfile" xor:"input" help:"Read this product file instead of fetching it by date."`
	Out  string    `short:"o" type:"path" help:"Write cells to this .parquet, .csv or .csv.gz file."`
}

func (c *extractCmd) Validate() error {
	if c.Date.IsZero() && c.File == "" {
		return errors.New("one of --date or --file is required")
	}
	return nil
}

func (c *extractCmd) Run(e *env) error {
	rec, err := c.load(e)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	e.logger.Info("Product summary", append([]any{
		"file", rec.Product.Filename(),
		"t0", rec.T0,
		"t1", rec.T1,
		"elapsedDays", rec.ElapsedDays,
		"dy", rec.DYVariable,
		"proj", rec.Projection.Proj4(),
	}, drift.Summarize(rec).LogAttrs()...)...)

	if c.Out == "" {
		return nil
	}
	rows := sink.Rows(rec.Product.Filename(), rec.Cells())
	if err := sink.WriteFile(c.Out, rows); err != nil {
		return err
	}
	e.logger.Info("Wrote cells", "path", c.Out, "rows", len(rows))
	return nil
}

func (c *extractCmd) load(e *env) (*drift.Record, error) {
	if c.File != "" {
		return drift.NewLoader(e.logger, nil).LoadFile(c.File)
	}
	src, err := c.open(e.logger)
	if err != nil {
		return nil, err
	}
	return drift.NewLoader(e.logger, src).Load(e.ctx, c.Date)
}

type listCmd struct {
	From time.Time `required:"" format:"2006-01-02" help:"First center date (YYYY-MM-DD)."`
	To   time.Time `required:"" format:"2006-01-02" help:"Last center date (YYYY-MM-DD)."`
	DB   string    `type:"path" default:"icedrift.db" env:"ICEDRIFT_DB" help:"SQLite product index."`
}

func (c *listCmd) Run(e *env) error {
	db, err := sql.Open("sqlite", c.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	st := store.New(db, e.logger)
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return c.print(os.Stdout, st)
}

func (c *listCmd) print(w io.Writer, st *store.Store) error {
	products, err := st.ListProducts(c.From, c.To)
	if err != nil {
		return err
	}
	missing, err := st.MissingDates(c.From, c.To)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSOURCE\tDY\tCELLS\tMEAN CM/S\tMAX CM/S\tFILE")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			p.Date.Format(dateFormat), p.Source, p.DYVariable, p.ValidCells,
			nullFloat(p.MeanSpeed), nullFloat(p.MaxSpeed), p.Filename)
	}
	for _, d := range missing {
		fmt.Fprintf(tw, "%s\tmissing\t-\t0\t-\t-\t%s\n", d.Format(dateFormat), osisaf.For(d).Filename())
	}
	return tw.Flush()
}

func nullFloat(f sql.NullFloat64) string {
	if !f.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", f.Float64)
}

type exportCmd struct {
	SourceFlags `embed:""`

	From time.Time `required:"" format:"2006-01-02" help:"First center date (YYYY-MM-DD)."`
	To   time.Time `required:"" format:"2006-01-02" help:"Last center date (YYYY-MM-DD)."`

	DB    string `type:"path" default:"icedrift.db" env:"ICEDRIFT_DB" help:"SQLite product index."`
	Force bool   `help:"Reprocess dates already in the index."`

	OutDir string `name:"out-dir" type:"path" help:"Also write one file per product into this directory."`
	Format string `default:"parquet" enum:"parquet,csv,csv.gz" help:"File format for --out-dir (${enum})."`

	VMInsertURL   string `name:"vm-insert-url" env:"ICEDRIFT_VM_INSERT_URL" help:"Victoria Metrics insert API URL, e.g. http://localhost:8428/write."`
	MetricPrefix  string `default:"icedrift" help:"Metric name prefix for Victoria Metrics."`
	Concurrency   int    `default:"4" help:"Number of concurrent requests to Victoria Metrics."`
	RecsPerInsert int    `name:"recs-per-insert" default:"500" help:"Number of cells sent to Victoria Metrics in one batch."`

	ClickHouseAddr     string `name:"clickhouse-addr" env:"ICEDRIFT_CLICKHOUSE_ADDR" help:"ClickHouse native address, e.g. localhost:9000."`
	ClickHouseDB       string `name:"clickhouse-db" default:"osisaf" env:"ICEDRIFT_CLICKHOUSE_DB"`
	ClickHouseTable    string `name:"clickhouse-table" default:"ice_drift" env:"ICEDRIFT_CLICKHOUSE_TABLE"`
	ClickHouseUser     string `name:"clickhouse-user" default:"default" env:"ICEDRIFT_CLICKHOUSE_USER"`
	ClickHousePassword string `name:"clickhouse-password" env:"ICEDRIFT_CLICKHOUSE_PASSWORD"`
}

func (c *exportCmd) Validate() error {
	if c.To.Before(c.From) {
		return fmt.Errorf("--to %s is before --from %s", c.To.Format(dateFormat), c.From.Format(dateFormat))
	}
	if c.Concurrency < 1 || c.RecsPerInsert < 1 {
		return errors.New("--concurrency and --recs-per-insert must be positive")
	}
	return nil
}

func (c *exportCmd) Run(e *env) error {
	logger := e.logger
	src, err := c.open(logger)
	if err != nil {
		return err
	}
	loader := drift.NewLoader(logger, src)

	db, err := sql.Open("sqlite", c.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, logger)
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var ch *sink.ClickHouse
	if c.ClickHouseAddr != "" {
		ch, err = sink.OpenClickHouse(e.ctx, sink.ClickHouseOptions{
			Addr:     c.ClickHouseAddr,
			Database: c.ClickHouseDB,
			Username: c.ClickHouseUser,
			Password: c.ClickHousePassword,
			Table:    c.ClickHouseTable,
		})
		if err != nil {
			return err
		}
		defer ch.Close()
		if err := ch.EnsureTable(e.ctx); err != nil {
			return fmt.Errorf("create clickhouse table: %w", err)
		}
	}

	var vmCli *vm.Client
	if c.VMInsertURL != "" {
		vmCli, err = vm.NewClient(logger, c.VMInsertURL, c.Concurrency, c.MetricPrefix)
		if err != nil {
			return fmt.Errorf("create VM client: %w", err)
		}
	}

	products, err := c.pending(st)
	if err != nil {
		return err
	}
	logger.Info("Export summary", "from", c.From.Format(dateFormat), "to", c.To.Format(dateFormat), "pending", len(products), "source", src.Name())

	jobsCh := make(chan *drift.Record)
	resultsCh := make(chan exportResult)
	var wg sync.WaitGroup
	for i := 0; i < c.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobsCh {
				cells := rec.Cells()
				resultsCh <- exportResult{rec: rec, cells: len(cells), err: c.insert(vmCli, cells)}
			}
		}()
	}

	// Products are indexed only once all their batches reached Victoria
	// Metrics, so a failed date is retried by the next run.
	var exportErrs []error
	var collectWG sync.WaitGroup
	collectWG.Add(1)
	go func() {
		defer collectWG.Done()
		var cells, done float64
		total := float64(len(products))
		start := time.Now()
		for res := range resultsCh {
			done++
			name := res.rec.Product.Filename()
			if res.err != nil {
				logger.Error("Could not export product", "file", name, "err", res.err)
				exportErrs = append(exportErrs, fmt.Errorf("%s: %w", name, res.err))
				continue
			}
			if err := st.UpsertProduct(store.ProductFromRecord(res.rec, src.Name(), time.Now())); err != nil {
				logger.Error("Could not index product", "file", name, "err", err)
				exportErrs = append(exportErrs, fmt.Errorf("index %s: %w", name, err))
				continue
			}
			cells += float64(res.cells)
			percent := fmt.Sprintf("%.2f%%", 100*done/total)
			duration := time.Since(start).Round(1 * time.Second)
			logger.Info("progress", "products", percent, "cells", cells, "in", duration)
		}
	}()

	var runErr error
	for _, p := range products {
		if err := e.ctx.Err(); err != nil {
			runErr = err
			break
		}
		rec, err := loader.Load(e.ctx, p.Date)
		if err != nil {
			runErr = err
			break
		}
		if rec == nil {
			if err := st.MarkMissing(p.Date, p.Filename(), src.Name(), time.Now()); err != nil {
				logger.Error("Could not record missing product", "file", p.Filename(), "err", err)
			}
			continue
		}
		if err := c.write(e, ch, rec); err != nil {
			runErr = err
			break
		}
		jobsCh <- rec
	}
	close(jobsCh)
	wg.Wait()
	close(resultsCh)
	collectWG.Wait()

	if len(exportErrs) > 0 {
		runErr = errors.Join(append([]error{runErr, fmt.Errorf("%d products were not exported", len(exportErrs))}, exportErrs...)...)
	}
	return runErr
}

type exportResult struct {
	rec   *drift.Record
	cells int
	err   error
}

// insert sends cells to Victoria Metrics in batches of --recs-per-insert.
// It stops at the first failed batch.
func (c *exportCmd) insert(vmCli *vm.Client, cells []drift.Cell) error {
	if vmCli == nil {
		return nil
	}
	n := len(cells)
	for i := 0; i < n; i += c.RecsPerInsert {
		limit := min(i+c.RecsPerInsert, n)
		if !vmCli.Insert(cells[i:limit]) {
			return fmt.Errorf("victoria metrics rejected cells %d-%d of %d", i, limit, n)
		}
	}
	return nil
}

// pending returns the products of the requested range that still need
// processing.
func (c *exportCmd) pending(st *store.Store) ([]osisaf.Product, error) {
	all := osisaf.Range(c.From, c.To)
	if c.Force {
		return all, nil
	}
	var ps []osisaf.Product
	for _, p := range all {
		done, err := st.GetProduct(p.Date)
		if err != nil {
			return nil, fmt.Errorf("look up %s: %w", p.Date.Format(dateFormat), err)
		}
		if done == nil {
			ps = append(ps, p)
		}
	}
	return ps, nil
}

// write sends a record to the file and ClickHouse sinks that are enabled.
func (c *exportCmd) write(e *env, ch *sink.ClickHouse, rec *drift.Record) error {
	if c.OutDir == "" && ch == nil {
		return nil
	}
	name := rec.Product.Filename()
	rows := sink.Rows(name, rec.Cells())
	if c.OutDir != "" {
		if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(c.OutDir, strings.TrimSuffix(name, osisaf.FileSuffix)+"."+c.Format)
		if err := sink.WriteFile(path, rows); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if ch != nil {
		if err := ch.Insert(e.ctx, rows); err != nil {
			return fmt.Errorf("clickhouse insert %s: %w", name, err)
		}
	}
	return nil
}
