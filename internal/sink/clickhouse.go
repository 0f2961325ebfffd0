package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/rtm0/icedrift/internal/metrics"
)

// ClickHouse inserts drift rows into a MergeTree table.
type ClickHouse struct {
	conn  driver.Conn
	table string
}

// ClickHouseOptions configures the connection.
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// OpenClickHouse connects and pings the server.
func OpenClickHouse(ctx context.Context, opts ClickHouseOptions) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &ClickHouse{conn: conn, table: fmt.Sprintf("%s.%s", opts.Database, opts.Table)}, nil
}

// Close closes the connection.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

// EnsureTable creates the drift table if it does not exist.
func (c *ClickHouse) EnsureTable(ctx context.Context) error {
	return c.conn.Exec(ctx, createTableSQL(c.table))
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    product String,
    timestamp DateTime64(3, 'UTC'),
    row Int32,
    col Int32,
    x Float64,
    y Float64,
    x_mid Float64,
    y_mid Float64,
    lat Float64,
    lon Float64,
    lat_mid Float64,
    lon_mid Float64,
    lat1 Float64,
    lon1 Float64,
    dx Float64,
    dy Float64,
    u Float64,
    v Float64,
    speed Float64
) ENGINE = ReplacingMergeTree
ORDER BY (timestamp, row, col)`, table)
}

// Insert sends rows in one batch.
func (c *ClickHouse) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", c.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.Append(
			r.Product,
			time.UnixMilli(r.Timestamp).UTC(),
			r.Row, r.Col,
			r.X, r.Y, r.XMid, r.YMid,
			r.Lat, r.Lon, r.LatMid, r.LonMid, r.Lat1, r.Lon1,
			r.DX, r.DY, r.U, r.V, r.Speed,
		); err != nil {
			batch.Abort()
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	metrics.CellsExported.WithLabelValues("clickhouse").Add(float64(len(rows)))
	return nil
}
