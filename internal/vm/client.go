package vm

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rtm0/icedrift/internal/drift"
	"github.com/rtm0/icedrift/internal/httputil"
	"github.com/rtm0/icedrift/internal/metrics"
)

// Client is a Victoria Metrics client capable of inserting drift cells via
// various protocols.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    string
	metricPrefix string
	cellToText   cellToTextFunc
}

const metricPrefixRE = "^[a-zA-Z0-9_]+$"

// NewClient creates a new VM client.
func NewClient(logger *slog.Logger, insertURL string, maxConns int, metricPrefix string) (*Client, error) {
	url, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	matches, err := regexp.MatchString(metricPrefixRE, metricPrefix)
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}

	apiParams := apiParamsFuncs[url.Path]
	if apiParams == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}
	q := url.Query()
	for name, value := range apiParams(metricPrefix) {
		q.Add(name, value)
	}
	url.RawQuery = q.Encode()

	cellToText := cellToTextFuncs[url.Path]
	if cellToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}

	return &Client{
		logger:       logger,
		httpCli:      httputil.NewPooledClient(maxConns),
		insertURL:    url.String(),
		metricPrefix: metricPrefix,
		cellToText:   cellToText,
	}, nil
}

// Insert inserts drift cells into Victoria Metrics. Failures are logged and
// reported as false.
func (c *Client) Insert(cells []drift.Cell) bool {
	res, err := c.httpCli.Post(c.insertURL, "text/plain", cellsToText(cells, c.metricPrefix, c.cellToText))
	if err != nil {
		c.logger.Error("Could not post data", "err", err)
		return false
	}
	defer res.Body.Close()
	ok := res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusOK
	if !ok {
		c.logger.Error("Unexpected status", "code", res.StatusCode)
	}
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Error("Failed to drain response body", "err", err)
	}
	if ok {
		metrics.CellsExported.WithLabelValues("vm").Add(float64(len(cells)))
	}
	return ok
}

type apiParamsFunc func(string) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

// Cell timestamps are in milliseconds.
func influxDBAPIParams(metricPrefix string) map[string]string {
	return map[string]string{"precision": "ms"}
}

func csvAPIParams(metricPrefix string) map[string]string {
	return map[string]string{
		"format": fmt.Sprintf(""+
			"1:time:unix_ms,"+
			"2:label:row,"+
			"3:label:col,"+
			"4:label:lat,"+
			"5:label:lon,"+
			"6:metric:%[1]s_dx,"+
			"7:metric:%[1]s_dy,"+
			"8:metric:%[1]s_u,"+
			"9:metric:%[1]s_v,"+
			"10:metric:%[1]s_speed", metricPrefix),
	}
}

type cellToTextFunc func(*strings.Builder, *drift.Cell, string)

// cellsToText converts multiple drift cells to text.
func cellsToText(cells []drift.Cell, metricPrefix string, cellToText cellToTextFunc) io.Reader {
	var sb strings.Builder
	for _, c := range cells {
		cellToText(&sb, &c, metricPrefix)
		sb.WriteString("\n")
	}
	return strings.NewReader(sb.String())
}

var cellToTextFuncs = map[string]cellToTextFunc{
	"/influx/write":        cellToInfluxDB,
	"/influx/api/v2/write": cellToInfluxDB,
	"/write":               cellToInfluxDB,
	"/api/v2/write":        cellToInfluxDB,
	"/api/v1/import/csv":   cellToCSV,
}

var influxDBFmt = "%s,row=%d,col=%d,lat=%.2f,lon=%.2f dx=%.1f,dy=%.1f,u=%.4f,v=%.4f,speed=%.4f %d"

// cellToInfluxDB converts a drift cell into InfluxDB line protocol and
// appends it to the string builder.
func cellToInfluxDB(sb *strings.Builder, c *drift.Cell, metricPrefix string) {
	fmt.Fprintf(sb, influxDBFmt,
		metricPrefix,
		c.Row,
		c.Col,
		c.Lat,
		c.Lon,
		c.DX,
		c.DY,
		c.U,
		c.V,
		c.Speed,
		c.Timestamp,
	)
}

var csvFmt = "%d,%d,%d,%.2f,%.2f,%.1f,%.1f,%.4f,%.4f,%.4f"

// cellToCSV converts a drift cell into a CSV record and appends it to the
// string builder.
func cellToCSV(sb *strings.Builder, c *drift.Cell, _ string) {
	fmt.Fprintf(sb, csvFmt,
		c.Timestamp,
		c.Row,
		c.Col,
		c.Lat,
		c.Lon,
		c.DX,
		c.DY,
		c.U,
		c.V,
		c.Speed,
	)
}
