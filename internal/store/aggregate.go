package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/cnehgus0620/aiot-manager/internal/civil"
	"github.com/cnehgus0620/aiot-manager/internal/windows"
)

// Metric declares one tracked sensor channel. Adding a metric here is
// all it takes to carry it through aggregation and publishing.
type Metric struct {
	//output field prefix, e.g. "temp"
	Name string
	//metrics table column, e.g. "t"
	Column string
	//lux sensors only report a meaningful average
	AvgOnly bool
}

// TrackedMetrics is the declarative list every grouped query and output
// record is expanded from.
var TrackedMetrics = []Metric{
	{Name: "temp", Column: "t"},
	{Name: "hum", Column: "h"},
	{Name: "lux", Column: "lx", AvgOnly: true},
	{Name: "gas", Column: "g"},
	{Name: "pm1_0", Column: "pm1_0"},
	{Name: "pm2_5", Column: "pm2_5"},
	{Name: "pm10", Column: "pm10"},
}

// Reduction is the per-metric tuple sufficient to later derive mean and
// sample standard deviation without re-scanning raw rows. Fields are
// nil when the device never reported the metric in the window.
type Reduction struct {
	Avg        *float64
	Min        *float64
	Max        *float64
	SumSquares *float64
}

// AggregateRow is one device's reductions for one window.
type AggregateRow struct {
	Device string
	Count  int64
	//keyed by Metric.Name
	Reductions map[string]Reduction
}

// ReadWindowAggregates runs one grouped query over observed-at in
// [w.Start, w.End). The UTC bounds are converted to the civil strings
// the writer used; devices with no rows in the window are absent.
func (s *Store) ReadWindowAggregates(ctx context.Context, w windows.Window) ([]AggregateRow, error) {
	startCivil := civil.Format(w.Start, s.loc)
	endCivil := civil.Format(w.End, s.loc)

	cols := []string{"dev", "COUNT(*)"}
	for _, m := range TrackedMetrics {
		cols = append(cols, fmt.Sprintf("AVG(%s)", m.Column))
		if m.AvgOnly {
			continue
		}
		cols = append(cols,
			fmt.Sprintf("MIN(%s)", m.Column),
			fmt.Sprintf("MAX(%s)", m.Column),
			fmt.Sprintf("SUM(%s*%s)", m.Column, m.Column))
	}
	query := fmt.Sprintf(
		"SELECT %s FROM metrics WHERE ts >= ? AND ts < ? GROUP BY dev",
		strings.Join(cols, ", "))

	rows, err := s.db.QueryContext(ctx, query, startCivil, endCivil)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to query window aggregates")
	}
	defer func() { _ = rows.Close() }()

	var result []AggregateRow
	for rows.Next() {
		row := AggregateRow{Reductions: make(map[string]Reduction, len(TrackedMetrics))}
		dest := []any{&row.Device, &row.Count}
		scanned := make([]sql.NullFloat64, 0, len(TrackedMetrics)*4)
		offsets := make(map[string]int, len(TrackedMetrics))
		for _, m := range TrackedMetrics {
			offsets[m.Name] = len(scanned)
			n := 1
			if !m.AvgOnly {
				n = 4
			}
			for i := 0; i < n; i++ {
				scanned = append(scanned, sql.NullFloat64{})
			}
		}
		for i := range scanned {
			dest = append(dest, &scanned[i])
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, errors.WithMessage(err, "failed to scan aggregate row")
		}
		for _, m := range TrackedMetrics {
			off := offsets[m.Name]
			red := Reduction{Avg: nullable(scanned[off])}
			if !m.AvgOnly {
				red.Min = nullable(scanned[off+1])
				red.Max = nullable(scanned[off+2])
				red.SumSquares = nullable(scanned[off+3])
			}
			row.Reductions[m.Name] = red
		}
		result = append(result, row)
	}
	return result, errors.WithMessage(rows.Err(), "failed to iterate aggregate rows")
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
