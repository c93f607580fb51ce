package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnehgus0620/aiot-manager/internal/log"
	"github.com/cnehgus0620/aiot-manager/internal/reading"
	"github.com/cnehgus0620/aiot-manager/internal/windows"
)

var kst = time.FixedZone("KST", 9*3600)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sensor_data.db"), kst, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func f(v float64) *float64 { return &v }

func insert(t *testing.T, s *Store, dev, ts string, temp, hum float64) {
	t.Helper()
	require.NoError(t, s.InsertReading(context.Background(), &reading.Reading{
		Device:     dev,
		ObservedAt: ts,
		Temp:       f(temp),
		Hum:        f(hum),
		PM25:       f(10),
	}))
}

// A row stored with a KST civil timestamp must be found by a window
// computed from UTC instants.
func TestReadWindowAggregatesBridgesTimezone(t *testing.T) {
	s := tempStore(t)
	insert(t, s, "esp8266-306", "2025-11-08 09:05:00", 19.0, 60.0)
	insert(t, s, "esp8266-306", "2025-11-08 09:07:30", 21.0, 70.0)
	//exactly at the window end, excluded by the half-open range
	insert(t, s, "esp8266-306", "2025-11-08 09:10:00", 99.0, 99.0)

	w := windows.Window{
		Start: time.Date(2025, 11, 8, 0, 5, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 8, 0, 10, 0, 0, time.UTC),
	}
	rows, err := s.ReadWindowAggregates(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "esp8266-306", row.Device)
	assert.Equal(t, int64(2), row.Count)
	temp := row.Reductions["temp"]
	require.NotNil(t, temp.Avg)
	assert.InDelta(t, 20.0, *temp.Avg, 1e-9)
	assert.Equal(t, 19.0, *temp.Min)
	assert.Equal(t, 21.0, *temp.Max)
	assert.InDelta(t, 19.0*19.0+21.0*21.0, *temp.SumSquares, 1e-9)
}

func TestReadWindowAggregatesGroupsByDevice(t *testing.T) {
	s := tempStore(t)
	insert(t, s, "dev-a", "2025-11-08 09:06:00", 19.0, 60.0)
	insert(t, s, "dev-b", "2025-11-08 09:06:00", 25.0, 40.0)

	w := windows.Window{
		Start: time.Date(2025, 11, 8, 0, 5, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 8, 0, 10, 0, 0, time.UTC),
	}
	rows, err := s.ReadWindowAggregates(context.Background(), w)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReadWindowAggregatesEmptyWindow(t *testing.T) {
	s := tempStore(t)
	insert(t, s, "dev-a", "2025-11-08 09:06:00", 19.0, 60.0)

	w := windows.Window{
		Start: time.Date(2025, 11, 8, 3, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 8, 3, 5, 0, 0, time.UTC),
	}
	rows, err := s.ReadWindowAggregates(context.Background(), w)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadWindowAggregatesUnreportedMetricIsNil(t *testing.T) {
	s := tempStore(t)
	insert(t, s, "dev-a", "2025-11-08 09:06:00", 19.0, 60.0)

	w := windows.Window{
		Start: time.Date(2025, 11, 8, 0, 5, 0, 0, time.UTC),
		End:   time.Date(2025, 11, 8, 0, 10, 0, 0, time.UTC),
	}
	rows, err := s.ReadWindowAggregates(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	gas := rows[0].Reductions["gas"]
	assert.Nil(t, gas.Avg)
	assert.Nil(t, gas.SumSquares)
	//lux is declared avg-only
	lux := rows[0].Reductions["lux"]
	assert.Nil(t, lux.Min)
	assert.Nil(t, lux.Max)
	assert.Nil(t, lux.SumSquares)
}

func TestCheckpointAbsentOnFreshStore(t *testing.T) {
	s := tempStore(t)
	_, ok, err := s.Checkpoint(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpointReplaceKeepsSingleRow(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	first := time.Date(2025, 11, 8, 0, 10, 0, 0, time.UTC)
	second := first.Add(5 * time.Minute)

	require.NoError(t, s.CommitCheckpoint(ctx, first))
	got, ok, err := s.Checkpoint(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)

	require.NoError(t, s.CommitCheckpoint(ctx, second))
	got, ok, err = s.Checkpoint(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, got)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM iot_checkpoint`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestInsertReject(t *testing.T) {
	s := tempStore(t)
	r := &reading.Reading{Device: "dev-a", ObservedAt: "2025-11-08 09:06:00"}
	require.NoError(t, s.InsertReject(context.Background(), r, "pm_all_zero", []byte(`{"dev":"dev-a"}`)))

	var reason, payload string
	require.NoError(t, s.db.QueryRow(`SELECT reason, payload FROM rejects`).Scan(&reason, &payload))
	assert.Equal(t, "pm_all_zero", reason)
	assert.Equal(t, `{"dev":"dev-a"}`, payload)
}
