package publisher

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/cnehgus0620/aiot-manager/internal/civil"
	"github.com/cnehgus0620/aiot-manager/internal/stats"
	"github.com/cnehgus0620/aiot-manager/internal/store"
	"github.com/cnehgus0620/aiot-manager/internal/windows"
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// roomPartition extracts the numeric suffix of a room id ("room-306"
// -> "306") for the room_p partition key; rooms without one get a
// sentinel so downstream partitioning never sees an empty value.
func roomPartition(room string) string {
	if m := trailingDigits.FindStringSubmatch(room); m != nil {
		return m[1]
	}
	return "unknown"
}

// buildRecord assembles the outbound JSON object for one device's
// window aggregate. The field set is expanded from store.TrackedMetrics
// so adding a metric never touches this code.
func buildRecord(w windows.Window, row store.AggregateRow, room string, zone *time.Location) map[string]interface{} {
	record := map[string]interface{}{
		"device": row.Device,
		"room":   room,

		"window_start":     civil.Format(w.Start, time.UTC),
		"window_end":       civil.Format(w.End, time.UTC),
		"window_start_kst": civil.Format(w.Start, zone),
		"window_end_kst":   civil.Format(w.End, zone),

		"count": row.Count,

		"room_p": roomPartition(room),
	}

	for _, m := range store.TrackedMetrics {
		red := row.Reductions[m.Name]
		record[m.Name+"_avg"] = red.Avg
		if m.AvgOnly {
			continue
		}
		record[m.Name+"_min"] = red.Min
		record[m.Name+"_max"] = red.Max
		record[m.Name+"_std"] = stats.StdDev(row.Count, red.Avg, red.SumSquares)
	}

	// legacy single pm_* fields mirror pm2_5 so older consumers keep
	// working
	pm := row.Reductions["pm2_5"]
	record["pm_avg"] = pm.Avg
	record["pm_min"] = pm.Min
	record["pm_max"] = pm.Max
	record["pm_std"] = stats.StdDev(row.Count, pm.Avg, pm.SumSquares)

	// partition key time-parts come from the window start in the civil
	// zone
	start := w.Start.In(zone)
	record["year"] = fmt.Sprintf("%04d", start.Year())
	record["month"] = fmt.Sprintf("%02d", int(start.Month()))
	record["day"] = fmt.Sprintf("%02d", start.Day())
	record["hour"] = fmt.Sprintf("%02d", start.Hour())
	record["min5"] = fmt.Sprintf("%02d", start.Minute())

	return record
}

func encodeRecord(record map[string]interface{}) ([]byte, error) {
	return json.Marshal(record)
}
