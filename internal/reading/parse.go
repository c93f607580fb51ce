package reading

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cnehgus0620/aiot-manager/internal/civil"
)

// jsonPayload accepts both the short and the long field aliases
// devices have shipped with.
type jsonPayload struct {
	Dev    string          `json:"dev"`
	Device string          `json:"device"`
	TS     json.RawMessage `json:"ts"`
	T      *float64        `json:"t"`
	Temp   *float64        `json:"temp"`
	H      *float64        `json:"h"`
	Hum    *float64        `json:"hum"`
	LX     *float64        `json:"lx"`
	Lux    *float64        `json:"lux"`
	G      *float64        `json:"g"`
	Gas    *float64        `json:"gas"`
	PM1    *float64        `json:"pm1_0"`
	PM25   *float64        `json:"pm2_5"`
	PM10   *float64        `json:"pm10"`
}

// Parse decodes a raw payload into a Reading, trying JSON first and
// falling back to the pipe format. The observed-at timestamp is
// normalized to a civil string in loc.
func Parse(payload []byte, loc *time.Location, now func() time.Time) (*Reading, error) {
	if r, err := parseJSON(payload, loc, now); err == nil {
		return r, nil
	}
	if r, err := parsePipe(string(payload), loc, now); err == nil {
		return r, nil
	}
	return nil, errors.New("unsupported payload format")
}

func parseJSON(payload []byte, loc *time.Location, now func() time.Time) (*Reading, error) {
	var p jsonPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	dev := p.Dev
	if dev == "" {
		dev = p.Device
	}
	if dev == "" {
		dev = "unknown"
	}
	return &Reading{
		Device:     dev,
		ObservedAt: civil.Normalize(rawTimestamp(p.TS), loc, now),
		Temp:       coalesce(p.T, p.Temp),
		Hum:        coalesce(p.H, p.Hum),
		Lux:        coalesce(p.LX, p.Lux),
		Gas:        coalesce(p.G, p.Gas),
		PM1:        p.PM1,
		PM25:       p.PM25,
		PM10:       p.PM10,
	}, nil
}

// parsePipe decodes "id|dev|ts|t|h|lx|g|pm1_0|pm2_5|pm10|"; empty
// fields stay unset.
func parsePipe(payload string, loc *time.Location, now func() time.Time) (*Reading, error) {
	parts := strings.Split(strings.TrimSpace(payload), "|")
	if len(parts) < 10 {
		return nil, errors.Errorf("pipe payload has %d fields, want at least 10", len(parts))
	}
	dev := strings.TrimSpace(parts[1])
	if dev == "" {
		dev = "unknown"
	}
	r := &Reading{
		Device:     dev,
		ObservedAt: civil.Normalize(parts[2], loc, now),
	}
	fields := []**float64{&r.Temp, &r.Hum, &r.Lux, &r.Gas, &r.PM1, &r.PM25, &r.PM10}
	for i, field := range fields {
		raw := strings.TrimSpace(parts[3+i])
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %d", 3+i)
		}
		*field = &v
	}
	return r, nil
}

// rawTimestamp unquotes a JSON ts value; numbers pass through as their
// literal text.
func rawTimestamp(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func coalesce(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
