package reading

import (
	"fmt"
	"strings"
)

// Limits bounds plausible sensor values; readings outside them are
// rejected at ingest.
type Limits struct {
	//drop readings with any negative metric
	DropNegative bool
	//reject when all three PM values are zero or unset
	StrictPMAllZero bool
	MaxPM           float64
	MaxLux          float64
}

func DefaultLimits() Limits {
	return Limits{
		DropNegative:    true,
		StrictPMAllZero: true,
		MaxPM:           1000,
		MaxLux:          65535,
	}
}

// Validate reports whether r is plausible; when it is not, the second
// return value lists the reasons joined by "|".
func (l Limits) Validate(r *Reading) (bool, string) {
	var reasons []string

	if l.DropNegative {
		for _, name := range metricOrder {
			if v := r.Metrics()[name]; v != nil && *v < 0 {
				reasons = append(reasons, "neg_"+name)
			}
		}
	}

	if r.Hum != nil && (*r.Hum < 0 || *r.Hum > 100) {
		reasons = append(reasons, "humidity_out_of_range")
	}
	if r.Lux != nil && *r.Lux > l.MaxLux {
		reasons = append(reasons, "lux_out_of_range")
	}
	for _, pm := range []struct {
		name  string
		value *float64
	}{{"pm1_0", r.PM1}, {"pm2_5", r.PM25}, {"pm10", r.PM10}} {
		if pm.value != nil && *pm.value > l.MaxPM {
			reasons = append(reasons, fmt.Sprintf("%s_too_high", pm.name))
		}
	}

	if l.StrictPMAllZero && zeroOrUnset(r.PM1) && zeroOrUnset(r.PM25) && zeroOrUnset(r.PM10) {
		reasons = append(reasons, "pm_all_zero")
	}

	if len(reasons) == 0 {
		return true, ""
	}
	return false, strings.Join(reasons, "|")
}

var metricOrder = []string{"t", "h", "lx", "g", "pm1_0", "pm2_5", "pm10"}

func zeroOrUnset(v *float64) bool {
	return v == nil || *v == 0
}
