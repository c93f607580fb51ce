// Package reading models one raw device observation and the two wire
// encodings devices send: a JSON object or a pipe-delimited line.
package reading

// Reading is a single device observation. Metric fields are pointers
// because not every device reports every metric.
type Reading struct {
	Device string
	//civil timestamp string in the storage zone
	ObservedAt string
	Temp       *float64
	Hum        *float64
	Lux        *float64
	Gas        *float64
	PM1        *float64
	PM25       *float64
	PM10       *float64
}

// Metrics returns the metric fields keyed by column name, for
// validation and insertion.
func (r *Reading) Metrics() map[string]*float64 {
	return map[string]*float64{
		"t":     r.Temp,
		"h":     r.Hum,
		"lx":    r.Lux,
		"g":     r.Gas,
		"pm1_0": r.PM1,
		"pm2_5": r.PM25,
		"pm10":  r.PM10,
	}
}
