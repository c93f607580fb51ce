package civil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var kst = time.FixedZone("KST", 9*3600)

func fixedNow() time.Time {
	return time.Date(2025, 11, 8, 0, 7, 51, 0, time.UTC)
}

func TestFormatConvertsZone(t *testing.T) {
	instant := time.Date(2025, 11, 8, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, "2025-11-08 09:05:00", Format(instant, kst))
	assert.Equal(t, "2025-11-08 00:05:00", Format(instant, time.UTC))
}

func TestParseRoundTrip(t *testing.T) {
	parsed, err := Parse("2025-11-08 09:05:00", kst)
	assert.Nil(t, err)
	assert.Equal(t, time.Date(2025, 11, 8, 0, 5, 0, 0, time.UTC), parsed.UTC())
}

func TestNormalize(t *testing.T) {
	for _, tt := range []struct {
		name string
		raw  string
		want string
	}{
		{"epoch seconds", "1762560471", Format(time.Unix(1762560471, 0), kst)},
		{"epoch millis", "1762560471000", Format(time.Unix(1762560471, 0), kst)},
		{"rfc3339", "2025-11-08T00:07:51Z", "2025-11-08 09:07:51"},
		{"civil passthrough", "2025-11-08 00:07:51", "2025-11-08 00:07:51"},
		{"civil with stray Z", "2025-11-08 00:07:51Z", "2025-11-08 00:07:51"},
		{"empty falls back to now", "", "2025-11-08 09:07:51"},
		{"garbage falls back to now", "not-a-time", "2025-11-08 09:07:51"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw, kst, fixedNow))
		})
	}
}

func TestLoadZone(t *testing.T) {
	loc, err := LoadZone("")
	assert.Nil(t, err)
	assert.Equal(t, time.UTC, loc)
	loc, err = LoadZone("utc")
	assert.Nil(t, err)
	assert.Equal(t, time.UTC, loc)
	_, err = LoadZone("Mars/Olympus")
	assert.NotNil(t, err)
}
