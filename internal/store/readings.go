package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/cnehgus0620/aiot-manager/internal/civil"
	"github.com/cnehgus0620/aiot-manager/internal/reading"
)

// InsertReading appends one accepted observation. Stored rows are
// immutable once written.
func (s *Store) InsertReading(ctx context.Context, r *reading.Reading) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (dev, ts, t, h, lx, g, pm1_0, pm2_5, pm10) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Device, r.ObservedAt, r.Temp, r.Hum, r.Lux, r.Gas, r.PM1, r.PM25, r.PM10)
	return errors.WithMessage(err, "failed to insert reading")
}

// InsertReject records a dropped payload with its reasons, for later
// inspection.
func (s *Store) InsertReject(ctx context.Context, r *reading.Reading, reason string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejects (dev, ts, reason, payload, created) VALUES (?, ?, ?, ?, ?)`,
		r.Device, r.ObservedAt, reason, string(payload), civil.Format(time.Now(), s.loc))
	return errors.WithMessage(err, "failed to insert reject")
}
