// Package ingest is the MQTT-to-SQLite leg: it subscribes to the raw
// sensor topic, parses and validates each payload, and appends accepted
// rows to the store.
package ingest

import (
	"context"
	"time"

	"github.com/uber-go/tally/v4"

	"github.com/cnehgus0620/aiot-manager/internal/log"
	"github.com/cnehgus0620/aiot-manager/internal/reading"
	"github.com/cnehgus0620/aiot-manager/internal/transport"
)

// Writer is the slice of the store the ingest path needs.
type Writer interface {
	InsertReading(ctx context.Context, r *reading.Reading) error
	InsertReject(ctx context.Context, r *reading.Reading, reason string, payload []byte) error
}

// Subscriber is the slice of the transport the ingest path needs.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, qos byte, handler transport.MessageHandler) error
}

type Service struct {
	logger log.Logger
	writer Writer
	limits reading.Limits
	zone   *time.Location
	//persist rejected payloads for inspection
	keepRejects bool

	accepted tally.Counter
	rejected tally.Counter
	failed   tally.Counter
}

func NewService(logger log.Logger, scope tally.Scope, writer Writer, limits reading.Limits, zone *time.Location, keepRejects bool) *Service {
	return &Service{
		logger:      logger.Named("ingest"),
		writer:      writer,
		limits:      limits,
		zone:        zone,
		keepRejects: keepRejects,
		accepted:    scope.Counter("readings_accepted"),
		rejected:    scope.Counter("readings_rejected"),
		failed:      scope.Counter("readings_failed"),
	}
}

// Start subscribes to topic and returns; message handling runs on the
// transport's receive path.
func (s *Service) Start(ctx context.Context, subscriber Subscriber, topic string, qos byte) error {
	s.logger.Infof("listening on %s", topic)
	return subscriber.Subscribe(ctx, topic, qos, s.Handle)
}

// Handle processes one raw payload. Parse and validation failures never
// propagate: a bad message is logged (and optionally persisted) and the
// subscription stays alive.
func (s *Service) Handle(ctx context.Context, topic string, payload []byte) error {
	r, err := reading.Parse(payload, s.zone, time.Now)
	if err != nil {
		s.failed.Inc(1)
		s.logger.Warnw("failed to parse payload", "topic", topic, "err", err, "payload", string(payload))
		return nil
	}

	if ok, reason := s.limits.Validate(r); !ok {
		s.rejected.Inc(1)
		s.logger.Infow("dropping reading", "dev", r.Device, "ts", r.ObservedAt, "reason", reason)
		if s.keepRejects {
			if err = s.writer.InsertReject(ctx, r, reason, payload); err != nil {
				s.logger.Warnw("failed to persist reject", "dev", r.Device, "err", err)
			}
		}
		return nil
	}

	if err = s.writer.InsertReading(ctx, r); err != nil {
		s.failed.Inc(1)
		s.logger.Errorw("failed to insert reading", "dev", r.Device, "err", err)
		return nil
	}
	s.accepted.Inc(1)
	s.logger.Debugw("stored reading", "dev", r.Device, "ts", r.ObservedAt)
	return nil
}
