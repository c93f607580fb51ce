package publisher

import (
	"time"

	"github.com/pkg/errors"
)

type options struct {
	topic        string
	qos          byte
	room         string
	zone         *time.Location
	fallback     Fallback
	pollInterval time.Duration
	now          func() time.Time
}

type WithOptions func(o *options) error

func WithTopic(topic string) WithOptions {
	return func(o *options) error {
		if topic == "" {
			return errors.New("topic can't be empty")
		}
		o.topic = topic
		return nil
	}
}

func WithQoS(qos byte) WithOptions {
	return func(o *options) error {
		if qos > 1 {
			return errors.New("only QoS 0 and 1 are supported")
		}
		o.qos = qos
		return nil
	}
}

func WithRoom(room string) WithOptions {
	return func(o *options) error {
		o.room = room
		return nil
	}
}

// WithCivilZone sets the fixed zone used for the *_kst record fields
// and the partition key time-parts.
func WithCivilZone(zone *time.Location) WithOptions {
	return func(o *options) error {
		if zone == nil {
			return errors.New("zone can't be nil")
		}
		o.zone = zone
		return nil
	}
}

// WithFallback wires the partition discovery used when no local
// checkpoint exists.
func WithFallback(fallback Fallback) WithOptions {
	return func(o *options) error {
		o.fallback = fallback
		return nil
	}
}

func WithPollInterval(interval time.Duration) WithOptions {
	return func(o *options) error {
		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}
		o.pollInterval = interval
		return nil
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) WithOptions {
	return func(o *options) error {
		o.now = now
		return nil
	}
}

func defaultOptions() *options {
	return &options{
		topic:        "iot/sensor/minute",
		qos:          1,
		room:         "room-306",
		zone:         time.UTC,
		pollInterval: 5 * time.Second,
		now:          time.Now,
	}
}
