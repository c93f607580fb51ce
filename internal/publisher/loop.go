// Package publisher drives the checkpointed incremental publish cycle:
// resume, wait for the next 5-minute window to elapse, aggregate it,
// emit one record per device, commit the checkpoint, repeat.
package publisher

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/uber-go/tally/v4"

	"github.com/cnehgus0620/aiot-manager/internal/civil"
	"github.com/cnehgus0620/aiot-manager/internal/log"
	"github.com/cnehgus0620/aiot-manager/internal/store"
	"github.com/cnehgus0620/aiot-manager/internal/windows"
)

// Reader is the slice of the store the loop needs.
type Reader interface {
	ReadWindowAggregates(ctx context.Context, w windows.Window) ([]store.AggregateRow, error)
	Checkpoint(ctx context.Context) (time.Time, bool, error)
	CommitCheckpoint(ctx context.Context, end time.Time) error
}

// Transport emits one outbound record; delivery guarantees and
// reconnects are its own business.
type Transport interface {
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}

// Fallback recovers the resume point from external partitions when no
// local checkpoint exists.
type Fallback interface {
	LatestPublishedWindowEnd(ctx context.Context) (time.Time, bool)
}

type Loop struct {
	logger    log.Logger
	reader    Reader
	transport Transport
	fallback  Fallback

	topic        string
	qos          byte
	room         string
	zone         *time.Location
	pollInterval time.Duration
	now          func() time.Time

	//the only mutable loop state: all windows ending at or before
	//anchor have been fully published
	anchor time.Time

	publishedRecords tally.Counter
	publishedWindows tally.Counter
	emptyWindows     tally.Counter
	windowFailures   tally.Counter
	checkpointLag    tally.Gauge
}

func NewLoop(logger log.Logger, scope tally.Scope, reader Reader, transport Transport, withOptions ...WithOptions) (*Loop, error) {
	o := defaultOptions()
	for _, withOptionsFn := range withOptions {
		if err := withOptionsFn(o); err != nil {
			return nil, errors.WithMessage(err, "illegal publisher option")
		}
	}
	return &Loop{
		logger:           logger.Named("publisher"),
		reader:           reader,
		transport:        transport,
		fallback:         o.fallback,
		topic:            o.topic,
		qos:              o.qos,
		room:             o.room,
		zone:             o.zone,
		pollInterval:     o.pollInterval,
		now:              o.now,
		publishedRecords: scope.Counter("published_records"),
		publishedWindows: scope.Counter("published_windows"),
		emptyWindows:     scope.Counter("empty_windows"),
		windowFailures:   scope.Counter("window_failures"),
		checkpointLag:    scope.Gauge("checkpoint_lag_seconds"),
	}, nil
}

// resume establishes the anchor: local checkpoint first, then the
// external partition listing, then one window back from now. The
// fallback is consulted only when the checkpoint is absent, so the
// anchor can never regress below a committed checkpoint.
func (l *Loop) resume(ctx context.Context) error {
	checkpoint, ok, err := l.reader.Checkpoint(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to read checkpoint")
	}
	if ok {
		l.anchor = checkpoint
		l.logger.Infof("resuming from checkpoint %s", civil.Format(l.anchor, time.UTC))
		return nil
	}
	if l.fallback != nil {
		if end, found := l.fallback.LatestPublishedWindowEnd(ctx); found {
			l.anchor = end
			l.logger.Infof("no checkpoint, resuming from published partition %s", civil.Format(l.anchor, time.UTC))
			return nil
		}
	}
	l.anchor = windows.Floor(l.now().Add(-windows.Size))
	l.logger.Infof("no checkpoint or partitions, resuming from %s", civil.Format(l.anchor, time.UTC))
	return nil
}

// Run processes due windows until ctx is canceled. In once mode it
// returns as soon as the loop has caught up with now; otherwise it
// polls forever.
func (l *Loop) Run(ctx context.Context, once bool) error {
	if err := l.resume(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := windows.Next(l.anchor)
		now := l.now()
		if !next.Due(now) {
			l.checkpointLag.Update(now.Sub(l.anchor).Seconds())
			if once {
				l.logger.Infof("caught up, last published window ends %s", civil.Format(l.anchor, time.UTC))
				return nil
			}
			l.logger.Debugf("up to date, sleeping %s", l.pollInterval)
			if err := sleep(ctx, l.pollInterval); err != nil {
				return err
			}
			continue
		}
		if err := l.processWindow(ctx, next); err != nil {
			//checkpoint untouched: the same window is retried next tick
			l.windowFailures.Inc(1)
			l.logger.Errorw("window attempt failed, will retry",
				"window_start", civil.Format(next.Start, time.UTC), "err", err)
			if err = sleep(ctx, l.pollInterval); err != nil {
				return err
			}
			continue
		}
		l.anchor = next.End
	}
}

// processWindow runs one AGGREGATING -> PUBLISHING -> COMMITTING pass.
// Any error before the commit leaves the checkpoint untouched; a commit
// failure after publish means a duplicate publish on retry, never a
// skipped window.
func (l *Loop) processWindow(ctx context.Context, w windows.Window) error {
	rows, err := l.reader.ReadWindowAggregates(ctx, w)
	if err != nil {
		return errors.WithMessage(err, "failed to aggregate window")
	}

	if len(rows) == 0 {
		//empty windows are not retried, the checkpoint still advances
		l.emptyWindows.Inc(1)
		l.logger.Infof("no data in window %s ~ %s",
			civil.Format(w.Start, time.UTC), civil.Format(w.End, time.UTC))
	}

	for _, row := range rows {
		payload, err := encodeRecord(buildRecord(w, row, l.room, l.zone))
		if err != nil {
			return errors.WithMessagef(err, "failed to encode record for %s", row.Device)
		}
		if err = l.transport.Publish(ctx, l.topic, l.qos, payload); err != nil {
			return errors.WithMessagef(err, "failed to publish record for %s", row.Device)
		}
		l.publishedRecords.Inc(1)
		l.logger.Infow("published window aggregate",
			"dev", row.Device, "count", row.Count,
			"window_start", civil.Format(w.Start, time.UTC))
	}

	if err = l.reader.CommitCheckpoint(ctx, w.End); err != nil {
		return errors.WithMessage(err, "failed to commit checkpoint")
	}
	if len(rows) > 0 {
		l.publishedWindows.Inc(1)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
