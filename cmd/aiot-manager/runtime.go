package main

import (
	"crypto/tls"
	"io"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/uber-go/tally/v4"
	"github.com/uber-go/tally/v4/prometheus"

	"github.com/cnehgus0620/aiot-manager/internal/civil"
	"github.com/cnehgus0620/aiot-manager/internal/common/safe"
	"github.com/cnehgus0620/aiot-manager/internal/config"
	"github.com/cnehgus0620/aiot-manager/internal/log"
	"github.com/cnehgus0620/aiot-manager/internal/store"
	"github.com/cnehgus0620/aiot-manager/internal/transport"
)

// runtime holds everything both subcommands need wired the same way.
type runtime struct {
	application *config.Application
	logger      log.Logger
	scope       tally.Scope
	scopeCloser io.Closer
	store       *store.Store
	civilZone   *time.Location
}

func setup() (*runtime, error) {
	application, err := config.Load(configDir, "application")
	if err != nil {
		return nil, err
	}

	level := log.InfoLevel
	if application.Debug {
		level = log.DebugLevel
	}
	logger := log.New(log.DefaultOptions().
		WithLevel(level).
		WithOutputEncoder(log.ConsoleOutputEncoder))

	civilZone, err := civil.LoadZone(application.DB.CivilZone)
	if err != nil {
		return nil, err
	}

	scope, scopeCloser := newScope(logger, application.Metrics.Listen)

	db, err := store.Open(application.DB.Path, civilZone, logger)
	if err != nil {
		return nil, err
	}

	return &runtime{
		application: application,
		logger:      logger,
		scope:       scope,
		scopeCloser: scopeCloser,
		store:       db,
		civilZone:   civilZone,
	}, nil
}

func (r *runtime) close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warnw("failed to close store", "err", err)
	}
	if err := r.scopeCloser.Close(); err != nil {
		r.logger.Warnw("failed to close metrics scope", "err", err)
	}
	_ = r.logger.Sync()
}

// newScope builds the root metrics scope; when listen is set the
// prometheus registry is served on /metrics.
func newScope(logger log.Logger, listen string) (tally.Scope, io.Closer) {
	reporter := prometheus.NewReporter(prometheus.Options{
		Registerer:               prom.DefaultRegisterer,
		DefaultTimerType:         prometheus.HistogramTimerType,
		DefaultHistogramBuckets:  prometheus.DefaultHistogramBuckets(),
		DefaultSummaryObjectives: prometheus.DefaultSummaryObjectives(),
	})
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         "aiot",
		CachedReporter: reporter,
		Separator:      prometheus.DefaultSeparator,
	}, 1*time.Second)

	if listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", reporter.HTTPHandler())
		go func() {
			_ = safe.Run(func() error {
				logger.Infof("serving metrics on %s/metrics", listen)
				if err := http.ListenAndServe(listen, mux); err != nil {
					logger.Warnw("metrics endpoint stopped", "err", err)
				}
				return nil
			})
		}()
	}
	return scope, closer
}

func (r *runtime) newTransport(prefix string) (*transport.Client, error) {
	mqtt := r.application.MQTT
	withOptions := []transport.WithOptions{
		transport.WithServer(mqtt.Host, mqtt.Port),
		transport.WithClientID(prefix),
		transport.WithKeepAlive(mqtt.KeepAlive),
		transport.WithOperationTimeout(mqtt.OperationTimeout),
	}
	if mqtt.TLS {
		withOptions = append(withOptions, transport.WithTLS(&tls.Config{
			ServerName:         mqtt.Host,
			InsecureSkipVerify: mqtt.TLSInsecure,
		}))
	}
	if mqtt.Username != "" {
		withOptions = append(withOptions, transport.WithCredentials(mqtt.Username, []byte(mqtt.Password)))
	}
	return transport.NewClient(r.logger, withOptions...)
}
