package transport

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type options struct {
	host             string
	port             int
	clientID         string
	tlsConfig        *tls.Config
	username         string
	password         []byte
	keepAlive        uint16
	sessionExpiry    uint32
	operationTimeout time.Duration
	connectTimeout   time.Duration
	backoffMin       time.Duration
	backoffMax       time.Duration
	qos              byte
}

type WithOptions func(o *options) error

func WithServer(host string, port int) WithOptions {
	return func(o *options) error {
		if host == "" {
			return errors.New("host can't be empty")
		}
		o.host = host
		o.port = port
		return nil
	}
}

// WithClientID sets the MQTT client id; a random suffix keeps multiple
// processes with the same prefix from kicking each other off.
func WithClientID(prefix string) WithOptions {
	return func(o *options) error {
		if prefix == "" {
			return errors.New("client id prefix can't be empty")
		}
		o.clientID = fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
		return nil
	}
}

func WithTLS(config *tls.Config) WithOptions {
	return func(o *options) error {
		o.tlsConfig = config
		return nil
	}
}

func WithCredentials(username string, password []byte) WithOptions {
	return func(o *options) error {
		o.username = username
		o.password = password
		return nil
	}
}

func WithKeepAlive(keepAlive time.Duration) WithOptions {
	return func(o *options) error {
		o.keepAlive = uint16(keepAlive.Seconds())
		return nil
	}
}

func WithOperationTimeout(timeout time.Duration) WithOptions {
	return func(o *options) error {
		o.operationTimeout = timeout
		return nil
	}
}

func WithReconnectBackoff(min, max time.Duration) WithOptions {
	return func(o *options) error {
		if min <= 0 || max < min {
			return errors.New("illegal backoff bounds")
		}
		o.backoffMin = min
		o.backoffMax = max
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

func defaultOptions() *options {
	return &options{
		host:             "localhost",
		port:             1883,
		clientID:         fmt.Sprintf("aiot-manager-%s", uuid.NewString()[:8]),
		keepAlive:        60,
		sessionExpiry:    3600,
		operationTimeout: 10 * time.Second,
		connectTimeout:   10 * time.Second,
		backoffMin:       1 * time.Second,
		backoffMax:       32 * time.Second,
		qos:              1,
	}
}
