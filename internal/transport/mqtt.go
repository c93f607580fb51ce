// Package transport is a thin MQTT v5 session wrapper: connect,
// publish, subscribe, disconnect, with automatic reconnect and
// re-subscribe in the background. The publish loop and the ingest
// service both ride on it.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/eclipse/paho.golang/paho/session/state"
	"github.com/pkg/errors"

	"github.com/cnehgus0620/aiot-manager/internal/common/safe"
	"github.com/cnehgus0620/aiot-manager/internal/log"
)

// MessageHandler consumes one inbound message. Returning an error only
// logs it; the subscription stays active.
type MessageHandler func(ctx context.Context, topic string, payload []byte) error

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// Client is a single MQTT session with automatic reconnect.
type Client struct {
	logger  log.Logger
	options *options

	mutex      sync.Mutex
	pahoClient *paho.Client
	session    *state.State
	subs       []subscription

	connected atomic.Bool
	connCount int64
	//signals connection loss to the maintain loop
	errChan  chan error
	doneChan chan struct{}
}

func NewClient(logger log.Logger, withOptions ...WithOptions) (*Client, error) {
	o := defaultOptions()
	for _, withOptionsFn := range withOptions {
		if err := withOptionsFn(o); err != nil {
			return nil, errors.WithMessage(err, "illegal transport option")
		}
	}
	return &Client{
		logger:   logger.Named("transport"),
		options:  o,
		session:  state.NewInMemory(),
		errChan:  make(chan error, 1),
		doneChan: make(chan struct{}),
	}, nil
}

// Connect establishes the initial connection, then keeps the session
// alive in the background until Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.attemptConnect(ctx); err != nil {
		return err
	}
	go func() {
		_ = safe.Run(func() error {
			c.maintain()
			return nil
		})
	}()
	return nil
}

// Publish sends one message, bounded by the operation timeout. When the
// connection is down it fails immediately; the caller decides whether
// the attempt is retried.
func (c *Client) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if !c.connected.Load() {
		return errors.New("not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, c.options.operationTimeout)
	defer cancel()

	c.mutex.Lock()
	client := c.pahoClient
	c.mutex.Unlock()

	res, err := client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: payload,
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to publish to %s", topic)
	}
	if res != nil && res.ReasonCode >= 0x80 {
		return errors.Errorf("publish to %s rejected with reason code %d", topic, res.ReasonCode)
	}
	return nil
}

// Subscribe registers handler for topic and subscribes. The
// subscription is restored automatically after a reconnect.
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error {
	c.mutex.Lock()
	c.subs = append(c.subs, subscription{topic: topic, qos: qos, handler: handler})
	client := c.pahoClient
	c.mutex.Unlock()

	if !c.connected.Load() {
		return errors.New("not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, c.options.operationTimeout)
	defer cancel()
	return c.sendSubscribe(ctx, client, topic, qos)
}

// Disconnect stops the maintain loop and sends the disconnect packet.
func (c *Client) Disconnect() error {
	close(c.doneChan)
	if !c.connected.Load() {
		return nil
	}
	c.connected.Store(false)
	c.mutex.Lock()
	client := c.pahoClient
	c.mutex.Unlock()
	return client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

// maintain waits for connection loss and reconnects with exponential
// backoff, forever, until Disconnect closes doneChan.
func (c *Client) maintain() {
	for {
		select {
		case <-c.doneChan:
			return
		case err := <-c.errChan:
			c.connected.Store(false)
			c.logger.Warnw("connection lost, reconnecting", "err", err)
		}

		backoff := c.options.backoffMin
		for {
			select {
			case <-c.doneChan:
				return
			case <-time.After(backoff):
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.options.connectTimeout)
			err := c.attemptConnect(ctx)
			cancel()
			if err == nil {
				break
			}
			c.logger.Warnw("reconnect attempt failed", "backoff", backoff, "err", err)
			if backoff *= 2; backoff > c.options.backoffMax {
				backoff = c.options.backoffMax
			}
		}
		c.logger.Infof("reconnected to %s:%d", c.options.host, c.options.port)
	}
}

// attemptConnect dials, builds a fresh paho client over the shared
// session state, connects, and restores subscriptions.
func (c *Client) attemptConnect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to dial broker")
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: c.options.clientID,
		Session:  c.session,
		OnClientError: func(err error) {
			c.notifyLost(err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.notifyLost(errors.Errorf("server disconnect, reason code %d", d.ReasonCode))
		},
	})
	client.AddOnPublishReceived(c.dispatch)

	cp := &paho.Connect{
		ClientID:   c.options.clientID,
		KeepAlive:  c.options.keepAlive,
		CleanStart: atomic.LoadInt64(&c.connCount) == 0,
		Properties: &paho.ConnectProperties{
			SessionExpiryInterval: &c.options.sessionExpiry,
		},
	}
	if c.options.username != "" {
		cp.UsernameFlag = true
		cp.Username = c.options.username
		cp.PasswordFlag = true
		cp.Password = c.options.password
	}

	connack, err := client.Connect(ctx, cp)
	if err != nil {
		_ = conn.Close()
		return errors.WithMessage(err, "connect packet rejected")
	}
	if connack.ReasonCode != 0 {
		_ = conn.Close()
		return errors.Errorf("broker refused connection with reason code %d", connack.ReasonCode)
	}

	c.mutex.Lock()
	c.pahoClient = client
	subs := append([]subscription(nil), c.subs...)
	c.mutex.Unlock()

	atomic.AddInt64(&c.connCount, 1)
	c.connected.Store(true)

	for _, sub := range subs {
		if err = c.sendSubscribe(ctx, client, sub.topic, sub.qos); err != nil {
			c.logger.Warnw("failed to restore subscription", "topic", sub.topic, "err", err)
		}
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	address := fmt.Sprintf("%s:%d", c.options.host, c.options.port)
	if c.options.tlsConfig != nil {
		d := tls.Dialer{Config: c.options.tlsConfig}
		return d.DialContext(ctx, "tcp", address)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", address)
}

func (c *Client) sendSubscribe(ctx context.Context, client *paho.Client, topic string, qos byte) error {
	_, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: qos}},
	})
	return errors.WithMessagef(err, "failed to subscribe to %s", topic)
}

// dispatch routes an inbound publish to every matching handler.
func (c *Client) dispatch(pb paho.PublishReceived) (bool, error) {
	c.mutex.Lock()
	subs := append([]subscription(nil), c.subs...)
	c.mutex.Unlock()

	handled := false
	for _, sub := range subs {
		if sub.topic != pb.Packet.Topic {
			continue
		}
		handled = true
		if err := safe.Run(func() error {
			return sub.handler(context.Background(), pb.Packet.Topic, pb.Packet.Payload)
		}); err != nil {
			c.logger.Warnw("message handler failed", "topic", pb.Packet.Topic, "err", err)
		}
	}
	return handled, nil
}

func (c *Client) notifyLost(err error) {
	if !c.connected.Load() {
		return
	}
	select {
	case c.errChan <- err:
	default:
	}
}
