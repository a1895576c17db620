package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"

	"fleetmon/internal/metrics"
)

// State is the observable connection state of the shared client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// MessageHandler receives the body of one push message for a topic.
type MessageHandler func(topic string, body []byte)

// StateListener observes connection state transitions.
type StateListener func(State)

// ErrorListener observes typed transport failures.
type ErrorListener func(Error)

// SubscriptionID is an opaque handle for one topic subscription.
type SubscriptionID uint64

// session is the live broker session behind the client. The production
// implementation speaks STOMP over a websocket; tests inject fakes.
type session interface {
	Subscribe(destination string) (remoteSubscription, error)
	Send(destination, contentType string, body []byte) error
	Disconnect() error
}

// remoteSubscription is one server-side subscription's message feed.
type remoteSubscription interface {
	Messages() <-chan *stomp.Message
	Unsubscribe() error
}

// Dialer establishes one authenticated broker session.
type Dialer func(ctx context.Context) (session, error)

// ErrNotConnected is returned by Publish when no session is established.
// Publishing never triggers an implicit connect.
var ErrNotConnected = errors.New("transport: not connected")

type clientSub struct {
	id      SubscriptionID
	topic   string
	handler MessageHandler
	remote  remoteSubscription
	cancel  chan struct{}
}

// Client is the process-wide duplex messaging client. All features multiplex
// independent topic subscriptions over its single connection; only the
// composition root may call Disconnect.
//
// The client does not replay subscriptions after a reconnect: on connection
// loss the subscription table is cleared and consumers are expected to
// resubscribe when they observe the connected transition.
type Client struct {
	dial        Dialer
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(time.Duration)

	mu             sync.Mutex
	state          State
	sess           session
	gen            uint64
	nextSubID      SubscriptionID
	subs           map[SubscriptionID]*clientSub
	stateListeners map[int]StateListener
	errorListeners map[int]ErrorListener
	nextListenerID int
}

// Options tune the client; zero values select the defaults.
type Options struct {
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	Logger               *slog.Logger

	// sleep overrides backoff waiting in tests.
	sleep func(time.Duration)
}

func NewClient(dial Dialer, opts Options) *Client {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.sleep == nil {
		opts.sleep = time.Sleep
	}
	return &Client{
		dial:           dial,
		logger:         opts.Logger,
		maxAttempts:    opts.MaxReconnectAttempts,
		baseDelay:      opts.ReconnectBaseDelay,
		sleep:          opts.sleep,
		state:          StateDisconnected,
		subs:           make(map[SubscriptionID]*clientSub),
		stateListeners: make(map[int]StateListener),
		errorListeners: make(map[int]ErrorListener),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a state listener and returns its removal func.
func (c *Client) OnStateChange(l StateListener) func() {
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.stateListeners[id] = l
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.stateListeners, id)
		c.mu.Unlock()
	}
}

// OnError registers an error listener and returns its removal func.
func (c *Client) OnError(l ErrorListener) func() {
	c.mu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.errorListeners[id] = l
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.errorListeners, id)
		c.mu.Unlock()
	}
}

// Connect establishes the session. It is idempotent: a no-op while already
// connected or connecting. The dial runs asynchronously; progress is reported
// through state listeners.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	notify()

	go c.establish(gen)
}

func (c *Client) establish(gen uint64) {
	sess, err := c.dial(context.Background())

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if err == nil {
			_ = sess.Disconnect()
		}
		return
	}
	if err != nil {
		notify := c.setStateLocked(StateError)
		c.mu.Unlock()
		notify()
		c.emitError(Error{Kind: ErrorKindConnection, Err: err})
		return
	}
	c.sess = sess
	notify := c.setStateLocked(StateConnected)
	pending := make([]*clientSub, 0, len(c.subs))
	for _, sub := range c.subs {
		if sub.remote == nil {
			pending = append(pending, sub)
		}
	}
	c.mu.Unlock()

	c.logger.Info("stream connected")
	for _, sub := range pending {
		c.bind(gen, sub)
	}
	notify()
}

// Subscribe registers a handler for one topic and returns an opaque handle.
// While disconnected it triggers Connect and queues the subscription until the
// session is up; subscribe failures are reported through error listeners and
// never block other subscriptions.
func (c *Client) Subscribe(topic string, handler MessageHandler) SubscriptionID {
	c.mu.Lock()
	c.nextSubID++
	sub := &clientSub{
		id:      c.nextSubID,
		topic:   topic,
		handler: handler,
		cancel:  make(chan struct{}),
	}
	c.subs[sub.id] = sub
	gen := c.gen
	connected := c.state == StateConnected
	c.mu.Unlock()

	metrics.ActiveSubscriptions.Inc()
	if connected {
		c.bind(gen, sub)
	} else {
		c.Connect()
	}
	return sub.id
}

// bind issues the server-side subscribe for sub and starts its pump.
func (c *Client) bind(gen uint64, sub *clientSub) {
	c.mu.Lock()
	if gen != c.gen || c.sess == nil || c.subs[sub.id] != sub {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	c.mu.Unlock()

	remote, err := sess.Subscribe(sub.topic)
	if err != nil {
		c.emitError(Error{Kind: ErrorKindSubscription, Topic: sub.topic, Err: err})
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.subs[sub.id] != sub {
		c.mu.Unlock()
		_ = remote.Unsubscribe()
		return
	}
	sub.remote = remote
	c.mu.Unlock()

	go c.pump(gen, sub, remote)
}

func (c *Client) pump(gen uint64, sub *clientSub, remote remoteSubscription) {
	for {
		select {
		case <-sub.cancel:
			return
		case msg, ok := <-remote.Messages():
			if !ok || msg == nil {
				c.connectionLost(gen, errors.New("subscription channel closed"))
				return
			}
			if msg.Err != nil {
				c.emitError(Error{Kind: ErrorKindMessage, Topic: sub.topic, Err: msg.Err})
				c.connectionLost(gen, msg.Err)
				return
			}
			sub.handler(sub.topic, msg.Body)
		}
	}
}

// Unsubscribe removes exactly one subscription. Unknown or already removed
// handles are a no-op.
func (c *Client) Unsubscribe(id SubscriptionID) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.subs, id)
	c.mu.Unlock()

	metrics.ActiveSubscriptions.Dec()
	close(sub.cancel)
	if sub.remote != nil {
		if err := sub.remote.Unsubscribe(); err != nil {
			c.logger.Debug("unsubscribe failed", "topic", sub.topic, "error", err)
		}
	}
}

// Publish sends one payload to a topic. It fails fast when no session is
// established: the error is returned and reported, and no connect is attempted.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	sess := c.sess
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || sess == nil {
		err := Error{Kind: ErrorKindConnection, Topic: topic, Err: ErrNotConnected}
		c.emitError(err)
		return err
	}
	if err := sess.Send(topic, "application/json", payload); err != nil {
		werr := Error{Kind: ErrorKindMessage, Topic: topic, Err: err}
		c.emitError(werr)
		return werr
	}
	return nil
}

// Disconnect tears everything down: all subscriptions, the session, and any
// reconnect progress. Only the root owner of the client may call it.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	sess := c.sess
	c.sess = nil
	subs := c.subs
	c.subs = make(map[SubscriptionID]*clientSub)
	notify := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	for _, sub := range subs {
		closeOnce(sub.cancel)
		metrics.ActiveSubscriptions.Dec()
	}
	if sess != nil {
		if err := sess.Disconnect(); err != nil {
			c.logger.Debug("session disconnect failed", "error", err)
		}
	}
	notify()
}

// connectionLost begins the bounded reconnect sequence unless the loss belongs
// to a previous session generation.
func (c *Client) connectionLost(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	newGen := c.gen
	c.sess = nil
	// Subscriptions are not replayed across reconnects; consumers resubscribe
	// on the next connected transition.
	subs := c.subs
	c.subs = make(map[SubscriptionID]*clientSub)
	notify := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	for _, sub := range subs {
		closeOnce(sub.cancel)
		metrics.ActiveSubscriptions.Dec()
	}
	c.logger.Warn("stream connection lost, reconnecting", "error", cause)
	notify()

	go c.reconnect(newGen)
}

func (c *Client) reconnect(gen uint64) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.sleep(c.baseDelay * time.Duration(attempt))

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		sess, err := c.dial(context.Background())
		if err != nil {
			metrics.ReconnectAttemptsTotal.WithLabelValues("failure").Inc()
			c.logger.Warn("reconnect attempt failed", "attempt", attempt, "max", c.maxAttempts, "error", err)
			c.emitError(Error{Kind: ErrorKindConnection, Err: err})
			continue
		}

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			_ = sess.Disconnect()
			return
		}
		c.sess = sess
		notify := c.setStateLocked(StateConnected)
		c.mu.Unlock()

		metrics.ReconnectAttemptsTotal.WithLabelValues("success").Inc()
		c.logger.Info("stream reconnected", "attempt", attempt)
		notify()
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	notify := c.setStateLocked(StateError)
	c.mu.Unlock()
	notify()

	err := Error{
		Kind:     ErrorKindConnection,
		Terminal: true,
		Err:      errors.New("reconnect attempts exhausted"),
	}
	c.logger.Error("reconnect attempts exhausted, giving up", "attempts", c.maxAttempts)
	c.emitError(err)
}

// setStateLocked mutates state and returns the notification to run after the
// lock is released, so listeners observe transitions in order and may call
// back into the client.
func (c *Client) setStateLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	if s == StateConnected {
		metrics.StreamConnected.Set(1)
	} else {
		metrics.StreamConnected.Set(0)
	}
	listeners := make([]StateListener, 0, len(c.stateListeners))
	for _, l := range c.stateListeners {
		listeners = append(listeners, l)
	}
	return func() {
		for _, l := range listeners {
			l(s)
		}
	}
}

func (c *Client) emitError(err Error) {
	c.mu.Lock()
	listeners := make([]ErrorListener, 0, len(c.errorListeners))
	for _, l := range c.errorListeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l(err)
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
