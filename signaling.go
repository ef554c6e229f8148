package sfuclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

const (
	// DefaultRequestTimeout bounds every correlated signaling round-trip.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultDialTimeout bounds the websocket handshake.
	DefaultDialTimeout = 10 * time.Second

	writeTimeout = 5 * time.Second

	maxRequestId = 4294967295
)

// SignalingOptions configures a SignalingChannel. Zero values fall back to
// the defaults above.
type SignalingOptions struct {
	RequestTimeout time.Duration
	DialTimeout    time.Duration
}

// envelope is the wire framing of every signaling message. A message with an
// id and an event is a request, with an id and no event a response, with an
// event and no id a notification.
type envelope struct {
	Id     uint32          `json:"id,omitempty"`
	Event  string          `json:"event,omitempty"`
	Ok     bool            `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NotificationHandler receives the payload of one server-pushed notification.
type NotificationHandler func(data json.RawMessage)

// Subscription is one registered notification handler. Unsubscribe removes it
// so one-shot waits do not leak.
type Subscription struct {
	event   string
	sid     int64
	handler NotificationHandler
	channel *SignalingChannel
}

// Unsubscribe removes the subscription from its channel.
func (s *Subscription) Unsubscribe() {
	s.channel.removeSubscription(s)
}

type queuedNotification struct {
	event string
	data  json.RawMessage
}

// SignalingChannel is the persistent duplex control connection to the
// signaling server. Requests are correlated to responses by envelope id with
// a per-request timeout; notifications are dispatched in arrival order on a
// single dispatcher goroutine, decoupled from the read loop so handlers may
// themselves issue requests.
type SignalingChannel struct {
	logger  logr.Logger
	conn    *websocket.Conn
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	nextId  uint32
	pending map[uint32]chan envelope

	writeMu sync.Mutex

	subsMu sync.RWMutex
	ssid   int64
	subs   map[string][]*Subscription

	queueMu      sync.Mutex
	queue        []queuedNotification
	qCond        *sync.Cond
	dispatchOnce sync.Once

	closeCh      chan struct{}
	onDisconnect func(err error)
}

// DialSignaling establishes the websocket connection to serverURL. It fails
// with a ConnectionError on refusal or handshake timeout.
func DialSignaling(ctx context.Context, serverURL string, options SignalingOptions) (*SignalingChannel, error) {
	if options.RequestTimeout <= 0 {
		options.RequestTimeout = DefaultRequestTimeout
	}
	if options.DialTimeout <= 0 {
		options.DialTimeout = DefaultDialTimeout
	}

	logger := NewLogger("SignalingChannel")

	dialer := websocket.Dialer{
		HandshakeTimeout: options.DialTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, NewConnectionError(err, "dial %q", serverURL)
	}

	c := &SignalingChannel{
		logger:  logger,
		conn:    conn,
		timeout: options.RequestTimeout,
		pending: make(map[uint32]chan envelope),
		subs:    make(map[string][]*Subscription),
		closeCh: make(chan struct{}),
	}
	c.qCond = sync.NewCond(&c.queueMu)

	go c.readLoop()

	return c, nil
}

// OnDisconnect registers the handler invoked once if the connection drops
// without a prior Close call. A deliberate Close does not trigger it, so the
// owner can tell reconnectable drops from planned teardown.
func (c *SignalingChannel) OnDisconnect(handler func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onDisconnect = handler
}

// Closed tests if the channel has been closed.
func (c *SignalingChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Request sends an id-correlated request and blocks until the matching
// response, the per-request timeout (ProtocolTimeoutError), ctx cancellation
// or channel close. A non-ok response is returned as *ServerError. When
// result is non-nil the response payload is unmarshalled into it.
func (c *SignalingChannel) Request(ctx context.Context, event string, data interface{}, result interface{}) error {
	payload, err := marshalData(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.nextId < maxRequestId {
		c.nextId++
	} else {
		c.nextId = 1
	}
	id := c.nextId
	respCh := make(chan envelope, 1)
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.logger.V(1).Info("request", "event", event, "id", id)

	if err := c.write(envelope{Id: id, Event: event, Data: payload}); err != nil {
		return NewConnectionError(err, "send %q", event)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case rsp := <-respCh:
		if !rsp.Ok {
			return &ServerError{Code: rsp.Error, Reason: rsp.Reason}
		}
		if result != nil && len(rsp.Data) > 0 {
			if err := json.Unmarshal(rsp.Data, result); err != nil {
				return NewInvalidStateError("malformed response for %q: %s", event, err)
			}
		}
		return nil
	case <-timer.C:
		c.logger.Error(nil, "request timed out", "event", event, "id", id)
		return NewProtocolTimeoutError(event, id)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closeCh:
		return ErrChannelClosed
	}
}

// Notify sends a fire-and-forget notification.
func (c *SignalingChannel) Notify(event string, data interface{}) error {
	payload, err := marshalData(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	c.logger.V(1).Info("notify", "event", event)

	if err := c.write(envelope{Event: event, Data: payload}); err != nil {
		return NewConnectionError(err, "send %q", event)
	}
	return nil
}

// Subscribe registers a handler for the named notification. The dispatcher
// starts with the first subscription, so pushes arriving between dial and
// subscribe stay queued instead of being dropped.
func (c *SignalingChannel) Subscribe(event string, handler NotificationHandler) *Subscription {
	c.subsMu.Lock()
	c.ssid++
	sub := &Subscription{
		event:   event,
		sid:     c.ssid,
		handler: handler,
		channel: c,
	}
	c.subs[event] = append(c.subs[event], sub)
	c.subsMu.Unlock()

	c.dispatchOnce.Do(func() { go c.dispatchLoop() })
	return sub
}

func (c *SignalingChannel) removeSubscription(s *Subscription) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	subs := c.subs[s.event]
	for i, sub := range subs {
		if sub.sid == s.sid {
			c.subs[s.event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(c.subs[s.event]) == 0 {
		delete(c.subs, s.event)
	}
}

// Close tears the connection down deliberately. Pending requests fail with
// ErrChannelClosed and queued notifications are discarded.
func (c *SignalingChannel) Close() error {
	return c.shutdown(nil)
}

func (c *SignalingChannel) shutdown(cause error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	onDisconnect := c.onDisconnect
	close(c.closeCh)
	c.mu.Unlock()

	c.logger.V(1).Info("shutdown", "cause", cause)

	err := c.conn.Close()

	// Wake the dispatcher so it can observe the close and drop its queue.
	c.queueMu.Lock()
	c.queue = nil
	c.qCond.Broadcast()
	c.queueMu.Unlock()

	if cause != nil && onDisconnect != nil {
		onDisconnect(cause)
	}
	return err
}

func (c *SignalingChannel) write(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *SignalingChannel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(NewConnectionError(err, "signaling connection lost"))
			return
		}
		c.processMessage(data)
	}
}

func (c *SignalingChannel) processMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Error(err, "received malformed message")
		return
	}

	switch {
	case env.Id > 0:
		c.mu.Lock()
		respCh, ok := c.pending[env.Id]
		c.mu.Unlock()
		if !ok {
			// Late response for an abandoned or timed out request.
			c.logger.V(1).Info("response does not match any pending request", "id", env.Id)
			return
		}
		respCh <- env

	case len(env.Event) > 0:
		c.queueMu.Lock()
		c.queue = append(c.queue, queuedNotification{event: env.Event, data: env.Data})
		c.qCond.Signal()
		c.queueMu.Unlock()

	default:
		c.logger.Error(nil, "received message that is neither response nor notification")
	}
}

// dispatchLoop delivers notifications to subscribers one at a time, in
// arrival order. It exits once the channel is closed; anything still queued
// at that point is dropped so a closed session never observes late events.
func (c *SignalingChannel) dispatchLoop() {
	for {
		c.queueMu.Lock()
		for len(c.queue) == 0 {
			select {
			case <-c.closeCh:
				c.queueMu.Unlock()
				return
			default:
			}
			c.qCond.Wait()
		}
		n := c.queue[0]
		c.queue = c.queue[1:]
		c.queueMu.Unlock()

		c.subsMu.RLock()
		subs := make([]*Subscription, len(c.subs[n.event]))
		copy(subs, c.subs[n.event])
		c.subsMu.RUnlock()

		if len(subs) == 0 {
			c.logger.V(1).Info("notification without subscriber", "event", n.event)
			continue
		}
		for _, sub := range subs {
			sub.handler(n.data)
		}
	}
}

func marshalData(data interface{}) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, NewInvalidStateError("marshal request payload: %s", err)
	}
	return payload, nil
}
