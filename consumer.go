package sfuclient

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"
)

// ConsumerState is the lifecycle state of a Consumer. Consumers are created
// paused by design so the server can pace delivery; they become attached only
// after the resume round-trip.
type ConsumerState string

const (
	ConsumerState_Paused   ConsumerState = "paused"
	ConsumerState_Attached ConsumerState = "attached"
	ConsumerState_Closed   ConsumerState = "closed"
)

var validConsumerTransitions = map[ConsumerState][]ConsumerState{
	ConsumerState_Paused:   {ConsumerState_Attached, ConsumerState_Closed},
	ConsumerState_Attached: {ConsumerState_Closed},
	ConsumerState_Closed:   {},
}

// Consumer is a subscribed remote track, keyed by its server-assigned id,
// owned by the recv transport and associated with exactly one peer and one
// media kind.
type Consumer struct {
	logger        logr.Logger
	id            string
	producerId    string
	peerId        string
	kind          MediaKind
	rtpParameters RtpParameters
	receiver      EngineReceiver

	mu    sync.RWMutex
	state ConsumerState
}

func newConsumer(rsp ConsumedResponse, receiver EngineReceiver) *Consumer {
	return &Consumer{
		logger:        NewLogger("Consumer").WithValues("consumerId", rsp.Id, "peerId", rsp.PeerId, "kind", rsp.Kind),
		id:            rsp.Id,
		producerId:    rsp.ProducerId,
		peerId:        rsp.PeerId,
		kind:          rsp.Kind,
		rtpParameters: rsp.RtpParameters,
		receiver:      receiver,
		state:         ConsumerState_Paused,
	}
}

// Id returns the server-assigned consumer id.
func (c *Consumer) Id() string {
	return c.id
}

// ProducerId returns the remote producer this consumer mirrors.
func (c *Consumer) ProducerId() string {
	return c.producerId
}

// PeerId returns the owning remote peer.
func (c *Consumer) PeerId() string {
	return c.peerId
}

// Kind returns the media kind.
func (c *Consumer) Kind() MediaKind {
	return c.kind
}

// RtpParameters returns the receive RTP parameters.
func (c *Consumer) RtpParameters() RtpParameters {
	return c.rtpParameters
}

// Track returns the remote media track.
func (c *Consumer) Track() MediaTrack {
	return c.receiver.Track()
}

// State returns the current lifecycle state.
func (c *Consumer) State() ConsumerState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// Closed reports whether the consumer is closed.
func (c *Consumer) Closed() bool {
	return c.State() == ConsumerState_Closed
}

func (c *Consumer) transition(next ConsumerState) error {
	c.mu.Lock()
	current := c.state
	allowed := false
	for _, s := range validConsumerTransitions[current] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		c.mu.Unlock()
		return NewInvalidStateError("consumer %s: invalid transition %s -> %s", c.id, current, next)
	}
	c.state = next
	c.mu.Unlock()

	c.logger.V(1).Info("transition", "from", current, "to", next)
	return nil
}

func (c *Consumer) close() {
	if err := c.transition(ConsumerState_Closed); err != nil {
		return
	}
	if err := c.receiver.Close(); err != nil {
		c.logger.Error(err, "receiver close failed")
	}
}

// ConsumerManager subscribes to remote tracks on the recv transport. Remote
// producers are announced either in the existingProducers snapshot right
// after join or via live newProducer pushes; announcements that arrive before
// the recv transport exists are queued and replayed, never dropped. Only this
// component mutates the consumer registry.
type ConsumerManager struct {
	logger   logr.Logger
	channel  *SignalingChannel
	device   *Device
	registry *PeerRegistry

	mu         sync.Mutex
	transport  *Transport
	consumers  map[string]*Consumer
	byProducer map[string]string
	pending    []ProducerAnnouncement
}

func NewConsumerManager(channel *SignalingChannel, device *Device, registry *PeerRegistry) *ConsumerManager {
	m := &ConsumerManager{
		logger:     NewLogger("ConsumerManager"),
		channel:    channel,
		device:     device,
		registry:   registry,
		consumers:  make(map[string]*Consumer),
		byProducer: make(map[string]string),
	}
	// Peer removal cascades here: the server may tear the peer's transport
	// down without sending per-consumer close notifications first.
	registry.SetCascade(m.RemovePeerConsumers)
	return m
}

// AttachTransport binds the recv transport and replays every queued
// announcement against it.
func (m *ConsumerManager) AttachTransport(ctx context.Context, transport *Transport) error {
	if transport.Direction() != Direction_Recv {
		return NewInvalidStateError("cannot consume on a %s transport", transport.Direction())
	}

	m.mu.Lock()
	m.transport = transport
	queued := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, announcement := range queued {
		m.consume(ctx, transport, announcement)
	}
	return nil
}

// HandleSnapshot processes the existingProducers snapshot. Equivalent to one
// newProducer push per entry.
func (m *ConsumerManager) HandleSnapshot(ctx context.Context, producers []ProducerAnnouncement) {
	for _, announcement := range producers {
		m.HandleAnnouncement(ctx, announcement)
	}
}

// HandleAnnouncement reacts to one announced remote producer: consume it, or
// queue the request when the recv transport is not available yet.
func (m *ConsumerManager) HandleAnnouncement(ctx context.Context, announcement ProducerAnnouncement) {
	m.mu.Lock()
	transport := m.transport
	if transport == nil {
		m.logger.V(1).Info("queueing announcement, recv transport not ready", "producerId", announcement.ProducerId)
		m.pending = append(m.pending, announcement)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.consume(ctx, transport, announcement)
}

func (m *ConsumerManager) consume(ctx context.Context, transport *Transport, announcement ProducerAnnouncement) {
	m.mu.Lock()
	_, already := m.byProducer[announcement.ProducerId]
	m.mu.Unlock()
	if already {
		// Snapshot and live announcements may overlap.
		m.logger.V(1).Info("producer already consumed", "producerId", announcement.ProducerId)
		return
	}

	caps, err := m.device.RtpCapabilities()
	if err != nil {
		m.logger.Error(err, "consume attempted before capabilities loaded", "producerId", announcement.ProducerId)
		return
	}
	if ok, _ := m.device.CanConsume(announcement.Kind); !ok {
		// Local capability mismatch, same policy as a server cannotConsume.
		m.logger.Info("skipping incompatible producer", "producerId", announcement.ProducerId, "kind", announcement.Kind)
		return
	}

	if err := transport.WaitConnected(ctx); err != nil {
		m.logger.Error(err, "recv transport never connected", "producerId", announcement.ProducerId)
		return
	}

	var rsp ConsumedResponse
	err = m.channel.Request(ctx, EventConsume, ConsumeRequest{
		TransportId:     transport.Id(),
		ProducerId:      announcement.ProducerId,
		RtpCapabilities: caps,
	}, &rsp)
	if err != nil {
		var serverErr *ServerError
		if errors.As(err, &serverErr) && serverErr.Code == ErrorCodeCannotConsume {
			// Codec incompatibility, not a bug. Skip without surfacing.
			m.logger.Info("server cannot consume", "producerId", announcement.ProducerId)
			return
		}
		m.logger.Error(err, "consume request failed", "producerId", announcement.ProducerId)
		return
	}

	receiver, err := transport.Engine().Consume(ctx, EngineConsumeOptions{
		ConsumerId:    rsp.Id,
		ProducerId:    rsp.ProducerId,
		Kind:          rsp.Kind,
		RtpParameters: rsp.RtpParameters,
	})
	if err != nil {
		m.logger.Error(err, "engine consume failed", "consumerId", rsp.Id)
		return
	}

	consumer := newConsumer(rsp, receiver)

	m.mu.Lock()
	m.consumers[consumer.Id()] = consumer
	m.byProducer[consumer.ProducerId()] = consumer.Id()
	m.mu.Unlock()

	// Consumers are created paused server-side; without this resume the track
	// would silently never play.
	err = m.channel.Request(ctx, EventResumeConsumer, ResumeConsumerRequest{ConsumerId: consumer.Id()}, nil)
	if err != nil {
		m.logger.Error(err, "resume failed", "consumerId", consumer.Id())
		m.removeConsumer(consumer)
		return
	}
	if err := consumer.transition(ConsumerState_Attached); err != nil {
		m.logger.Error(err, "attach failed", "consumerId", consumer.Id())
		return
	}

	if replaced := m.registry.AttachConsumer(consumer.PeerId(), consumer); replaced != nil {
		m.logger.V(1).Info("replacing consumer of same kind", "peerId", consumer.PeerId(), "kind", consumer.Kind())
		m.dropConsumer(replaced)
	}

	m.logger.V(1).Info("consuming", "consumerId", consumer.Id(), "producerId", consumer.ProducerId(), "peerId", consumer.PeerId())
}

// HandleConsumerClosed reacts to a server-pushed forced teardown.
func (m *ConsumerManager) HandleConsumerClosed(consumerId string) {
	m.mu.Lock()
	consumer := m.consumers[consumerId]
	m.mu.Unlock()
	if consumer == nil {
		return
	}
	m.logger.V(1).Info("consumer closed by server", "consumerId", consumerId)
	m.registry.DetachConsumer(consumer.PeerId(), consumer)
	m.removeConsumer(consumer)
}

// RemovePeerConsumers cascade-removes every consumer owned by a peer.
func (m *ConsumerManager) RemovePeerConsumers(peerId string) {
	m.mu.Lock()
	var doomed []*Consumer
	for _, consumer := range m.consumers {
		if consumer.PeerId() == peerId {
			doomed = append(doomed, consumer)
		}
	}
	m.mu.Unlock()

	for _, consumer := range doomed {
		m.registry.DetachConsumer(peerId, consumer)
		m.removeConsumer(consumer)
	}
}

func (m *ConsumerManager) dropConsumer(consumer *Consumer) {
	m.removeConsumer(consumer)
}

func (m *ConsumerManager) removeConsumer(consumer *Consumer) {
	m.mu.Lock()
	delete(m.consumers, consumer.Id())
	if m.byProducer[consumer.ProducerId()] == consumer.Id() {
		delete(m.byProducer, consumer.ProducerId())
	}
	m.mu.Unlock()

	consumer.close()
}

// Consumer returns the consumer with the given id, or nil.
func (m *ConsumerManager) Consumer(id string) *Consumer {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.consumers[id]
}

// Consumers returns a snapshot of the registry.
func (m *ConsumerManager) Consumers() []*Consumer {
	m.mu.Lock()
	defer m.mu.Unlock()

	consumers := make([]*Consumer, 0, len(m.consumers))
	for _, c := range m.consumers {
		consumers = append(consumers, c)
	}
	return consumers
}

// CloseAll closes every consumer and drops queued announcements; used on
// session teardown and reconnect.
func (m *ConsumerManager) CloseAll() {
	m.mu.Lock()
	consumers := make([]*Consumer, 0, len(m.consumers))
	for _, c := range m.consumers {
		consumers = append(consumers, c)
	}
	m.consumers = make(map[string]*Consumer)
	m.byProducer = make(map[string]string)
	m.pending = nil
	m.transport = nil
	m.mu.Unlock()

	for _, consumer := range consumers {
		m.registry.DetachConsumer(consumer.PeerId(), consumer)
		consumer.close()
	}
}
