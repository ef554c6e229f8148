package sfuclient

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

// ProducerState is the lifecycle state of a Producer.
type ProducerState string

const (
	ProducerState_Open   ProducerState = "open"
	ProducerState_Paused ProducerState = "paused"
	ProducerState_Closed ProducerState = "closed"
)

var validProducerTransitions = map[ProducerState][]ProducerState{
	ProducerState_Open:   {ProducerState_Paused, ProducerState_Closed},
	ProducerState_Paused: {ProducerState_Open, ProducerState_Closed},
	ProducerState_Closed: {},
}

// Producer is a published local track, keyed by its server-assigned id and
// owned by the send transport. Pausing disables the underlying track without
// destroying the producer; a track that actually ends tears the producer
// down and notifies the server.
type Producer struct {
	logger  logr.Logger
	id      string
	kind    MediaKind
	track   MediaTrack
	sender  EngineSender
	channel *SignalingChannel

	mu             sync.RWMutex
	state          ProducerState
	closeListeners []func()
}

func newProducer(channel *SignalingChannel, sender EngineSender, track MediaTrack) *Producer {
	return &Producer{
		logger:  NewLogger("Producer").WithValues("producerId", sender.Id(), "kind", track.Kind()),
		id:      sender.Id(),
		kind:    track.Kind(),
		track:   track,
		sender:  sender,
		channel: channel,
		state:   ProducerState_Open,
	}
}

// Id returns the server-assigned producer id.
func (p *Producer) Id() string {
	return p.id
}

// Kind returns the media kind.
func (p *Producer) Kind() MediaKind {
	return p.kind
}

// Track returns the published local track.
func (p *Producer) Track() MediaTrack {
	return p.track
}

// State returns the current lifecycle state.
func (p *Producer) State() ProducerState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.state
}

// Paused reports whether the producer is paused.
func (p *Producer) Paused() bool {
	return p.State() == ProducerState_Paused
}

// Closed reports whether the producer is closed.
func (p *Producer) Closed() bool {
	return p.State() == ProducerState_Closed
}

// OnClose registers a handler invoked once when the producer closes.
func (p *Producer) OnClose(handler func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeListeners = append(p.closeListeners, handler)
}

func (p *Producer) transition(next ProducerState) error {
	p.mu.Lock()
	current := p.state
	allowed := false
	for _, s := range validProducerTransitions[current] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		p.mu.Unlock()
		return NewInvalidStateError("producer %s: invalid transition %s -> %s", p.id, current, next)
	}
	p.state = next
	p.mu.Unlock()

	p.logger.V(1).Info("transition", "from", current, "to", next)
	return nil
}

// Pause disables the underlying track. Cheap and reversible; nothing is sent
// to the server and the producer keeps its id.
func (p *Producer) Pause() error {
	if err := p.transition(ProducerState_Paused); err != nil {
		return err
	}
	p.track.SetEnabled(false)
	return nil
}

// Resume re-enables the underlying track.
func (p *Producer) Resume() error {
	if err := p.transition(ProducerState_Open); err != nil {
		return err
	}
	p.track.SetEnabled(true)
	return nil
}

// Close stops the engine sender and, when notifyServer is set, tells the
// server the producer is gone. notifyServer is false during session teardown:
// closing the transport already cascades server-side.
func (p *Producer) Close(notifyServer bool) {
	if err := p.transition(ProducerState_Closed); err != nil {
		return
	}

	if err := p.sender.Stop(); err != nil {
		p.logger.Error(err, "sender stop failed")
	}

	if notifyServer {
		err := p.channel.Notify(EventCloseProducer, CloseProducerNotification{ProducerId: p.id})
		if err != nil && err != ErrChannelClosed {
			p.logger.Error(err, "closeProducer notify failed")
		}
	}

	p.mu.RLock()
	listeners := make([]func(), len(p.closeListeners))
	copy(listeners, p.closeListeners)
	p.mu.RUnlock()
	for _, listener := range listeners {
		listener()
	}
}

// ProducerManager publishes local tracks onto the send transport and keeps
// the producer registry. Only this component mutates the registry.
type ProducerManager struct {
	logger  logr.Logger
	channel *SignalingChannel

	mu        sync.RWMutex
	producers map[string]*Producer
}

func NewProducerManager(channel *SignalingChannel) *ProducerManager {
	return &ProducerManager{
		logger:    NewLogger("ProducerManager"),
		channel:   channel,
		producers: make(map[string]*Producer),
	}
}

// Publish produces every given track on the send transport. The transport
// must have completed its connect handshake first; a failure on one track
// does not abort the others, the error of the first failing track is
// returned after all were attempted.
func (m *ProducerManager) Publish(ctx context.Context, transport *Transport, tracks []MediaTrack) ([]*Producer, error) {
	if transport.Direction() != Direction_Send {
		return nil, NewInvalidStateError("cannot publish on a %s transport", transport.Direction())
	}
	if err := transport.WaitConnected(ctx); err != nil {
		return nil, err
	}

	var producers []*Producer
	var firstErr error
	for _, track := range tracks {
		producer, err := m.produce(ctx, transport, track)
		if err != nil {
			m.logger.Error(err, "produce failed", "kind", track.Kind())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		producers = append(producers, producer)
	}
	return producers, firstErr
}

func (m *ProducerManager) produce(ctx context.Context, transport *Transport, track MediaTrack) (*Producer, error) {
	sender, err := transport.Engine().Produce(ctx, track)
	if err != nil {
		return nil, err
	}

	producer := newProducer(m.channel, sender, track)

	m.mu.Lock()
	m.producers[producer.Id()] = producer
	m.mu.Unlock()

	m.logger.V(1).Info("produced", "producerId", producer.Id(), "kind", producer.Kind())

	// A track ending naturally tears down its producer and tells the server,
	// unlike a mute which only disables the track.
	track.OnEnded(func() {
		m.logger.V(1).Info("track ended", "producerId", producer.Id())
		m.closeProducer(producer, true)
	})

	return producer, nil
}

func (m *ProducerManager) closeProducer(producer *Producer, notifyServer bool) {
	m.mu.Lock()
	delete(m.producers, producer.Id())
	m.mu.Unlock()

	producer.Close(notifyServer)
}

// Producer returns the producer with the given id, or nil.
func (m *ProducerManager) Producer(id string) *Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.producers[id]
}

// Producers returns a snapshot of the registry.
func (m *ProducerManager) Producers() []*Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	producers := make([]*Producer, 0, len(m.producers))
	for _, p := range m.producers {
		producers = append(producers, p)
	}
	return producers
}

// SetKindEnabled pauses or resumes every producer of the given kind. This is
// the mute/camera-off toggle.
func (m *ProducerManager) SetKindEnabled(kind MediaKind, enabled bool) {
	for _, producer := range m.Producers() {
		if producer.Kind() != kind || producer.Closed() || producer.Paused() == !enabled {
			continue
		}
		var err error
		if enabled {
			err = producer.Resume()
		} else {
			err = producer.Pause()
		}
		if err != nil {
			m.logger.Error(err, "toggle failed", "producerId", producer.Id())
		}
	}
}

// CloseAll closes every producer without telling the server; used on session
// teardown where closing the transport cascades.
func (m *ProducerManager) CloseAll() {
	for _, producer := range m.Producers() {
		m.closeProducer(producer, false)
	}
}
