package sfuclient

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// TransportManager creates and owns the session's two transports: exactly one
// send and one recv. Creation is idempotent per direction, the two directions
// are requested in parallel, and each direction's downstream work (producing,
// consuming) is gated on its own transport only.
type TransportManager struct {
	logger  logr.Logger
	channel *SignalingChannel
	engine  MediaEngine
	device  *Device

	mu         sync.RWMutex
	transports map[TransportDirection]*Transport
	onDegraded func(t *Transport, err error)

	// createMu serializes creation per direction without blocking the other.
	createMu map[TransportDirection]*sync.Mutex
}

func NewTransportManager(channel *SignalingChannel, engine MediaEngine, device *Device) *TransportManager {
	return &TransportManager{
		logger:     NewLogger("TransportManager"),
		channel:    channel,
		engine:     engine,
		device:     device,
		transports: make(map[TransportDirection]*Transport),
		createMu: map[TransportDirection]*sync.Mutex{
			Direction_Send: {},
			Direction_Recv: {},
		},
	}
}

// OnDegraded registers the handler invoked when a transport exhausts its ICE
// restart attempt and fails.
func (m *TransportManager) OnDegraded(handler func(t *Transport, err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onDegraded = handler
}

// CreateBoth creates the send and recv transports in parallel. Each is
// finalized (connect handshake completed) before this returns.
func (m *TransportManager) CreateBoth(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := m.EnsureTransport(ctx, Direction_Send)
		return err
	})
	g.Go(func() error {
		_, err := m.EnsureTransport(ctx, Direction_Recv)
		return err
	})
	return g.Wait()
}

// EnsureTransport returns the transport for direction, creating it via the
// signaling round-trip if it does not exist yet. At most one transport per
// direction ever exists.
func (m *TransportManager) EnsureTransport(ctx context.Context, direction TransportDirection) (*Transport, error) {
	if !m.device.Loaded() {
		return nil, NewNotReadyError("cannot create %s transport before capabilities are loaded", direction)
	}

	m.createMu[direction].Lock()
	defer m.createMu[direction].Unlock()

	m.mu.RLock()
	existing := m.transports[direction]
	m.mu.RUnlock()
	if existing != nil && !existing.Closed() {
		return existing, nil
	}

	t, err := m.create(ctx, direction)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.transports[direction] = t
	m.mu.Unlock()

	return t, nil
}

func (m *TransportManager) create(ctx context.Context, direction TransportDirection) (*Transport, error) {
	m.logger.V(1).Info("create()", "direction", direction)

	var created TransportCreatedResponse
	err := m.channel.Request(ctx, EventCreateTransport, CreateTransportRequest{Direction: direction}, &created)
	if err != nil {
		return nil, err
	}
	if len(created.Direction) == 0 {
		created.Direction = direction
	}
	if created.Direction != direction {
		return nil, NewInvalidStateError("server answered %s transport for a %s request", created.Direction, direction)
	}

	t := newTransport(m.channel, created)
	t.onFailure = func(failed *Transport, err error) {
		m.mu.RLock()
		onDegraded := m.onDegraded
		m.mu.RUnlock()
		if onDegraded != nil {
			onDegraded(failed, err)
		}
	}

	options := EngineTransportOptions{
		Id:                      created.Id,
		Direction:               direction,
		IceParameters:           created.IceParameters,
		IceCandidates:           created.IceCandidates,
		DtlsParameters:          created.DtlsParameters,
		OnConnect:               t.onConnect,
		OnConnectionStateChange: t.handleConnectionState,
	}
	if direction == Direction_Send {
		options.OnProduce = func(ctx context.Context, kind MediaKind, rtpParameters RtpParameters) (string, error) {
			var rsp ProducedResponse
			err := m.channel.Request(ctx, EventProduce, ProduceRequest{
				TransportId:   t.Id(),
				Kind:          kind,
				RtpParameters: rtpParameters,
			}, &rsp)
			if err != nil {
				return "", err
			}
			return rsp.Id, nil
		}
	}

	engineTransport, err := m.engine.NewTransport(options)
	if err != nil {
		return nil, NewTransportError(created.Id, "engine transport construction failed: %s", err)
	}
	t.attachEngine(engineTransport)

	// Finalize right away so the connected gate opens independently of any
	// produce or consume activity.
	if err := engineTransport.Connect(ctx); err != nil {
		t.Close()
		return nil, err
	}

	return t, nil
}

// Transport returns the transport for direction, or nil.
func (m *TransportManager) Transport(direction TransportDirection) *Transport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.transports[direction]
}

// CloseAll closes both transports, cascading to their producers and
// consumers via the engine.
func (m *TransportManager) CloseAll() {
	m.mu.Lock()
	transports := make([]*Transport, 0, len(m.transports))
	for _, t := range m.transports {
		transports = append(transports, t)
	}
	m.transports = make(map[TransportDirection]*Transport)
	m.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
}
