package sfuclient

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

// Transport is one direction-tagged ICE/DTLS media path between this client
// and the SFU. It owns the protocol half of the connect handshake: when the
// media engine has gathered local DTLS parameters it raises the connect
// callback, which performs the connectTransport round-trip and only returns
// once the server has acknowledged the matching transport id. The engine
// does not produce or consume before that return.
type Transport struct {
	logger    logr.Logger
	id        string
	direction TransportDirection
	channel   *SignalingChannel

	mu               sync.RWMutex
	state            TransportState
	engine           EngineTransport
	stateListeners   []func(TransportState)
	onFailure        func(t *Transport, err error)
	restartAttempted bool

	connectedOnce sync.Once
	connectedCh   chan struct{}
}

func newTransport(channel *SignalingChannel, created TransportCreatedResponse) *Transport {
	return &Transport{
		logger:      NewLogger("Transport").WithValues("transportId", created.Id, "direction", created.Direction),
		id:          created.Id,
		direction:   created.Direction,
		channel:     channel,
		state:       TransportState_Created,
		connectedCh: make(chan struct{}),
	}
}

// Id returns the server-assigned transport id.
func (t *Transport) Id() string {
	return t.id
}

// Direction returns "send" or "recv".
func (t *Transport) Direction() TransportDirection {
	return t.direction
}

// State returns the current lifecycle state.
func (t *Transport) State() TransportState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.state
}

// Closed reports whether the transport reached its terminal state.
func (t *Transport) Closed() bool {
	return t.State() == TransportState_Closed
}

// OnStateChange registers a diagnostic observer of lifecycle transitions.
// Observers must not create or recreate transports.
func (t *Transport) OnStateChange(handler func(state TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stateListeners = append(t.stateListeners, handler)
}

// Connected returns a channel closed once the transport first reaches
// connected. Producing and consuming are gated on it per direction.
func (t *Transport) Connected() <-chan struct{} {
	return t.connectedCh
}

// WaitConnected blocks until the transport is connected, it is closed, or
// ctx expires.
func (t *Transport) WaitConnected(ctx context.Context) error {
	select {
	case <-t.connectedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition is the single state transition function. Invalid moves are
// rejected rather than silently guarded.
func (t *Transport) transition(next TransportState) error {
	t.mu.Lock()
	current := t.state
	allowed := false
	for _, s := range validTransportTransitions[current] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		t.mu.Unlock()
		return NewInvalidStateError("transport %s: invalid transition %s -> %s", t.id, current, next)
	}
	t.state = next
	listeners := make([]func(TransportState), len(t.stateListeners))
	copy(listeners, t.stateListeners)
	t.mu.Unlock()

	t.logger.V(1).Info("transition", "from", current, "to", next)

	if next == TransportState_Connected {
		t.connectedOnce.Do(func() { close(t.connectedCh) })
	}
	for _, listener := range listeners {
		listener(next)
	}
	return nil
}

// attachEngine binds the engine side once it has been constructed.
func (t *Transport) attachEngine(engine EngineTransport) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.engine = engine
}

// Engine returns the engine side of the transport.
func (t *Transport) Engine() EngineTransport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.engine
}

// onConnect bridges the engine's connect request into the signaling
// round-trip. It blocks until the server acknowledges this transport's id;
// both directions' handshakes may be in flight concurrently, so the id in
// the response payload is verified against the requesting transport.
func (t *Transport) onConnect(ctx context.Context, dtlsParameters DtlsParameters) error {
	if err := t.transition(TransportState_Connecting); err != nil {
		return err
	}

	var rsp TransportConnectedResponse
	err := t.channel.Request(ctx, EventConnectTransport, ConnectTransportRequest{
		TransportId:    t.id,
		DtlsParameters: dtlsParameters,
	}, &rsp)
	if err != nil {
		// Leave the state machine in connecting; the failure surfaces to the
		// produce/consume flow that triggered the handshake.
		return err
	}
	if rsp.TransportId != t.id {
		return NewInvalidStateError("connectTransport ack for %q does not match transport %q", rsp.TransportId, t.id)
	}

	return t.transition(TransportState_Connected)
}

// handleConnectionState observes the engine's ICE/DTLS connectivity. On
// failure one ICE restart is attempted before the transport is declared
// failed and the session degraded.
func (t *Transport) handleConnectionState(state ConnectionState) {
	t.logger.V(1).Info("engine connection state", "state", state)

	if state != ConnectionState_Failed {
		return
	}

	t.mu.Lock()
	if t.state == TransportState_Closed {
		t.mu.Unlock()
		return
	}
	alreadyTried := t.restartAttempted
	t.restartAttempted = true
	onFailure := t.onFailure
	engine := t.engine
	t.mu.Unlock()

	if !alreadyTried {
		restartErr := t.restartIce(engine)
		if restartErr == nil {
			return
		}
		t.logger.Error(restartErr, "ice restart failed")
	}

	err := NewTransportError(t.id, "media connectivity failed")
	if terr := t.transition(TransportState_Failed); terr != nil {
		t.logger.Error(terr, "cannot mark transport failed")
	}
	if onFailure != nil {
		onFailure(t, err)
	}
}

func (t *Transport) restartIce(engine EngineTransport) error {
	t.logger.Info("attempting ice restart")

	ctx, cancel := context.WithTimeout(context.Background(), t.channel.timeout)
	defer cancel()

	var rsp IceRestartedResponse
	err := t.channel.Request(ctx, EventRestartIce, RestartIceRequest{TransportId: t.id}, &rsp)
	if err != nil {
		return err
	}
	if rsp.TransportId != t.id {
		return NewInvalidStateError("restartIce ack for %q does not match transport %q", rsp.TransportId, t.id)
	}
	return engine.RestartIce(rsp.IceParameters)
}

// Close moves the transport to its terminal state and closes the engine
// side. Closing an already closed transport is a no-op.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.state == TransportState_Closed {
		t.mu.Unlock()
		return
	}
	engine := t.engine
	t.mu.Unlock()

	if err := t.transition(TransportState_Closed); err != nil {
		return
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			t.logger.Error(err, "engine close failed")
		}
	}
}
