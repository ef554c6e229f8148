package sfuclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
)

// MinProtocolVersion is the oldest signaling protocol this client speaks.
// Servers advertising an older version in their welcome are rejected.
const MinProtocolVersion = "1.0.0"

var minProtocolVersion = version.Must(version.NewVersion(MinProtocolVersion))

func checkProtocolVersion(advertised string) error {
	if len(advertised) == 0 {
		// Pre-versioning servers send no version; accept them.
		return nil
	}
	v, err := version.NewVersion(advertised)
	if err != nil {
		return NewNegotiationError("malformed server protocol version %q", advertised)
	}
	if v.LessThan(minProtocolVersion) {
		return NewNegotiationError("server protocol %s is older than minimum %s", advertised, MinProtocolVersion)
	}
	return nil
}

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	SessionState_Idle         SessionState = "idle"
	SessionState_Connecting   SessionState = "connecting"
	SessionState_Negotiating  SessionState = "negotiating"
	SessionState_Transporting SessionState = "transporting"
	SessionState_Producing    SessionState = "producing"
	SessionState_Active       SessionState = "active"
	SessionState_Reconnecting SessionState = "reconnecting"
	SessionState_Leaving      SessionState = "leaving"
	SessionState_Closed       SessionState = "closed"
)

var validSessionTransitions = map[SessionState][]SessionState{
	SessionState_Idle:         {SessionState_Connecting, SessionState_Closed},
	SessionState_Connecting:   {SessionState_Negotiating, SessionState_Reconnecting, SessionState_Leaving, SessionState_Closed},
	SessionState_Negotiating:  {SessionState_Transporting, SessionState_Reconnecting, SessionState_Leaving, SessionState_Closed},
	SessionState_Transporting: {SessionState_Producing, SessionState_Reconnecting, SessionState_Leaving, SessionState_Closed},
	SessionState_Producing:    {SessionState_Active, SessionState_Reconnecting, SessionState_Leaving, SessionState_Closed},
	SessionState_Active:       {SessionState_Reconnecting, SessionState_Leaving, SessionState_Closed},
	SessionState_Reconnecting: {SessionState_Connecting, SessionState_Leaving, SessionState_Closed},
	SessionState_Leaving:      {SessionState_Closed},
	SessionState_Closed:       {},
}

// SessionOptions configures a Session. ServerURL, RoomId, Engine and Capture
// are mandatory; everything else has defaults.
type SessionOptions struct {
	ServerURL   string
	RoomId      string
	DisplayName string

	Engine  MediaEngine
	Capture CaptureDevice

	// EnableAudio and EnableVideo select which kinds to capture and publish.
	EnableAudio *bool
	EnableVideo *bool

	AudioConstraints *AudioConstraints
	VideoConstraints *VideoConstraints

	RequestTimeout time.Duration
	DialTimeout    time.Duration

	// ReconnectAttempts bounds the reconnect cycles after an unexpected
	// channel drop.
	ReconnectAttempts int
}

func defaultSessionOptions() SessionOptions {
	enabled := true
	audio := DefaultAudioConstraints()
	video := DefaultVideoConstraints()
	return SessionOptions{
		EnableAudio:       &enabled,
		EnableVideo:       &enabled,
		AudioConstraints:  &audio,
		VideoConstraints:  &video,
		RequestTimeout:    DefaultRequestTimeout,
		DialTimeout:       DefaultDialTimeout,
		ReconnectAttempts: 3,
	}
}

// Session is one call attempt: it owns the signaling channel, the capability
// negotiation, both transports, the producer/consumer registries and the peer
// registry, and drives them through the join/negotiate/produce/consume/leave
// lifecycle. Create one per call; it is not reusable after Close.
type Session struct {
	logger logr.Logger
	id     string
	opts   SessionOptions

	mu                sync.RWMutex
	state             SessionState
	degradedReason    string
	stateListeners    []func(SessionState)
	degradedListeners []func(reason string)
	channel           *SignalingChannel
	device            *Device
	transports        *TransportManager
	producers         *ProducerManager
	consumers         *ConsumerManager
	localTracks       []MediaTrack

	registry *PeerRegistry

	// lifetime is canceled on teardown so in-flight notification handlers
	// stop blocking on transports that will never connect.
	lifetime context.Context
	cancel   context.CancelFunc
}

// NewSession prepares a session in the idle state. It does not touch the
// network; Join does.
func NewSession(opts SessionOptions) (*Session, error) {
	merged := defaultSessionOptions()
	if err := override(&merged, opts); err != nil {
		return nil, NewInvalidStateError("merge session options: %s", err)
	}

	if len(merged.ServerURL) == 0 {
		return nil, NewInvalidStateError("SessionOptions.ServerURL is required")
	}
	if len(merged.RoomId) == 0 {
		return nil, NewInvalidStateError("SessionOptions.RoomId is required")
	}
	if merged.Engine == nil {
		return nil, NewInvalidStateError("SessionOptions.Engine is required")
	}
	if merged.Capture == nil {
		return nil, NewInvalidStateError("SessionOptions.Capture is required")
	}

	id := uuid.NewString()
	lifetime, cancel := context.WithCancel(context.Background())

	return &Session{
		logger:   NewLogger("Session").WithValues("sessionId", id, "roomId", merged.RoomId),
		id:       id,
		opts:     merged,
		state:    SessionState_Idle,
		registry: NewPeerRegistry(),
		lifetime: lifetime,
		cancel:   cancel,
	}, nil
}

// Id returns the locally generated session id.
func (s *Session) Id() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// DegradedReason is non-empty once the session runs with reduced media
// (missing capture kinds or a failed transport). It distinguishes "joined
// degraded" from a healthy active session.
func (s *Session) DegradedReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.degradedReason
}

// Registry exposes room membership to the presentation layer. Read-only for
// callers: only the session's components mutate it.
func (s *Session) Registry() *PeerRegistry {
	return s.registry
}

// Producers returns the published local producers.
func (s *Session) Producers() []*Producer {
	s.mu.RLock()
	producers := s.producers
	s.mu.RUnlock()

	if producers == nil {
		return nil
	}
	return producers.Producers()
}

// Consumers returns the subscribed remote consumers.
func (s *Session) Consumers() []*Consumer {
	s.mu.RLock()
	consumers := s.consumers
	s.mu.RUnlock()

	if consumers == nil {
		return nil
	}
	return consumers.Consumers()
}

// OnStateChange registers an observer of lifecycle transitions.
func (s *Session) OnStateChange(handler func(state SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stateListeners = append(s.stateListeners, handler)
}

// OnDegraded registers an observer of media degradation.
func (s *Session) OnDegraded(handler func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.degradedListeners = append(s.degradedListeners, handler)
}

// SetAudioEnabled toggles the microphone mute. Cheap and reversible; the
// producers stay alive.
func (s *Session) SetAudioEnabled(enabled bool) {
	s.mu.RLock()
	producers := s.producers
	s.mu.RUnlock()

	if producers != nil {
		producers.SetKindEnabled(MediaKind_Audio, enabled)
	}
}

// SetVideoEnabled toggles the camera off/on.
func (s *Session) SetVideoEnabled(enabled bool) {
	s.mu.RLock()
	producers := s.producers
	s.mu.RUnlock()

	if producers != nil {
		producers.SetKindEnabled(MediaKind_Video, enabled)
	}
}

func (s *Session) transition(next SessionState) error {
	s.mu.Lock()
	current := s.state
	allowed := false
	for _, state := range validSessionTransitions[current] {
		if state == next {
			allowed = true
			break
		}
	}
	if !allowed {
		s.mu.Unlock()
		return NewInvalidStateError("session: invalid transition %s -> %s", current, next)
	}
	s.state = next
	listeners := make([]func(SessionState), len(s.stateListeners))
	copy(listeners, s.stateListeners)
	s.mu.Unlock()

	s.logger.V(1).Info("transition", "from", current, "to", next)

	for _, listener := range listeners {
		listener(next)
	}
	return nil
}

func (s *Session) markDegraded(reason string) {
	s.mu.Lock()
	if len(s.degradedReason) > 0 {
		s.degradedReason += "; " + reason
	} else {
		s.degradedReason = reason
	}
	listeners := make([]func(string), len(s.degradedListeners))
	copy(listeners, s.degradedListeners)
	s.mu.Unlock()

	s.logger.Info("session degraded", "reason", reason)

	for _, listener := range listeners {
		listener(reason)
	}
}

// Join connects, negotiates, creates the transports and publishes local
// capture. On return with nil the session is active: both transports are
// connected and capture has resolved; remote consumption may still lag. A
// failure during this initial sequence is fatal ("cannot join at all") and
// leaves the session closed.
func (s *Session) Join(ctx context.Context) error {
	if err := s.transition(SessionState_Connecting); err != nil {
		return err
	}

	if err := s.connectAndJoin(ctx); err != nil {
		s.logger.Error(err, "join failed")
		s.teardown(true)
		s.forceClosed()
		return err
	}
	return nil
}

// connectAndJoin runs one full join sequence. It is reused by the reconnect
// loop, which recreates everything from scratch because server-side ids are
// not stable across reconnects.
func (s *Session) connectAndJoin(ctx context.Context) error {
	channel, err := DialSignaling(ctx, s.opts.ServerURL, SignalingOptions{
		RequestTimeout: s.opts.RequestTimeout,
		DialTimeout:    s.opts.DialTimeout,
	})
	if err != nil {
		return err
	}

	device := NewDevice(s.opts.Engine)
	producers := NewProducerManager(channel)
	consumers := NewConsumerManager(channel, device, s.registry)
	transports := NewTransportManager(channel, s.opts.Engine, device)
	transports.OnDegraded(func(t *Transport, err error) {
		s.markDegraded(string(t.Direction()) + " transport failed")
	})

	s.mu.Lock()
	s.channel = channel
	s.device = device
	s.producers = producers
	s.consumers = consumers
	s.transports = transports
	s.mu.Unlock()

	welcomeCh := make(chan WelcomeNotification, 1)
	capsCh := make(chan RtpCapabilities, 1)
	s.subscribeAll(channel, welcomeCh, capsCh)
	channel.OnDisconnect(s.handleDisconnect)

	// The server greets first; check we speak its protocol before joining.
	select {
	case welcome := <-welcomeCh:
		if err := checkProtocolVersion(welcome.ProtocolVersion); err != nil {
			return err
		}
	case <-time.After(s.opts.RequestTimeout):
		return NewConnectionError(nil, "no welcome from server")
	case <-ctx.Done():
		return ctx.Err()
	}

	err = channel.Request(ctx, EventJoinRoom, JoinRoomRequest{
		RoomId:      s.opts.RoomId,
		DisplayName: s.opts.DisplayName,
	}, nil)
	if err != nil {
		return err
	}

	// Router capabilities arrive asynchronously after the join.
	var routerCaps RtpCapabilities
	select {
	case routerCaps = <-capsCh:
	case <-time.After(s.opts.RequestTimeout):
		return NewNegotiationError("router capabilities never arrived")
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.transition(SessionState_Negotiating); err != nil {
		return err
	}
	if err := device.Load(routerCaps); err != nil {
		return err
	}

	if err := s.transition(SessionState_Transporting); err != nil {
		return err
	}
	if err := transports.CreateBoth(ctx); err != nil {
		return err
	}
	if err := consumers.AttachTransport(s.lifetime, transports.Transport(Direction_Recv)); err != nil {
		return err
	}

	if err := s.transition(SessionState_Producing); err != nil {
		return err
	}

	tracks := s.ensureLocalTracks(ctx)
	if len(tracks) > 0 {
		_, err := producers.Publish(ctx, transports.Transport(Direction_Send), tracks)
		if err != nil {
			// A failing producer degrades the session, it does not kill it.
			s.markDegraded("publish failed: " + err.Error())
		}
	}

	return s.transition(SessionState_Active)
}

func (s *Session) subscribeAll(channel *SignalingChannel, welcomeCh chan WelcomeNotification, capsCh chan RtpCapabilities) {
	subscribe := func(event string, handler NotificationHandler) {
		channel.Subscribe(event, handler)
	}

	subscribe(EventWelcome, func(data json.RawMessage) {
		var welcome WelcomeNotification
		if err := json.Unmarshal(data, &welcome); err == nil {
			select {
			case welcomeCh <- welcome:
			default:
			}
		}
	})
	subscribe(EventRouterCapabilities, func(data json.RawMessage) {
		var caps RtpCapabilities
		if err := json.Unmarshal(data, &caps); err == nil {
			select {
			case capsCh <- caps:
			default:
			}
		}
	})
	subscribe(EventExistingPeers, func(data json.RawMessage) {
		var n ExistingPeersNotification
		if err := json.Unmarshal(data, &n); err == nil {
			s.registry.HandleSnapshot(n.Peers)
		}
	})
	subscribe(EventPeerJoined, func(data json.RawMessage) {
		var info PeerInfo
		if err := json.Unmarshal(data, &info); err == nil {
			s.registry.HandleJoined(info)
		}
	})
	subscribe(EventPeerLeft, func(data json.RawMessage) {
		var n PeerLeftNotification
		if err := json.Unmarshal(data, &n); err == nil {
			s.registry.HandleLeft(n.PeerId)
		}
	})
	subscribe(EventExistingProducers, func(data json.RawMessage) {
		var n ExistingProducersNotification
		if err := json.Unmarshal(data, &n); err == nil {
			s.withConsumers(func(m *ConsumerManager) { m.HandleSnapshot(s.lifetime, n.Producers) })
		}
	})
	subscribe(EventNewProducer, func(data json.RawMessage) {
		var a ProducerAnnouncement
		if err := json.Unmarshal(data, &a); err == nil {
			s.withConsumers(func(m *ConsumerManager) { m.HandleAnnouncement(s.lifetime, a) })
		}
	})
	subscribe(EventConsumerClosed, func(data json.RawMessage) {
		var n ConsumerClosedNotification
		if err := json.Unmarshal(data, &n); err == nil {
			s.withConsumers(func(m *ConsumerManager) { m.HandleConsumerClosed(n.ConsumerId) })
		}
	})
	subscribe(EventCannotConsume, func(data json.RawMessage) {
		var n CannotConsumeNotification
		if err := json.Unmarshal(data, &n); err == nil {
			s.logger.Info("server cannot consume", "producerId", n.ProducerId)
		}
	})
	subscribe(EventServerError, func(data json.RawMessage) {
		var n ServerErrorNotification
		if err := json.Unmarshal(data, &n); err == nil {
			s.logger.Error(nil, "server error", "message", n.Message)
		}
	})
}

func (s *Session) withConsumers(fn func(m *ConsumerManager)) {
	s.mu.RLock()
	consumers := s.consumers
	s.mu.RUnlock()

	if consumers != nil {
		fn(consumers)
	}
}

// ensureLocalTracks captures microphone and camera on first use, tolerating
// partial or full denial, and reuses the live tracks on reconnect.
func (s *Session) ensureLocalTracks(ctx context.Context) []MediaTrack {
	s.mu.RLock()
	existing := s.localTracks
	s.mu.RUnlock()
	if len(existing) > 0 {
		return existing
	}

	var tracks []MediaTrack

	if *s.opts.EnableAudio {
		track, err := s.opts.Capture.CaptureAudio(ctx, *s.opts.AudioConstraints)
		if err != nil {
			s.logger.Error(err, "microphone unavailable")
			s.markDegraded("no audio capture")
		} else {
			tracks = append(tracks, track)
		}
	}
	if *s.opts.EnableVideo {
		track, err := s.opts.Capture.CaptureVideo(ctx, *s.opts.VideoConstraints)
		if err != nil {
			s.logger.Error(err, "camera unavailable")
			s.markDegraded("no video capture")
		} else {
			tracks = append(tracks, track)
		}
	}

	s.mu.Lock()
	s.localTracks = tracks
	s.mu.Unlock()

	return tracks
}

// handleDisconnect reacts to an unexpected channel drop by running bounded
// reconnect cycles. Each cycle rebuilds transports, producers and consumers
// from scratch.
func (s *Session) handleDisconnect(cause error) {
	state := s.State()
	if state == SessionState_Leaving || state == SessionState_Closed {
		return
	}

	s.logger.Info("signaling disconnected, reconnecting", "cause", cause.Error())

	if err := s.transition(SessionState_Reconnecting); err != nil {
		return
	}

	go s.reconnectLoop()
}

func (s *Session) reconnectLoop() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	for attempt := 1; attempt <= s.opts.ReconnectAttempts; attempt++ {
		s.teardown(false)

		wait := bo.NextBackOff()
		s.logger.Info("reconnect attempt", "attempt", attempt, "backoff", wait.String())
		time.Sleep(wait)

		if s.State() != SessionState_Reconnecting {
			// Leave won the race.
			return
		}
		if err := s.transition(SessionState_Connecting); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.connectAndJoin(ctx)
		cancel()
		if err == nil {
			s.logger.Info("reconnected", "attempt", attempt)
			return
		}

		s.logger.Error(err, "reconnect attempt failed", "attempt", attempt)
		if s.transition(SessionState_Reconnecting) != nil {
			return
		}
	}

	s.logger.Error(nil, "reconnect attempts exhausted")
	s.teardown(true)
	s.forceClosed()
}

// Leave ends the session: it stops local capture tracks, closes both
// transports (cascading to producers and consumers) and then the signaling
// channel — in that order, continuing past intermediate failures.
func (s *Session) Leave() error {
	if err := s.transition(SessionState_Leaving); err != nil {
		// Leaving from idle or an already closing session.
		if s.State() == SessionState_Closed {
			return nil
		}
		s.forceClosed()
		return nil
	}

	s.logger.Info("leaving")
	s.teardown(true)
	return s.transition(SessionState_Closed)
}

// Close is Leave; it satisfies io.Closer for callers that prefer it.
func (s *Session) Close() error {
	return s.Leave()
}

// teardown releases everything the session owns, in leave order. When
// stopCapture is false (reconnect) the local capture tracks stay alive for
// re-publication.
func (s *Session) teardown(stopCapture bool) {
	s.mu.Lock()
	channel := s.channel
	producers := s.producers
	consumers := s.consumers
	transports := s.transports
	tracks := s.localTracks
	if stopCapture {
		s.localTracks = nil
	}
	s.mu.Unlock()

	if stopCapture {
		s.cancel()
		for _, track := range tracks {
			track.Stop()
		}
	}

	if producers != nil {
		producers.CloseAll()
	}
	if consumers != nil {
		consumers.CloseAll()
	}
	if transports != nil {
		transports.CloseAll()
	}
	s.registry.Clear()

	if channel != nil {
		if err := channel.Close(); err != nil {
			s.logger.Error(err, "channel close failed")
		}
	}
}

// forceClosed drives the state machine to closed from wherever it is.
func (s *Session) forceClosed() {
	s.mu.Lock()
	current := s.state
	if current == SessionState_Closed {
		s.mu.Unlock()
		return
	}
	s.state = SessionState_Closed
	listeners := make([]func(SessionState), len(s.stateListeners))
	copy(listeners, s.stateListeners)
	s.mu.Unlock()

	s.logger.V(1).Info("transition", "from", current, "to", SessionState_Closed)

	for _, listener := range listeners {
		listener(SessionState_Closed)
	}
}
