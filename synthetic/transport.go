package synthetic

import (
	"context"
	"fmt"
	"sync"

	"github.com/workmesh/sfuclient"
)

// Transport is the engine side of one synthetic transport. Connect raises
// OnConnect with a generated DTLS fingerprint and then walks the connection
// state to connected; tests can push arbitrary states afterwards with
// SetConnectionState to exercise failure handling.
type Transport struct {
	engine *Engine
	opts   sfuclient.EngineTransportOptions

	mu            sync.Mutex
	state         sfuclient.ConnectionState
	closed        bool
	iceParameters sfuclient.IceParameters
	iceRestarts   int
	senders       []*sender
	receivers     []*receiver
}

func newTransport(engine *Engine, opts sfuclient.EngineTransportOptions) *Transport {
	return &Transport{
		engine:        engine,
		opts:          opts,
		state:         sfuclient.ConnectionState_New,
		iceParameters: opts.IceParameters,
	}
}

func (t *Transport) Id() string {
	return t.opts.Id
}

func (t *Transport) Direction() sfuclient.TransportDirection {
	return t.opts.Direction
}

// IceRestarts counts RestartIce calls, for test inspection.
func (t *Transport) IceRestarts() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.iceRestarts
}

// ConnectionState returns the last state pushed to the observer.
func (t *Transport) ConnectionState() sfuclient.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// SetConnectionState pushes a connection state to the registered observer,
// exactly as a native stack would on an ICE event.
func (t *Transport) SetConnectionState(state sfuclient.ConnectionState) {
	t.mu.Lock()
	t.state = state
	handler := t.opts.OnConnectionStateChange
	t.mu.Unlock()

	if handler != nil {
		handler(state)
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return sfuclient.ErrTransportClosed
	}
	t.mu.Unlock()

	t.SetConnectionState(sfuclient.ConnectionState_Connecting)

	if err := t.opts.OnConnect(ctx, localDtlsParameters(t.engine.next())); err != nil {
		t.SetConnectionState(sfuclient.ConnectionState_Failed)
		return err
	}

	t.SetConnectionState(sfuclient.ConnectionState_Connected)
	return nil
}

func (t *Transport) Produce(ctx context.Context, track sfuclient.MediaTrack) (sfuclient.EngineSender, error) {
	if t.opts.Direction != sfuclient.Direction_Send {
		return nil, sfuclient.NewInvalidStateError("synthetic: produce on %s transport", t.opts.Direction)
	}

	rtpParameters := t.sendRtpParameters(track.Kind())
	id, err := t.opts.OnProduce(ctx, track.Kind(), rtpParameters)
	if err != nil {
		return nil, err
	}

	s := &sender{id: id, track: track}

	t.mu.Lock()
	t.senders = append(t.senders, s)
	t.mu.Unlock()

	return s, nil
}

func (t *Transport) Consume(ctx context.Context, options sfuclient.EngineConsumeOptions) (sfuclient.EngineReceiver, error) {
	if t.opts.Direction != sfuclient.Direction_Recv {
		return nil, sfuclient.NewInvalidStateError("synthetic: consume on %s transport", t.opts.Direction)
	}

	track := newTrack(fmt.Sprintf("remote-%s", options.ConsumerId), options.Kind)
	r := &receiver{track: track}

	t.mu.Lock()
	t.receivers = append(t.receivers, r)
	t.mu.Unlock()

	return r, nil
}

func (t *Transport) RestartIce(iceParameters sfuclient.IceParameters) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return sfuclient.ErrTransportClosed
	}
	t.iceParameters = iceParameters
	t.iceRestarts++
	t.mu.Unlock()

	t.SetConnectionState(sfuclient.ConnectionState_Connecting)
	t.SetConnectionState(sfuclient.ConnectionState_Connected)
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.state = sfuclient.ConnectionState_Closed
	receivers := t.receivers
	t.mu.Unlock()

	for _, r := range receivers {
		r.Close()
	}
	return nil
}

// sendRtpParameters fabricates the parameters a native stack would derive
// from its SDP for the given kind, using the engine's codec set.
func (t *Transport) sendRtpParameters(kind sfuclient.MediaKind) sfuclient.RtpParameters {
	n := t.engine.next()
	caps := nativeRtpCapabilities()

	// One media codec plus its RTX, like a native stack after SDP munging.
	var codecs []*sfuclient.RtpCodecParameters
	var primary byte
	for _, codec := range caps.Codecs {
		if codec.Kind != kind {
			continue
		}
		if primary == 0 && codec.Parameters.Apt == 0 {
			primary = codec.PreferredPayloadType
		} else if codec.Parameters.Apt != primary {
			continue
		}
		codecs = append(codecs, &sfuclient.RtpCodecParameters{
			MimeType:     codec.MimeType,
			PayloadType:  codec.PreferredPayloadType,
			ClockRate:    codec.ClockRate,
			Channels:     codec.Channels,
			Parameters:   codec.Parameters,
			RtcpFeedback: codec.RtcpFeedback,
		})
	}

	var headerExtensions []sfuclient.RtpHeaderExtensionParameters
	for _, ext := range caps.HeaderExtensions {
		if ext.Kind != kind {
			continue
		}
		headerExtensions = append(headerExtensions, sfuclient.RtpHeaderExtensionParameters{
			Uri: ext.Uri,
			Id:  ext.PreferredId,
		})
	}

	reducedSize := true
	encoding := sfuclient.RtpEncodingParameters{Ssrc: uint32(1000 + n)}
	if kind == sfuclient.MediaKind_Video {
		encoding.Rtx = &sfuclient.RtpEncodingRtx{Ssrc: uint32(2000 + n)}
	}

	return sfuclient.RtpParameters{
		Mid:              fmt.Sprintf("%d", n),
		Codecs:           codecs,
		HeaderExtensions: headerExtensions,
		Encodings:        []sfuclient.RtpEncodingParameters{encoding},
		Rtcp: &sfuclient.RtcpParameters{
			Cname:       fmt.Sprintf("synthetic-%d", n),
			ReducedSize: &reducedSize,
		},
	}
}

type sender struct {
	id    string
	track sfuclient.MediaTrack

	mu      sync.Mutex
	stopped bool
}

func (s *sender) Id() string {
	return s.id
}

func (s *sender) Track() sfuclient.MediaTrack {
	return s.track
}

func (s *sender) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	return nil
}

type receiver struct {
	track *Track
}

func (r *receiver) Track() sfuclient.MediaTrack {
	return r.track
}

func (r *receiver) Close() error {
	r.track.Stop()
	return nil
}
