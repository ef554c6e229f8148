package sfuclient

import "context"

// MediaEngine is the native RTC stack performing ICE/DTLS/RTP. The session
// drives it through this boundary; a deterministic implementation lives in
// the synthetic package.
type MediaEngine interface {
	// NativeRtpCapabilities returns what the engine can send and receive at
	// media level, before any negotiation against the router.
	NativeRtpCapabilities() (RtpCapabilities, error)

	// NewTransport constructs the engine side of a transport from the
	// server-provided ICE/DTLS parameters. The returned transport is not yet
	// connected; Connect finalizes it.
	NewTransport(options EngineTransportOptions) (EngineTransport, error)
}

// EngineTransportOptions carries the server transport parameters plus the
// callbacks bridging engine events into signaling round-trips.
type EngineTransportOptions struct {
	Id             string
	Direction      TransportDirection
	IceParameters  IceParameters
	IceCandidates  []IceCandidate
	DtlsParameters DtlsParameters

	// OnConnect is invoked once, when the engine has gathered its local DTLS
	// parameters and needs the remote end to acknowledge them. It must block
	// until the server confirms; the engine does not proceed to produce or
	// consume before it returns nil.
	OnConnect func(ctx context.Context, dtlsParameters DtlsParameters) error

	// OnProduce is invoked for each produced track (send direction only). It
	// must return the server-assigned producer id.
	OnProduce func(ctx context.Context, kind MediaKind, rtpParameters RtpParameters) (string, error)

	// OnConnectionStateChange observes the engine's ICE/DTLS connectivity.
	OnConnectionStateChange func(state ConnectionState)
}

// EngineTransport is the engine side of one transport.
type EngineTransport interface {
	// Connect finalizes the transport: the engine gathers local DTLS
	// parameters and raises OnConnect with them.
	Connect(ctx context.Context) error

	// Produce starts sending the given local track (send direction only). The
	// engine raises OnProduce to obtain the server-assigned id.
	Produce(ctx context.Context, track MediaTrack) (EngineSender, error)

	// Consume starts receiving the remote stream described by the server
	// parameters (recv direction only).
	Consume(ctx context.Context, options EngineConsumeOptions) (EngineReceiver, error)

	// RestartIce applies fresh ICE parameters after a connectivity failure.
	RestartIce(iceParameters IceParameters) error

	Close() error
}

type EngineConsumeOptions struct {
	ConsumerId    string
	ProducerId    string
	Kind          MediaKind
	RtpParameters RtpParameters
}

// EngineSender is an outbound RTP stream inside the engine.
type EngineSender interface {
	// Id is the server-assigned producer id, as returned by OnProduce.
	Id() string
	Track() MediaTrack
	Stop() error
}

// EngineReceiver is an inbound RTP stream inside the engine.
type EngineReceiver interface {
	Track() MediaTrack
	Close() error
}

// MediaTrack is a local or remote media track. Disabling a track is the
// cheap, reversible mute operation; Stop ends it for good.
type MediaTrack interface {
	ID() string
	Kind() MediaKind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()

	// OnEnded registers a handler invoked once when the track ends, either
	// via Stop or because its source went away.
	OnEnded(handler func())
}

// CaptureDevice acquires local capture tracks. Each kind may be denied
// independently with a MediaAccessError; the session degrades to whichever
// tracks are available.
type CaptureDevice interface {
	CaptureAudio(ctx context.Context, constraints AudioConstraints) (MediaTrack, error)
	CaptureVideo(ctx context.Context, constraints VideoConstraints) (MediaTrack, error)
}

// AudioConstraints are the ideal-value capture constraints for microphone
// acquisition.
type AudioConstraints struct {
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
	AutoGainControl  bool `json:"autoGainControl"`
}

// VideoConstraints are the ideal-value capture constraints for camera
// acquisition.
type VideoConstraints struct {
	IdealWidth     int `json:"idealWidth"`
	IdealHeight    int `json:"idealHeight"`
	IdealFrameRate int `json:"idealFrameRate"`
}

// DefaultAudioConstraints returns the constraints used when none are given.
func DefaultAudioConstraints() AudioConstraints {
	return AudioConstraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// DefaultVideoConstraints returns the constraints used when none are given.
func DefaultVideoConstraints() VideoConstraints {
	return VideoConstraints{
		IdealWidth:     1280,
		IdealHeight:    720,
		IdealFrameRate: 30,
	}
}
