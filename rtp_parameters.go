package sfuclient

import "strings"

// Media kind ("audio" or "video").
type MediaKind string

const (
	MediaKind_Audio MediaKind = "audio"
	MediaKind_Video MediaKind = "video"
)

// RtpCapabilities define what an endpoint or the SFU router can receive at
// media level. The router advertises its capabilities right after the room is
// joined; the client computes the usable subset against the native engine
// capabilities and never mutates either copy afterwards.
type RtpCapabilities struct {
	// Codecs is the supported media and RTX codecs.
	Codecs []*RtpCodecCapability `json:"codecs,omitempty"`

	// HeaderExtensions is the supported RTP header extensions.
	HeaderExtensions []*RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

// RtpCodecCapability provides information on the capabilities of a codec
// within the RTP capabilities. Codec-specific parameters such as
// 'packetization-mode' and 'profile-level-id' in H264 are critical for codec
// matching.
type RtpCodecCapability struct {
	// Kind is the media kind.
	Kind MediaKind `json:"kind"`

	// MimeType is the codec MIME media type/subtype (e.g. 'audio/opus', 'video/VP8').
	MimeType string `json:"mimeType"`

	// PreferredPayloadType is the preferred RTP payload type.
	PreferredPayloadType byte `json:"preferredPayloadType,omitempty"`

	// ClockRate is the codec clock rate expressed in Hertz.
	ClockRate int `json:"clockRate"`

	// Channels is the number of channels supported (e.g. 2 for stereo). Just
	// for audio. Default 1.
	Channels int `json:"channels,omitempty"`

	// Parameters is the codec specific parameters.
	Parameters RtpCodecSpecificParameters `json:"parameters,omitempty"`

	// RtcpFeedback is the transport layer and codec-specific feedback messages
	// for this codec.
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

func (r RtpCodecCapability) isRtxCodec() bool {
	return strings.HasSuffix(strings.ToLower(r.MimeType), "/rtx")
}

// Direction of RTP header extension.
type RtpHeaderExtensionDirection string

const (
	Direction_Sendrecv RtpHeaderExtensionDirection = "sendrecv"
	Direction_Sendonly RtpHeaderExtensionDirection = "sendonly"
	Direction_Recvonly RtpHeaderExtensionDirection = "recvonly"
	Direction_Inactive RtpHeaderExtensionDirection = "inactive"
)

// RtpHeaderExtension provides information relating to a supported header
// extension.
type RtpHeaderExtension struct {
	// Kind is the media kind. If empty string, it's valid for all kinds.
	Kind MediaKind `json:"kind"`

	// URI of the RTP header extension, as defined in RFC 5285.
	Uri string `json:"uri"`

	// PreferredId is the preferred numeric identifier that goes in the RTP
	// packet. Must be unique.
	PreferredId int `json:"preferredId"`

	// Direction of the extension from the advertiser's point of view.
	Direction RtpHeaderExtensionDirection `json:"direction,omitempty"`
}

// RtpParameters describe a media stream as sent by a producer or received by
// a consumer: codecs in use, header extensions, encodings (ssrc/rid) and RTCP
// settings. They are produced by the media engine on the send side and by the
// server on the receive side.
type RtpParameters struct {
	// Mid is the MID RTP extension value as defined in the BUNDLE specification.
	Mid string `json:"mid,omitempty"`

	// Codecs are the media and RTX codecs in use.
	Codecs []*RtpCodecParameters `json:"codecs"`

	// HeaderExtensions in use.
	HeaderExtensions []RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`

	// Encodings are the transmitted RTP streams and their settings.
	Encodings []RtpEncodingParameters `json:"encodings,omitempty"`

	// Rtcp parameters.
	Rtcp *RtcpParameters `json:"rtcp,omitempty"`
}

// RtpCodecParameters provides information on codec settings within the RTP
// parameters.
type RtpCodecParameters struct {
	// MimeType is the codec MIME media type/subtype (e.g. 'audio/opus', 'video/VP8').
	MimeType string `json:"mimeType"`

	// PayloadType is the RTP payload type in use.
	PayloadType byte `json:"payloadType"`

	// ClockRate is the codec clock rate expressed in Hertz.
	ClockRate int `json:"clockRate"`

	// Channels is the number of channels supported. Just for audio. Default 1.
	Channels int `json:"channels,omitempty"`

	// Parameters is the codec-specific parameters available for signaling.
	Parameters RtpCodecSpecificParameters `json:"parameters,omitempty"`

	// RtcpFeedback is the transport layer and codec-specific feedback messages
	// for this codec.
	RtcpFeedback []RtcpFeedback `json:"rtcpFeedback,omitempty"`
}

func (r RtpCodecParameters) isRtxCodec() bool {
	return strings.HasSuffix(strings.ToLower(r.MimeType), "/rtx")
}

// RtpCodecSpecificParameters is the reduced codec parameter set relevant for
// matching and negotiation.
type RtpCodecSpecificParameters struct {
	ProfileLevelId    string `json:"profile-level-id,omitempty"`
	PacketizationMode byte   `json:"packetization-mode,omitempty"`
	ProfileId         string `json:"profile-id,omitempty"`
	Apt               byte   `json:"apt,omitempty"`
	Minptime          int    `json:"minptime,omitempty"`
	Useinbandfec      byte   `json:"useinbandfec,omitempty"`
	Usedtx            byte   `json:"usedtx,omitempty"`
	SpropStereo       byte   `json:"sprop-stereo,omitempty"`
}

// RtcpFeedback provides information on RTCP feedback messages for a specific
// codec.
type RtcpFeedback struct {
	// Type of the RTCP feedback (e.g. 'nack', 'ccm', 'transport-cc').
	Type string `json:"type"`

	// Parameter is the type-specific parameter (e.g. 'pli' in 'nack').
	Parameter string `json:"parameter,omitempty"`
}

// RtpEncodingParameters provides information relating to an encoding, which
// represents a media RTP stream and its associated RTX stream (if any).
type RtpEncodingParameters struct {
	// Ssrc is the media SSRC.
	Ssrc uint32 `json:"ssrc,omitempty"`

	// Rid is the RID RTP extension value. Must be unique.
	Rid string `json:"rid,omitempty"`

	// Rtx mapping of the associated RTX stream.
	Rtx *RtpEncodingRtx `json:"rtx,omitempty"`

	// Dtx indicates whether discontinuous RTP transmission is used.
	Dtx bool `json:"dtx,omitempty"`

	// MaxBitrate is the maximum bitrate this encoding may use.
	MaxBitrate int `json:"maxBitrate,omitempty"`

	// ScalabilityMode defines spatial and temporal layers (e.g. 'L1T3').
	ScalabilityMode string `json:"scalabilityMode,omitempty"`
}

// RtpEncodingRtx represents the associated RTX stream for RTP stream
// retransmission.
type RtpEncodingRtx struct {
	Ssrc uint32 `json:"ssrc"`
}

// RtpHeaderExtensionParameters defines a RTP header extension within the RTP
// parameters.
type RtpHeaderExtensionParameters struct {
	// URI of the RTP header extension, as defined in RFC 5285.
	Uri string `json:"uri"`

	// Id is the numeric identifier that goes in the RTP packet. Must be unique.
	Id int `json:"id"`
}

// RtcpParameters provides information on RTCP settings within the RTP
// parameters.
type RtcpParameters struct {
	// Cname is the Canonical Name (CNAME) used by RTCP.
	Cname string `json:"cname,omitempty"`

	// ReducedSize indicates reduced size RTCP (RFC 5506) availability.
	ReducedSize *bool `json:"reducedSize,omitempty"`
}
