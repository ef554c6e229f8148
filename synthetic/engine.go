// Package synthetic provides a deterministic MediaEngine and CaptureDevice
// for tests and for the sfu-probe command. No real ICE, DTLS or RTP is
// performed; the engine answers every callback with predictable values so the
// full signaling sequence can run against a scripted server.
package synthetic

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/workmesh/sfuclient"
)

// Engine is a MediaEngine that fabricates transports, senders and receivers.
// A single Engine may back several transports; ids and SSRCs are drawn from a
// shared counter so repeated runs produce the same sequence.
type Engine struct {
	mu         sync.Mutex
	transports map[sfuclient.TransportDirection]*Transport
	seq        atomic.Uint64
}

func NewEngine() *Engine {
	return &Engine{
		transports: make(map[sfuclient.TransportDirection]*Transport),
	}
}

func (e *Engine) next() uint64 {
	return e.seq.Add(1)
}

// Transport returns the engine transport last created for the direction, for
// test inspection.
func (e *Engine) Transport(direction sfuclient.TransportDirection) *Transport {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.transports[direction]
}

func (e *Engine) NativeRtpCapabilities() (sfuclient.RtpCapabilities, error) {
	return nativeRtpCapabilities(), nil
}

func (e *Engine) NewTransport(options sfuclient.EngineTransportOptions) (sfuclient.EngineTransport, error) {
	transport := newTransport(e, options)

	e.mu.Lock()
	e.transports[options.Direction] = transport
	e.mu.Unlock()

	return transport, nil
}

func nativeRtpCapabilities() sfuclient.RtpCapabilities {
	return sfuclient.RtpCapabilities{
		Codecs: []*sfuclient.RtpCodecCapability{
			{
				Kind:                 sfuclient.MediaKind_Audio,
				MimeType:             "audio/opus",
				PreferredPayloadType: 111,
				ClockRate:            48000,
				Channels:             2,
				Parameters: sfuclient.RtpCodecSpecificParameters{
					Minptime:     10,
					Useinbandfec: 1,
				},
				RtcpFeedback: []sfuclient.RtcpFeedback{
					{Type: "transport-cc"},
				},
			},
			{
				Kind:                 sfuclient.MediaKind_Video,
				MimeType:             "video/VP8",
				PreferredPayloadType: 96,
				ClockRate:            90000,
				RtcpFeedback: []sfuclient.RtcpFeedback{
					{Type: "nack"},
					{Type: "nack", Parameter: "pli"},
					{Type: "ccm", Parameter: "fir"},
					{Type: "goog-remb"},
					{Type: "transport-cc"},
				},
			},
			{
				Kind:                 sfuclient.MediaKind_Video,
				MimeType:             "video/rtx",
				PreferredPayloadType: 97,
				ClockRate:            90000,
				Parameters: sfuclient.RtpCodecSpecificParameters{
					Apt: 96,
				},
			},
			{
				Kind:                 sfuclient.MediaKind_Video,
				MimeType:             "video/H264",
				PreferredPayloadType: 102,
				ClockRate:            90000,
				Parameters: sfuclient.RtpCodecSpecificParameters{
					PacketizationMode: 1,
					ProfileLevelId:    "42e01f",
				},
				RtcpFeedback: []sfuclient.RtcpFeedback{
					{Type: "nack"},
					{Type: "nack", Parameter: "pli"},
					{Type: "ccm", Parameter: "fir"},
					{Type: "transport-cc"},
				},
			},
			{
				Kind:                 sfuclient.MediaKind_Video,
				MimeType:             "video/rtx",
				PreferredPayloadType: 103,
				ClockRate:            90000,
				Parameters: sfuclient.RtpCodecSpecificParameters{
					Apt: 102,
				},
			},
		},
		HeaderExtensions: []*sfuclient.RtpHeaderExtension{
			{
				Kind:        sfuclient.MediaKind_Audio,
				Uri:         "urn:ietf:params:rtp-hdrext:sdes:mid",
				PreferredId: 1,
				Direction:   sfuclient.Direction_Sendrecv,
			},
			{
				Kind:        sfuclient.MediaKind_Video,
				Uri:         "urn:ietf:params:rtp-hdrext:sdes:mid",
				PreferredId: 1,
				Direction:   sfuclient.Direction_Sendrecv,
			},
			{
				Kind:        sfuclient.MediaKind_Audio,
				Uri:         "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
				PreferredId: 5,
				Direction:   sfuclient.Direction_Sendrecv,
			},
			{
				Kind:        sfuclient.MediaKind_Video,
				Uri:         "http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
				PreferredId: 5,
				Direction:   sfuclient.Direction_Sendrecv,
			},
			{
				Kind:        sfuclient.MediaKind_Audio,
				Uri:         "urn:ietf:params:rtp-hdrext:ssrc-audio-level",
				PreferredId: 10,
				Direction:   sfuclient.Direction_Sendrecv,
			},
		},
	}
}

func localDtlsParameters(n uint64) sfuclient.DtlsParameters {
	return sfuclient.DtlsParameters{
		Role: sfuclient.DtlsRole_Client,
		Fingerprints: []sfuclient.DtlsFingerprint{
			{
				Algorithm: "sha-256",
				Value:     fmt.Sprintf("%064x", n),
			},
		},
	}
}
