package synthetic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workmesh/sfuclient"
)

func TestNativeCapabilitiesAreValid(t *testing.T) {
	engine := NewEngine()

	caps, err := engine.NativeRtpCapabilities()
	require.NoError(t, err)
	require.NotEmpty(t, caps.Codecs)

	for _, codec := range caps.Codecs {
		assert.NotEmpty(t, codec.MimeType)
		assert.NotZero(t, codec.ClockRate)
		assert.NotZero(t, codec.PreferredPayloadType)
	}
}

func TestTransportConnectRaisesCallback(t *testing.T) {
	engine := NewEngine()

	var gotDtls sfuclient.DtlsParameters
	transport, err := engine.NewTransport(sfuclient.EngineTransportOptions{
		Id:        "t1",
		Direction: sfuclient.Direction_Send,
		OnConnect: func(ctx context.Context, dtls sfuclient.DtlsParameters) error {
			gotDtls = dtls
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, transport.Connect(context.Background()))
	require.NotEmpty(t, gotDtls.Fingerprints)
	assert.Equal(t, "sha-256", gotDtls.Fingerprints[0].Algorithm)

	st := engine.Transport(sfuclient.Direction_Send)
	require.NotNil(t, st)
	assert.Equal(t, sfuclient.ConnectionState_Connected, st.ConnectionState())
}

func TestProduceRaisesOnProduceWithSendParameters(t *testing.T) {
	engine := NewEngine()

	var gotKind sfuclient.MediaKind
	var gotParams sfuclient.RtpParameters
	transport, err := engine.NewTransport(sfuclient.EngineTransportOptions{
		Id:        "t1",
		Direction: sfuclient.Direction_Send,
		OnConnect: func(context.Context, sfuclient.DtlsParameters) error { return nil },
		OnProduce: func(ctx context.Context, kind sfuclient.MediaKind, params sfuclient.RtpParameters) (string, error) {
			gotKind = kind
			gotParams = params
			return "producer-1", nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, transport.Connect(context.Background()))

	track := newTrack("cam-1", sfuclient.MediaKind_Video)
	sender, err := transport.Produce(context.Background(), track)
	require.NoError(t, err)

	assert.Equal(t, "producer-1", sender.Id())
	assert.Equal(t, sfuclient.MediaKind_Video, gotKind)
	require.NotEmpty(t, gotParams.Codecs)
	assert.Equal(t, "video/VP8", gotParams.Codecs[0].MimeType)
	require.Len(t, gotParams.Encodings, 1)
	assert.NotZero(t, gotParams.Encodings[0].Ssrc)
	require.NotNil(t, gotParams.Encodings[0].Rtx)

	// A recv transport must refuse to produce.
	recv, err := engine.NewTransport(sfuclient.EngineTransportOptions{
		Id:        "t2",
		Direction: sfuclient.Direction_Recv,
		OnConnect: func(context.Context, sfuclient.DtlsParameters) error { return nil },
	})
	require.NoError(t, err)
	_, err = recv.Produce(context.Background(), track)
	assert.Error(t, err)
}

func TestCaptureDenial(t *testing.T) {
	capture := NewCapture()
	capture.DenyAudio = true

	_, err := capture.CaptureAudio(context.Background(), sfuclient.DefaultAudioConstraints())
	var accessErr *sfuclient.MediaAccessError
	require.ErrorAs(t, err, &accessErr)
	assert.Equal(t, sfuclient.MediaKind_Audio, accessErr.Kind)

	track, err := capture.CaptureVideo(context.Background(), sfuclient.DefaultVideoConstraints())
	require.NoError(t, err)
	assert.Equal(t, sfuclient.MediaKind_Video, track.Kind())
	assert.True(t, track.Enabled())
}

func TestTrackEndsOnce(t *testing.T) {
	track := newTrack("mic-1", sfuclient.MediaKind_Audio)

	ended := 0
	track.OnEnded(func() { ended++ })

	track.EndFromSource()
	track.Stop()

	assert.Equal(t, 1, ended)
	assert.True(t, track.Ended())
	assert.False(t, track.Enabled())
}
