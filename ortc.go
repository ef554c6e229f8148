package sfuclient

import "strings"

type matchOptions struct {
	strict bool
}

// validateRtpCapabilities validates RtpCapabilities. It may modify given data
// by adding missing fields with default values.
func validateRtpCapabilities(params *RtpCapabilities) (err error) {
	for _, codec := range params.Codecs {
		if err = validateRtpCodecCapability(codec); err != nil {
			return
		}
	}

	for _, ext := range params.HeaderExtensions {
		if err = validateRtpHeaderExtension(ext); err != nil {
			return
		}
	}

	return
}

// validateRtpCodecCapability validates RtpCodecCapability. It may modify given
// data by adding missing fields with default values.
func validateRtpCodecCapability(codec *RtpCodecCapability) (err error) {
	mimeType := strings.ToLower(codec.MimeType)

	// mimeType is mandatory.
	if !strings.HasPrefix(mimeType, "audio/") && !strings.HasPrefix(mimeType, "video/") {
		return NewNegotiationError("invalid codec.mimeType %q", codec.MimeType)
	}

	codec.Kind = MediaKind(strings.Split(mimeType, "/")[0])

	// clockRate is mandatory.
	if codec.ClockRate == 0 {
		return NewNegotiationError("missing codec.clockRate in %q", codec.MimeType)
	}

	// channels is optional. If unset, set it to 1 for audio.
	if codec.Kind == MediaKind_Audio && codec.Channels == 0 {
		codec.Channels = 1
	}

	for _, fb := range codec.RtcpFeedback {
		if len(fb.Type) == 0 {
			return NewNegotiationError("missing rtcpFeedback.type in %q", codec.MimeType)
		}
	}

	return
}

// validateRtpHeaderExtension validates RtpHeaderExtension. It may modify given
// data by adding missing fields with default values.
func validateRtpHeaderExtension(ext *RtpHeaderExtension) (err error) {
	if len(ext.Kind) > 0 && ext.Kind != MediaKind_Audio && ext.Kind != MediaKind_Video {
		return NewNegotiationError("invalid ext.kind %q", ext.Kind)
	}

	// uri is mandatory.
	if len(ext.Uri) == 0 {
		return NewNegotiationError("missing ext.uri")
	}

	// preferredId is mandatory.
	if ext.PreferredId == 0 {
		return NewNegotiationError("missing ext.preferredId for %q", ext.Uri)
	}

	if len(ext.Direction) == 0 {
		ext.Direction = Direction_Sendrecv
	}

	return
}

// intersectRtpCapabilities computes the capabilities usable by this client:
// the codecs and header extensions present in both the native engine
// capabilities and the router capabilities. RTX codecs are kept only when
// their associated media codec survived the intersection.
func intersectRtpCapabilities(native, router RtpCapabilities) RtpCapabilities {
	caps := RtpCapabilities{}
	keptPayloadTypes := map[byte]bool{}

	for _, nativeCodec := range native.Codecs {
		if nativeCodec.isRtxCodec() {
			continue
		}
		matched := findMatchedCodec(nativeCodec, router.Codecs, matchOptions{strict: true})
		if matched == nil {
			continue
		}
		caps.Codecs = append(caps.Codecs, nativeCodec)
		keptPayloadTypes[nativeCodec.PreferredPayloadType] = true
	}

	for _, nativeCodec := range native.Codecs {
		if !nativeCodec.isRtxCodec() {
			continue
		}
		if keptPayloadTypes[nativeCodec.Parameters.Apt] {
			caps.Codecs = append(caps.Codecs, nativeCodec)
		}
	}

	for _, nativeExt := range native.HeaderExtensions {
		for _, routerExt := range router.HeaderExtensions {
			if nativeExt.Uri == routerExt.Uri && nativeExt.Kind == routerExt.Kind {
				caps.HeaderExtensions = append(caps.HeaderExtensions, nativeExt)
				break
			}
		}
	}

	return caps
}

// canReceiveKind reports whether the given capabilities carry at least one
// media codec of kind.
func canReceiveKind(caps RtpCapabilities, kind MediaKind) bool {
	for _, codec := range caps.Codecs {
		if codec.Kind == kind && !codec.isRtxCodec() {
			return true
		}
	}
	return false
}

func findMatchedCodec(aCodec *RtpCodecCapability, bCodecs []*RtpCodecCapability, options matchOptions) *RtpCodecCapability {
	for _, bCodec := range bCodecs {
		if matchedCodecs(aCodec, bCodec, options) {
			return bCodec
		}
	}
	return nil
}

func matchedCodecs(aCodec, bCodec *RtpCodecCapability, options matchOptions) bool {
	aMimeType := strings.ToLower(aCodec.MimeType)
	bMimeType := strings.ToLower(bCodec.MimeType)

	if aMimeType != bMimeType {
		return false
	}
	if aCodec.ClockRate != bCodec.ClockRate {
		return false
	}
	if strings.HasPrefix(aMimeType, "audio/") &&
		aCodec.Channels > 0 && bCodec.Channels > 0 &&
		aCodec.Channels != bCodec.Channels {
		return false
	}

	if !options.strict {
		return true
	}

	// Per codec special cases.
	switch aMimeType {
	case "video/h264":
		aParams, bParams := aCodec.Parameters, bCodec.Parameters
		if aParams.PacketizationMode != bParams.PacketizationMode {
			return false
		}
		if len(aParams.ProfileLevelId) > 0 && len(bParams.ProfileLevelId) > 0 &&
			aParams.ProfileLevelId != bParams.ProfileLevelId {
			return false
		}
	case "video/vp9":
		if aCodec.Parameters.ProfileId != bCodec.Parameters.ProfileId {
			return false
		}
	}

	return true
}
