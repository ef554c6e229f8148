package sfuclient

import (
	"sync"

	"github.com/go-logr/logr"
)

// Device negotiates capabilities: it loads the server-advertised router RTP
// capabilities against the media engine's native capabilities, once per
// session. Loading is order-dependent: transports, producers and consumers
// all require a loaded device and fail with NotReadyError before Load has
// completed. A load failure is fatal to the session, there is no retry.
type Device struct {
	logger logr.Logger
	engine MediaEngine

	mu         sync.RWMutex
	loaded     bool
	routerCaps RtpCapabilities
	recvCaps   RtpCapabilities
	nativeCaps RtpCapabilities
}

func NewDevice(engine MediaEngine) *Device {
	return &Device{
		logger: NewLogger("Device"),
		engine: engine,
	}
}

// Load validates the router capabilities and computes the receivable subset.
// It may be called once; further calls fail with InvalidStateError.
func (d *Device) Load(routerCaps RtpCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return NewInvalidStateError("device is already loaded")
	}

	d.logger.V(1).Info("Load()", "routerCodecs", len(routerCaps.Codecs))

	if err := validateRtpCapabilities(&routerCaps); err != nil {
		return err
	}

	nativeCaps, err := d.engine.NativeRtpCapabilities()
	if err != nil {
		return NewNegotiationError("native capabilities unavailable: %s", err)
	}
	if err := validateRtpCapabilities(&nativeCaps); err != nil {
		return err
	}

	recvCaps := intersectRtpCapabilities(nativeCaps, routerCaps)
	if len(recvCaps.Codecs) == 0 {
		return NewNegotiationError("no compatible media codecs with the router")
	}

	d.routerCaps = routerCaps
	d.nativeCaps = nativeCaps
	d.recvCaps = recvCaps
	d.loaded = true

	return nil
}

// Loaded reports whether Load has completed.
func (d *Device) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.loaded
}

// RtpCapabilities returns the negotiated receive capabilities, sent along
// with every consume request.
func (d *Device) RtpCapabilities() (RtpCapabilities, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.loaded {
		return RtpCapabilities{}, NewNotReadyError("device is not loaded")
	}
	return d.recvCaps, nil
}

// CanProduce reports whether the negotiated capabilities allow publishing
// the given media kind.
func (d *Device) CanProduce(kind MediaKind) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.loaded {
		return false, NewNotReadyError("device is not loaded")
	}
	return canReceiveKind(d.recvCaps, kind), nil
}

// CanConsume reports whether the negotiated capabilities allow receiving the
// given media kind. Used as a local pre-check before a consume request; the
// server remains the authority and may still answer cannotConsume.
func (d *Device) CanConsume(kind MediaKind) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.loaded {
		return false, NewNotReadyError("device is not loaded")
	}
	return canReceiveKind(d.recvCaps, kind), nil
}
