package synthetic

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/workmesh/sfuclient"
)

// Capture is a CaptureDevice yielding synthetic tracks. DenyAudio and
// DenyVideo simulate the user refusing the corresponding permission prompt.
type Capture struct {
	DenyAudio bool
	DenyVideo bool

	seq atomic.Uint64
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) CaptureAudio(ctx context.Context, constraints sfuclient.AudioConstraints) (sfuclient.MediaTrack, error) {
	if c.DenyAudio {
		return nil, sfuclient.NewMediaAccessError(sfuclient.MediaKind_Audio, "microphone permission denied")
	}
	return newTrack(fmt.Sprintf("mic-%d", c.seq.Add(1)), sfuclient.MediaKind_Audio), nil
}

func (c *Capture) CaptureVideo(ctx context.Context, constraints sfuclient.VideoConstraints) (sfuclient.MediaTrack, error) {
	if c.DenyVideo {
		return nil, sfuclient.NewMediaAccessError(sfuclient.MediaKind_Video, "camera permission denied")
	}
	return newTrack(fmt.Sprintf("cam-%d", c.seq.Add(1)), sfuclient.MediaKind_Video), nil
}

// Track is a synthetic MediaTrack. EndFromSource simulates the capture source
// going away (device unplugged), which fires the ended handlers just like
// Stop does.
type Track struct {
	id   string
	kind sfuclient.MediaKind

	mu      sync.Mutex
	enabled bool
	ended   bool
	onEnded []func()
}

func newTrack(id string, kind sfuclient.MediaKind) *Track {
	return &Track{
		id:      id,
		kind:    kind,
		enabled: true,
	}
}

func (t *Track) ID() string {
	return t.id
}

func (t *Track) Kind() sfuclient.MediaKind {
	return t.kind
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
}

func (t *Track) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.ended
}

func (t *Track) Stop() {
	t.end()
}

// EndFromSource ends the track as if its device disappeared.
func (t *Track) EndFromSource() {
	t.end()
}

func (t *Track) end() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.enabled = false
	handlers := make([]func(), len(t.onEnded))
	copy(handlers, t.onEnded)
	t.mu.Unlock()

	for _, handler := range handlers {
		handler()
	}
}

func (t *Track) OnEnded(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onEnded = append(t.onEnded, handler)
}
