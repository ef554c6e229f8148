package sfuclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTrack struct{ kind MediaKind }

func (s *stubTrack) ID() string      { return "stub" }
func (s *stubTrack) Kind() MediaKind { return s.kind }
func (s *stubTrack) Enabled() bool   { return true }
func (s *stubTrack) SetEnabled(bool) {}
func (s *stubTrack) Stop()           {}
func (s *stubTrack) OnEnded(func())  {}

type stubReceiver struct{ kind MediaKind }

func (s *stubReceiver) Track() MediaTrack { return &stubTrack{kind: s.kind} }
func (s *stubReceiver) Close() error      { return nil }

func testConsumer(id, peerId string, kind MediaKind) *Consumer {
	return newConsumer(ConsumedResponse{
		Id:         id,
		ProducerId: "producer-" + id,
		PeerId:     peerId,
		Kind:       kind,
	}, &stubReceiver{kind: kind})
}

func TestRegistrySnapshotAndIncrementalEquivalence(t *testing.T) {
	infos := []PeerInfo{
		{PeerId: "alice", DisplayName: "Alice"},
		{PeerId: "bob", DisplayName: "Bob"},
	}

	bySnapshot := NewPeerRegistry()
	bySnapshot.HandleSnapshot(infos)

	incremental := NewPeerRegistry()
	for _, info := range infos {
		incremental.HandleJoined(info)
	}

	require.Len(t, bySnapshot.Peers(), 2)
	require.Len(t, incremental.Peers(), 2)
	for _, info := range infos {
		a, b := bySnapshot.Peer(info.PeerId), incremental.Peer(info.PeerId)
		require.NotNil(t, a)
		require.NotNil(t, b)
		assert.Equal(t, a.DisplayName(), b.DisplayName())
	}
}

func TestRegistryRepeatedJoinAnnouncedOnce(t *testing.T) {
	registry := NewPeerRegistry()

	joined := 0
	registry.OnPeerJoined(func(*Peer) { joined++ })

	registry.HandleJoined(PeerInfo{PeerId: "alice", DisplayName: "Alice"})
	registry.HandleJoined(PeerInfo{PeerId: "alice", DisplayName: "Alice"})

	assert.Equal(t, 1, joined)
	assert.Len(t, registry.Peers(), 1)
}

func TestRegistryPlaceholderReconciliation(t *testing.T) {
	registry := NewPeerRegistry()

	var joinedPeers []*Peer
	registry.OnPeerJoined(func(p *Peer) { joinedPeers = append(joinedPeers, p) })

	// Consumer attach arrives before the peer's join notification.
	consumer := testConsumer("c1", "alice", MediaKind_Audio)
	replaced := registry.AttachConsumer("alice", consumer)
	assert.Nil(t, replaced)

	placeholder := registry.Peer("alice")
	require.NotNil(t, placeholder)
	assert.True(t, placeholder.Placeholder())
	assert.Empty(t, placeholder.DisplayName())
	assert.Empty(t, joinedPeers, "placeholder creation must not announce a join")

	// The join reconciles the same record in place.
	promoted := registry.HandleJoined(PeerInfo{PeerId: "alice", DisplayName: "Alice"})
	assert.Same(t, placeholder, promoted)
	assert.False(t, promoted.Placeholder())
	assert.Equal(t, "Alice", promoted.DisplayName())
	assert.Same(t, consumer, promoted.Consumer(MediaKind_Audio))

	require.Len(t, joinedPeers, 1)
	assert.Same(t, placeholder, joinedPeers[0])
	assert.Len(t, registry.Peers(), 1)
}

func TestRegistryAttachConsumerReplacesSameKind(t *testing.T) {
	registry := NewPeerRegistry()
	registry.HandleJoined(PeerInfo{PeerId: "alice", DisplayName: "Alice"})

	first := testConsumer("c1", "alice", MediaKind_Video)
	second := testConsumer("c2", "alice", MediaKind_Video)
	audio := testConsumer("c3", "alice", MediaKind_Audio)

	assert.Nil(t, registry.AttachConsumer("alice", first))
	assert.Nil(t, registry.AttachConsumer("alice", audio))

	replaced := registry.AttachConsumer("alice", second)
	assert.Same(t, first, replaced)

	peer := registry.Peer("alice")
	assert.Same(t, second, peer.Consumer(MediaKind_Video))
	assert.Same(t, audio, peer.Consumer(MediaKind_Audio))
	assert.Len(t, peer.Consumers(), 2)
}

func TestRegistryHandleLeftCascades(t *testing.T) {
	registry := NewPeerRegistry()

	var cascaded []string
	registry.SetCascade(func(peerId string) { cascaded = append(cascaded, peerId) })

	var left []*Peer
	registry.OnPeerLeft(func(p *Peer) { left = append(left, p) })

	registry.HandleJoined(PeerInfo{PeerId: "alice", DisplayName: "Alice"})
	registry.HandleLeft("alice")

	assert.Equal(t, []string{"alice"}, cascaded)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", left[0].Id())
	assert.Nil(t, registry.Peer("alice"))

	// Unknown peer is a no-op.
	registry.HandleLeft("ghost")
	assert.Len(t, cascaded, 1)
	assert.Len(t, left, 1)
}

func TestRegistryDetachConsumer(t *testing.T) {
	registry := NewPeerRegistry()
	registry.HandleJoined(PeerInfo{PeerId: "alice", DisplayName: "Alice"})

	consumer := testConsumer("c1", "alice", MediaKind_Audio)
	registry.AttachConsumer("alice", consumer)
	registry.DetachConsumer("alice", consumer)
	assert.Nil(t, registry.Peer("alice").Consumer(MediaKind_Audio))

	// Detaching an already replaced consumer must not remove its successor.
	registry.AttachConsumer("alice", consumer)
	successor := testConsumer("c2", "alice", MediaKind_Audio)
	registry.AttachConsumer("alice", successor)
	registry.DetachConsumer("alice", consumer)
	assert.Same(t, successor, registry.Peer("alice").Consumer(MediaKind_Audio))
}

func TestRegistryClear(t *testing.T) {
	registry := NewPeerRegistry()

	left := 0
	registry.OnPeerLeft(func(*Peer) { left++ })

	registry.HandleSnapshot([]PeerInfo{
		{PeerId: "alice"},
		{PeerId: "bob"},
	})
	registry.Clear()

	assert.Empty(t, registry.Peers())
	assert.Zero(t, left, "clear must not fire left notifications")
}
