package sfuclient

import (
	"sync"

	"github.com/go-logr/logr"
)

// Peer is a remote room participant and the consumers currently attached to
// it, at most one per media kind.
type Peer struct {
	mu          sync.RWMutex
	id          string
	displayName string
	placeholder bool
	consumers   map[MediaKind]*Consumer
}

// Id returns the peer id.
func (p *Peer) Id() string {
	return p.id
}

// DisplayName returns the peer's display name. Empty for a placeholder whose
// join notification has not arrived yet.
func (p *Peer) DisplayName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.displayName
}

// Placeholder reports whether this record was created from a consumer attach
// arriving before the peer's join notification.
func (p *Peer) Placeholder() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.placeholder
}

// Consumer returns the attached consumer of the given kind, or nil.
func (p *Peer) Consumer(kind MediaKind) *Consumer {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.consumers[kind]
}

// Consumers returns a snapshot of the attached consumers.
func (p *Peer) Consumers() []*Consumer {
	p.mu.RLock()
	defer p.mu.RUnlock()

	consumers := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	return consumers
}

// PeerRegistry maintains room membership from the join snapshot and the
// incremental joined/left notifications. It tolerates events arriving out of
// order: a consumer attach for an unannounced peer creates a placeholder
// record which the later join reconciles in place. Removing a peer cascades
// to its consumers through the registered cascade hook, without waiting for
// per-consumer close notifications.
type PeerRegistry struct {
	logger logr.Logger

	mu    sync.RWMutex
	peers map[string]*Peer

	joinedListeners []func(*Peer)
	leftListeners   []func(*Peer)

	// cascade closes all consumers of a removed peer. Installed by the
	// ConsumerManager, which owns the consumer registry.
	cascade func(peerId string)
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		logger: NewLogger("PeerRegistry"),
		peers:  make(map[string]*Peer),
	}
}

// SetCascade installs the hook run before a peer is removed.
func (r *PeerRegistry) SetCascade(cascade func(peerId string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cascade = cascade
}

// OnPeerJoined registers a handler for peers entering the room (including a
// placeholder being promoted by its join notification).
func (r *PeerRegistry) OnPeerJoined(handler func(*Peer)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.joinedListeners = append(r.joinedListeners, handler)
}

// OnPeerLeft registers a handler for peers leaving the room.
func (r *PeerRegistry) OnPeerLeft(handler func(*Peer)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leftListeners = append(r.leftListeners, handler)
}

// HandleSnapshot merges the existingPeers snapshot. Equivalent to receiving
// one joined notification per entry.
func (r *PeerRegistry) HandleSnapshot(peers []PeerInfo) {
	for _, info := range peers {
		r.HandleJoined(info)
	}
}

// HandleJoined merges one peer join. A placeholder created by an earlier
// consumer attach is reconciled in place, never duplicated.
func (r *PeerRegistry) HandleJoined(info PeerInfo) *Peer {
	r.mu.Lock()
	peer, exists := r.peers[info.PeerId]
	if !exists {
		peer = &Peer{
			id:        info.PeerId,
			consumers: make(map[MediaKind]*Consumer),
		}
		r.peers[info.PeerId] = peer
	}
	listeners := make([]func(*Peer), len(r.joinedListeners))
	copy(listeners, r.joinedListeners)
	r.mu.Unlock()

	peer.mu.Lock()
	wasPlaceholder := peer.placeholder
	peer.displayName = info.DisplayName
	peer.placeholder = false
	peer.mu.Unlock()

	if exists && !wasPlaceholder {
		// Repeated join for a known peer, nothing to announce.
		return peer
	}

	r.logger.V(1).Info("peer joined", "peerId", info.PeerId, "displayName", info.DisplayName, "reconciled", wasPlaceholder)

	for _, listener := range listeners {
		listener(peer)
	}
	return peer
}

// EnsurePeer returns the peer record, creating a placeholder when the peer
// has not been announced yet.
func (r *PeerRegistry) EnsurePeer(peerId string) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, exists := r.peers[peerId]
	if !exists {
		r.logger.V(1).Info("placeholder peer", "peerId", peerId)
		peer = &Peer{
			id:          peerId,
			placeholder: true,
			consumers:   make(map[MediaKind]*Consumer),
		}
		r.peers[peerId] = peer
	}
	return peer
}

// HandleLeft removes the peer and cascades to all of its consumers.
func (r *PeerRegistry) HandleLeft(peerId string) {
	r.mu.Lock()
	peer, exists := r.peers[peerId]
	if !exists {
		r.mu.Unlock()
		return
	}
	delete(r.peers, peerId)
	cascade := r.cascade
	listeners := make([]func(*Peer), len(r.leftListeners))
	copy(listeners, r.leftListeners)
	r.mu.Unlock()

	r.logger.V(1).Info("peer left", "peerId", peerId)

	if cascade != nil {
		cascade(peerId)
	}
	for _, listener := range listeners {
		listener(peer)
	}
}

// AttachConsumer binds a consumer to its peer, creating a placeholder record
// when needed. If a consumer of the same kind was already attached it is
// returned so its owner can close it; a peer holds at most one consumer per
// kind.
func (r *PeerRegistry) AttachConsumer(peerId string, consumer *Consumer) (replaced *Consumer) {
	peer := r.EnsurePeer(peerId)

	peer.mu.Lock()
	defer peer.mu.Unlock()

	replaced = peer.consumers[consumer.Kind()]
	peer.consumers[consumer.Kind()] = consumer
	return replaced
}

// DetachConsumer unbinds the consumer from its peer, if still attached.
func (r *PeerRegistry) DetachConsumer(peerId string, consumer *Consumer) {
	r.mu.RLock()
	peer := r.peers[peerId]
	r.mu.RUnlock()
	if peer == nil {
		return
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()

	if peer.consumers[consumer.Kind()] == consumer {
		delete(peer.consumers, consumer.Kind())
	}
}

// Peer returns the record for peerId, or nil.
func (r *PeerRegistry) Peer(peerId string) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.peers[peerId]
}

// Peers returns a snapshot of the membership.
func (r *PeerRegistry) Peers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

// Clear drops every record without firing listeners; used when a reconnect
// rebuilds the whole session state.
func (r *PeerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.peers = make(map[string]*Peer)
}
