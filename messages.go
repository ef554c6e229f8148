package sfuclient

// Signaling event vocabulary. Requests are answered in a correlated response
// envelope; notifications are pushed without an id.
const (
	// client -> server requests
	EventJoinRoom         = "join-room"
	EventCreateTransport  = "createWebRtcTransport"
	EventConnectTransport = "connectTransport"
	EventProduce          = "produce"
	EventCloseProducer    = "closeProducer"
	EventConsume          = "consume"
	EventResumeConsumer   = "resumeConsumer"
	EventRestartIce       = "restartIce"

	// server -> client notifications
	EventWelcome            = "welcome"
	EventRouterCapabilities = "routerRtpCapabilities"
	EventNewProducer        = "newProducer"
	EventExistingProducers  = "existingProducers"
	EventPeerJoined         = "peerJoined"
	EventPeerLeft           = "peerLeft"
	EventExistingPeers      = "existingPeers"
	EventConsumerClosed     = "consumerClosed"
	EventCannotConsume      = "cannotConsume"
	EventServerError        = "error"
)

// Error codes carried in rejection envelopes.
const (
	ErrorCodeCannotConsume = "cannotConsume"
)

// WelcomeNotification greets a freshly connected client and advertises the
// signaling protocol version, checked against minProtocolVersion before the
// room is joined.
type WelcomeNotification struct {
	PeerId          string `json:"peerId"`
	ProtocolVersion string `json:"protocolVersion"`
}

type JoinRoomRequest struct {
	RoomId      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

// RouterCapabilitiesNotification is pushed right after the room join and is
// the input of capability negotiation.
type RouterCapabilitiesNotification struct {
	RtpCapabilities
}

type CreateTransportRequest struct {
	Direction TransportDirection `json:"direction"`
}

// TransportCreatedResponse carries the server-side transport parameters the
// local media engine needs to construct its end.
type TransportCreatedResponse struct {
	Id             string             `json:"id"`
	Direction      TransportDirection `json:"direction"`
	IceParameters  IceParameters      `json:"iceParameters"`
	IceCandidates  []IceCandidate     `json:"iceCandidates"`
	DtlsParameters DtlsParameters     `json:"dtlsParameters"`
}

type ConnectTransportRequest struct {
	TransportId    string         `json:"transportId"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

// TransportConnectedResponse acks a connectTransport request. The transportId
// is verified against the requesting transport since both directions' connect
// handshakes may be in flight concurrently.
type TransportConnectedResponse struct {
	TransportId string `json:"transportId"`
}

type ProduceRequest struct {
	TransportId   string        `json:"transportId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

type ProducedResponse struct {
	Id string `json:"id"`
}

type CloseProducerNotification struct {
	ProducerId string `json:"producerId"`
}

type ConsumeRequest struct {
	TransportId     string          `json:"transportId"`
	ProducerId      string          `json:"producerId"`
	RtpCapabilities RtpCapabilities `json:"rtpCapabilities"`
}

type ConsumedResponse struct {
	Id            string        `json:"id"`
	ProducerId    string        `json:"producerId"`
	PeerId        string        `json:"peerId"`
	Kind          MediaKind     `json:"kind"`
	RtpParameters RtpParameters `json:"rtpParameters"`
}

type ResumeConsumerRequest struct {
	ConsumerId string `json:"consumerId"`
}

type ConsumerResumedResponse struct {
	ConsumerId string `json:"consumerId"`
}

type RestartIceRequest struct {
	TransportId string `json:"transportId"`
}

type IceRestartedResponse struct {
	TransportId   string        `json:"transportId"`
	IceParameters IceParameters `json:"iceParameters"`
}

// ProducerAnnouncement describes one remote producer, delivered either in the
// existingProducers snapshot or in a live newProducer push.
type ProducerAnnouncement struct {
	PeerId     string    `json:"peerId"`
	ProducerId string    `json:"producerId"`
	Kind       MediaKind `json:"kind"`
}

type ExistingProducersNotification struct {
	Producers []ProducerAnnouncement `json:"producers"`
}

// PeerInfo describes one remote room participant.
type PeerInfo struct {
	PeerId      string `json:"peerId"`
	DisplayName string `json:"displayName"`
}

type ExistingPeersNotification struct {
	Peers []PeerInfo `json:"peers"`
}

type PeerLeftNotification struct {
	PeerId string `json:"peerId"`
}

type ConsumerClosedNotification struct {
	ConsumerId string `json:"consumerId"`
}

type CannotConsumeNotification struct {
	ProducerId string `json:"producerId"`
}

type ServerErrorNotification struct {
	Message string `json:"message"`
}
