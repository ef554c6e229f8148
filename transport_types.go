package sfuclient

// TransportDirection tags a transport as outbound (send) or inbound (recv).
type TransportDirection string

const (
	Direction_Send TransportDirection = "send"
	Direction_Recv TransportDirection = "recv"
)

// TransportState is the lifecycle state of a Transport. Transitions go
// through transition() only; invalid moves are rejected instead of being
// guarded by ad hoc flags.
type TransportState string

const (
	TransportState_Created    TransportState = "created"
	TransportState_Connecting TransportState = "connecting"
	TransportState_Connected  TransportState = "connected"
	TransportState_Failed     TransportState = "failed"
	TransportState_Closed     TransportState = "closed"
)

// validTransportTransitions maps each state to the states reachable from it.
var validTransportTransitions = map[TransportState][]TransportState{
	TransportState_Created:    {TransportState_Connecting, TransportState_Closed},
	TransportState_Connecting: {TransportState_Connected, TransportState_Failed, TransportState_Closed},
	TransportState_Connected:  {TransportState_Connecting, TransportState_Failed, TransportState_Closed},
	TransportState_Failed:     {TransportState_Connecting, TransportState_Closed},
	TransportState_Closed:     {},
}

// ConnectionState is the media engine's view of a transport's ICE/DTLS
// connectivity. Observers of it are diagnostic; protocol-level state lives in
// TransportState.
type ConnectionState string

const (
	ConnectionState_New          ConnectionState = "new"
	ConnectionState_Connecting   ConnectionState = "connecting"
	ConnectionState_Connected    ConnectionState = "connected"
	ConnectionState_Disconnected ConnectionState = "disconnected"
	ConnectionState_Failed       ConnectionState = "failed"
	ConnectionState_Closed       ConnectionState = "closed"
)

// TransportProtocol is the transport layer protocol of an ICE candidate.
type TransportProtocol string

const (
	TransportProtocol_Udp TransportProtocol = "udp"
	TransportProtocol_Tcp TransportProtocol = "tcp"
)

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string            `json:"foundation"`
	Priority   uint32            `json:"priority"`
	Ip         string            `json:"ip"`
	Protocol   TransportProtocol `json:"protocol"`
	Port       uint16            `json:"port"`
	Type       string            `json:"type,omitempty"`
	TcpType    string            `json:"tcpType,omitempty"`
}

// DtlsRole of this endpoint in the DTLS negotiation.
type DtlsRole string

const (
	DtlsRole_Auto   DtlsRole = "auto"
	DtlsRole_Client DtlsRole = "client"
	DtlsRole_Server DtlsRole = "server"
)

type DtlsParameters struct {
	Role         DtlsRole          `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// DtlsFingerprint defines the hash function algorithm and its corresponding
// certificate fingerprint value (in lowercase hex string as expressed in the
// "fingerprint" attribute in RFC 4572).
type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}
