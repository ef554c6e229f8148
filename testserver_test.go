package sfuclient_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/workmesh/sfuclient"
)

// wireMessage mirrors the signaling envelope for test purposes.
type wireMessage struct {
	Id     uint32          `json:"id,omitempty"`
	Event  string          `json:"event,omitempty"`
	Ok     bool            `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type receivedMessage struct {
	Event string
	Data  json.RawMessage
}

// testServer is a scriptable in-process signaling server implementing the
// room protocol over a websocket. Tests can pre-seed room state, withhold or
// reject individual request types, push notifications and inspect everything
// the client sent.
type testServer struct {
	t          *testing.T
	httpServer *httptest.Server
	upgrader   websocket.Upgrader

	protocolVersion   string
	existingPeers     []sfuclient.PeerInfo
	existingProducers []sfuclient.ProducerAnnouncement

	mu          sync.Mutex
	conn        *websocket.Conn
	writeMu     sync.Mutex
	seq         int
	connections int
	silent      map[string]bool
	rejectTimes map[string]int
	rejectCode  map[string]string
	received    []receivedMessage
	producers   map[string]sfuclient.ProducerAnnouncement
}

func newTestServer(t *testing.T) *testServer {
	s := &testServer{
		t:               t,
		protocolVersion: "1.0.0",
		silent:          make(map[string]bool),
		rejectTimes:     make(map[string]int),
		rejectCode:      make(map[string]string),
		producers:       make(map[string]sfuclient.ProducerAnnouncement),
	}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.httpServer.Close)
	return s
}

func (s *testServer) URL() string {
	return "ws" + strings.TrimPrefix(s.httpServer.URL, "http")
}

// withholdResponse makes the server never answer the given request type.
func (s *testServer) withholdResponse(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[event] = true
}

// rejectNext rejects the next n requests of the given type with the code.
func (s *testServer) rejectNext(event, code string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectTimes[event] = n
	s.rejectCode[event] = code
}

// registerProducer seeds a remote producer so consume requests for it can be
// answered, without announcing it yet.
func (s *testServer) registerProducer(ann sfuclient.ProducerAnnouncement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.producers[ann.ProducerId] = ann
}

// addExistingProducer seeds a producer delivered in the post-join snapshot.
func (s *testServer) addExistingProducer(ann sfuclient.ProducerAnnouncement) {
	s.registerProducer(ann)
	s.existingProducers = append(s.existingProducers, ann)
}

// announceProducer registers a producer and pushes a live newProducer.
func (s *testServer) announceProducer(ann sfuclient.ProducerAnnouncement) {
	s.registerProducer(ann)
	s.notify(eventNewProducer, ann)
}

func (s *testServer) notifyPeerJoined(info sfuclient.PeerInfo) {
	s.notify(eventPeerJoined, info)
}

func (s *testServer) notifyPeerLeft(peerId string) {
	s.notify(eventPeerLeft, sfuclient.PeerLeftNotification{PeerId: peerId})
}

// dropConnection kills the current websocket without any protocol goodbye.
func (s *testServer) dropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *testServer) connectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

func (s *testServer) countRequests(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, msg := range s.received {
		if msg.Event == event {
			count++
		}
	}
	return count
}

func (s *testServer) requests(event string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []json.RawMessage
	for _, msg := range s.received {
		if msg.Event == event {
			out = append(out, msg.Data)
		}
	}
	return out
}

// requestIndex returns the arrival position of the first request of the given
// type carrying the substring in its payload, or -1.
func (s *testServer) requestIndex(event, contains string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.received {
		if msg.Event == event && strings.Contains(string(msg.Data), contains) {
			return i
		}
	}
	return -1
}

func (s *testServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.connections++
	s.mu.Unlock()

	s.notify(eventWelcome, sfuclient.WelcomeNotification{
		PeerId:          "local-peer",
		ProtocolVersion: s.protocolVersion,
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.dispatch(msg)
	}
}

func (s *testServer) dispatch(msg wireMessage) {
	s.mu.Lock()
	s.received = append(s.received, receivedMessage{Event: msg.Event, Data: msg.Data})
	silent := s.silent[msg.Event]
	reject := ""
	if s.rejectTimes[msg.Event] != 0 {
		if s.rejectTimes[msg.Event] > 0 {
			s.rejectTimes[msg.Event]--
		}
		reject = s.rejectCode[msg.Event]
	}
	s.mu.Unlock()

	if msg.Id == 0 {
		// Fire-and-forget notification from the client, recorded only.
		return
	}
	if silent {
		return
	}
	if len(reject) > 0 {
		s.respondError(msg.Id, reject, "rejected by test script")
		return
	}

	switch msg.Event {
	case eventJoinRoom:
		s.respond(msg.Id, nil)
		s.notify(eventRouterCapabilities, routerCapabilities())
		if len(s.existingPeers) > 0 {
			s.notify(eventExistingPeers, sfuclient.ExistingPeersNotification{Peers: s.existingPeers})
		}
		if len(s.existingProducers) > 0 {
			s.notify(eventExistingProducers, sfuclient.ExistingProducersNotification{Producers: s.existingProducers})
		}

	case eventCreateTransport:
		var req sfuclient.CreateTransportRequest
		json.Unmarshal(msg.Data, &req)
		s.respond(msg.Id, sfuclient.TransportCreatedResponse{
			Id:        fmt.Sprintf("%s-transport", req.Direction),
			Direction: req.Direction,
			IceParameters: sfuclient.IceParameters{
				UsernameFragment: "ufrag",
				Password:         "pwd",
				IceLite:          true,
			},
			IceCandidates: []sfuclient.IceCandidate{
				{
					Foundation: "udpcandidate",
					Priority:   1076302079,
					Ip:         "127.0.0.1",
					Protocol:   sfuclient.TransportProtocol_Udp,
					Port:       44444,
					Type:       "host",
				},
			},
			DtlsParameters: sfuclient.DtlsParameters{
				Role: sfuclient.DtlsRole_Auto,
				Fingerprints: []sfuclient.DtlsFingerprint{
					{Algorithm: "sha-256", Value: strings.Repeat("ab:", 31) + "ab"},
				},
			},
		})

	case eventConnectTransport:
		var req sfuclient.ConnectTransportRequest
		json.Unmarshal(msg.Data, &req)
		s.respond(msg.Id, sfuclient.TransportConnectedResponse{TransportId: req.TransportId})

	case eventProduce:
		s.respond(msg.Id, sfuclient.ProducedResponse{Id: fmt.Sprintf("producer-%d", s.next())})

	case eventConsume:
		var req struct {
			ProducerId string `json:"producerId"`
		}
		json.Unmarshal(msg.Data, &req)
		s.mu.Lock()
		ann, known := s.producers[req.ProducerId]
		s.mu.Unlock()
		if !known {
			s.respondError(msg.Id, "cannotConsume", "unknown producer")
			return
		}
		s.respond(msg.Id, sfuclient.ConsumedResponse{
			Id:            fmt.Sprintf("consumer-%d", s.next()),
			ProducerId:    ann.ProducerId,
			PeerId:        ann.PeerId,
			Kind:          ann.Kind,
			RtpParameters: consumeRtpParameters(ann.Kind),
		})

	case eventResumeConsumer:
		var req sfuclient.ResumeConsumerRequest
		json.Unmarshal(msg.Data, &req)
		s.respond(msg.Id, sfuclient.ConsumerResumedResponse{ConsumerId: req.ConsumerId})

	case eventRestartIce:
		var req sfuclient.RestartIceRequest
		json.Unmarshal(msg.Data, &req)
		s.respond(msg.Id, sfuclient.IceRestartedResponse{
			TransportId: req.TransportId,
			IceParameters: sfuclient.IceParameters{
				UsernameFragment: "ufrag2",
				Password:         "pwd2",
				IceLite:          true,
			},
		})

	default:
		s.respondError(msg.Id, "unknownEvent", msg.Event)
	}
}

func (s *testServer) next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *testServer) respond(id uint32, data interface{}) {
	payload, _ := json.Marshal(data)
	s.send(wireMessage{Id: id, Ok: true, Data: payload})
}

func (s *testServer) respondError(id uint32, code, reason string) {
	s.send(wireMessage{Id: id, Error: code, Reason: reason})
}

func (s *testServer) notify(event string, data interface{}) {
	payload, _ := json.Marshal(data)
	s.send(wireMessage{Event: event, Data: payload})
}

func (s *testServer) send(msg wireMessage) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.t.Errorf("marshal server message: %v", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.WriteMessage(websocket.TextMessage, data)
}

// Event names, spelled out so a drift in the client vocabulary fails loudly.
const (
	eventJoinRoom           = "join-room"
	eventCreateTransport    = "createWebRtcTransport"
	eventConnectTransport   = "connectTransport"
	eventProduce            = "produce"
	eventCloseProducer      = "closeProducer"
	eventConsume            = "consume"
	eventResumeConsumer     = "resumeConsumer"
	eventRestartIce         = "restartIce"
	eventWelcome            = "welcome"
	eventRouterCapabilities = "routerRtpCapabilities"
	eventNewProducer        = "newProducer"
	eventExistingPeers      = "existingPeers"
	eventExistingProducers  = "existingProducers"
	eventPeerJoined         = "peerJoined"
	eventPeerLeft           = "peerLeft"
	eventConsumerClosed     = "consumerClosed"
)

func routerCapabilities() sfuclient.RtpCapabilities {
	return sfuclient.RtpCapabilities{
		Codecs: []*sfuclient.RtpCodecCapability{
			{
				Kind:                 sfuclient.MediaKind_Audio,
				MimeType:             "audio/opus",
				PreferredPayloadType: 100,
				ClockRate:            48000,
				Channels:             2,
			},
			{
				Kind:                 sfuclient.MediaKind_Video,
				MimeType:             "video/VP8",
				PreferredPayloadType: 101,
				ClockRate:            90000,
				RtcpFeedback: []sfuclient.RtcpFeedback{
					{Type: "nack"},
					{Type: "nack", Parameter: "pli"},
				},
			},
			{
				Kind:                 sfuclient.MediaKind_Video,
				MimeType:             "video/rtx",
				PreferredPayloadType: 102,
				ClockRate:            90000,
				Parameters: sfuclient.RtpCodecSpecificParameters{
					Apt: 101,
				},
			},
		},
		HeaderExtensions: []*sfuclient.RtpHeaderExtension{
			{
				Kind:        sfuclient.MediaKind_Audio,
				Uri:         "urn:ietf:params:rtp-hdrext:sdes:mid",
				PreferredId: 1,
			},
			{
				Kind:        sfuclient.MediaKind_Video,
				Uri:         "urn:ietf:params:rtp-hdrext:sdes:mid",
				PreferredId: 1,
			},
			{
				Kind:        sfuclient.MediaKind_Audio,
				Uri:         "urn:ietf:params:rtp-hdrext:ssrc-audio-level",
				PreferredId: 10,
			},
		},
	}
}

func consumeRtpParameters(kind sfuclient.MediaKind) sfuclient.RtpParameters {
	if kind == sfuclient.MediaKind_Audio {
		return sfuclient.RtpParameters{
			Codecs: []*sfuclient.RtpCodecParameters{
				{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2},
			},
			Encodings: []sfuclient.RtpEncodingParameters{{Ssrc: 555001}},
		}
	}
	return sfuclient.RtpParameters{
		Codecs: []*sfuclient.RtpCodecParameters{
			{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000},
		},
		Encodings: []sfuclient.RtpEncodingParameters{{Ssrc: 555002}},
	}
}
