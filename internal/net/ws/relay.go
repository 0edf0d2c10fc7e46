// Package ws relays action envelopes between the host session and its peers
// over websockets.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"skirmish/server/internal/action"
	"skirmish/server/internal/auth"
	"skirmish/server/internal/net/intake"
	"skirmish/server/internal/net/proto"
	"skirmish/server/internal/protocol"
	"skirmish/server/internal/session"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
	"skirmish/server/logging/lifecycle"
)

const (
	defaultSendBuffer = 256
	writeWait         = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// RelayConfig wires a Relay.
type RelayConfig struct {
	Session *session.Session
	// Tokens verifies join tokens. When nil the user is taken from the
	// "user" query parameter.
	Tokens     *auth.Tokens
	SendBuffer int
	Publisher  logging.Publisher
	Metrics    telemetry.Metrics
	Logger     telemetry.Logger
}

// Relay accepts peer connections for one session. Every world envelope the
// session delivers is forwarded to every ready peer except its sender.
type Relay struct {
	session *session.Session
	tokens  *auth.Tokens
	codec   *proto.Codec
	buffer  int
	pub     logging.Publisher
	metrics telemetry.Metrics
	logger  telemetry.Logger

	mu     sync.Mutex
	peers  map[action.PeerID]*peer
	closed bool

	unsubscribe func()
}

type peer struct {
	id       action.PeerID
	user     action.UserID
	name     string
	encoding proto.Encoding
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	ready    bool
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

func (p *peer) messageType() int {
	if p.encoding == proto.MsgPack {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// NewRelay builds a relay and subscribes it to the session's world topic on
// the tick goroutine.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	if cfg.Session == nil {
		return nil, errors.New("ws: relay requires a session")
	}
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	r := &Relay{
		session: cfg.Session,
		tokens:  cfg.Tokens,
		codec:   proto.NewCodec(cfg.Session.Bus().Catalog()),
		buffer:  buffer,
		pub:     pub,
		metrics: metrics,
		logger:  logger,
		peers:   make(map[action.PeerID]*peer),
	}
	if !cfg.Session.Do(func() {
		r.unsubscribe = cfg.Session.Bus().Subscribe("relay", action.TopicFilter(action.TopicWorld), r.broadcast)
	}) {
		return nil, errors.New("ws: session inbox is full")
	}
	return r, nil
}

// Peers returns the number of connected peers.
func (r *Relay) Peers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Close disconnects every peer and unsubscribes from the bus.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	peers := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
	r.session.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
	})
}

// ServeHTTP upgrades the request and serves the peer until it disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	user, name, err := r.authenticate(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	encoding := proto.JSON
	if strings.EqualFold(req.URL.Query().Get("encoding"), proto.MsgPack.String()) {
		encoding = proto.MsgPack
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("upgrade failed: %v", err)
		return
	}

	p := &peer{
		id:       action.PeerID(uuid.NewString()),
		user:     user,
		name:     name,
		encoding: encoding,
		conn:     conn,
		send:     make(chan []byte, r.buffer),
		done:     make(chan struct{}),
	}
	if !r.register(p) {
		conn.Close()
		return
	}

	scope, _ := r.session.Scopes().Resolve(r.session.Scope())
	sim := r.session.Clock()
	welcome, err := r.codec.EncodeWelcome(encoding, proto.Welcome{
		Session: r.session.ID(),
		Scope:   scope.ID,
		Host:    scope.Host,
		Peer:    p.id,
		User:    user,
		Tick:    sim.Tick(),
		Time:    sim.Now(),
	})
	if err == nil {
		err = conn.WriteMessage(p.messageType(), welcome)
	}
	if err != nil {
		r.logger.Printf("welcome to %s failed: %v", p.id, err)
		r.unregister(p)
		return
	}
	go r.writeLoop(p)

	if !r.session.Do(func() { r.join(p) }) {
		r.logger.Printf("session inbox full, refusing peer %s", p.id)
		r.unregister(p)
		return
	}
	r.readLoop(p)
	r.leave(p)
}

func (r *Relay) authenticate(req *http.Request) (action.UserID, string, error) {
	query := req.URL.Query()
	if r.tokens == nil {
		user := query.Get("user")
		if user == "" {
			return "", "", errors.New("user is required")
		}
		return action.UserID(user), query.Get("name"), nil
	}
	token := query.Get("token")
	if token == "" {
		token = strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	}
	claims, err := r.tokens.Verify(token, r.session.Scope())
	if err != nil {
		return "", "", err
	}
	return claims.User, claims.Name, nil
}

func (r *Relay) register(p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.peers[p.id] = p
	r.metrics.Store(telemetry.MetricPeersConnected, uint64(len(r.peers)))
	return true
}

func (r *Relay) unregister(p *peer) bool {
	r.mu.Lock()
	_, ok := r.peers[p.id]
	delete(r.peers, p.id)
	r.metrics.Store(telemetry.MetricPeersConnected, uint64(len(r.peers)))
	r.mu.Unlock()
	p.close()
	return ok
}

func (r *Relay) connected(user action.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.peers {
		if p.user == user {
			return true
		}
	}
	return false
}

// join runs on the tick goroutine: the peer receives the cached envelopes
// before it is marked ready, then the session announces the user.
func (r *Relay) join(p *peer) {
	cached := r.session.Bus().Cached()
	for _, env := range cached {
		if env.Topic == action.TopicWorld {
			r.sendEnvelope(p, env)
		}
	}
	r.mu.Lock()
	p.ready = true
	r.mu.Unlock()
	if _, err := r.session.Bus().Dispatch(protocol.PlayerJoined{UserID: p.user, Name: p.name}); err != nil {
		r.logger.Printf("announce %s failed: %v", p.user, err)
	}
	lifecycle.PeerConnected(context.Background(), r.pub, r.session.Clock().Tick(), logging.PeerRef(string(p.id)),
		lifecycle.PeerPayload{UserID: string(p.user), Cached: len(cached)}, nil)
}

func (r *Relay) leave(p *peer) {
	if !r.unregister(p) {
		return
	}
	r.session.Inbox().Forget(p.id)
	// A user who reconnected before the old socket dropped is still here.
	if !r.connected(p.user) {
		r.session.Post(protocol.PlayerLeft{UserID: p.user})
	}
	lifecycle.PeerDisconnected(context.Background(), r.pub, r.session.Clock().Tick(), logging.PeerRef(string(p.id)),
		lifecycle.PeerPayload{UserID: string(p.user)}, nil)
}

func (r *Relay) broadcast(env action.Envelope) {
	r.mu.Lock()
	targets := make([]*peer, 0, len(r.peers))
	for id, p := range r.peers {
		if p.ready && id != env.Peer {
			targets = append(targets, p)
		}
	}
	r.mu.Unlock()
	for _, p := range targets {
		r.sendEnvelope(p, env)
	}
}

func (r *Relay) sendEnvelope(p *peer, env action.Envelope) {
	data, err := r.codec.EncodeAction(p.encoding, env, r.session.Scope())
	if err != nil {
		r.logger.Printf("encode %s for %s failed: %v", env.Kind, p.id, err)
		return
	}
	r.enqueue(p, data)
}

func (r *Relay) enqueue(p *peer, data []byte) {
	select {
	case p.send <- data:
	case <-p.done:
	default:
		r.logger.Printf("[backpressure] peer %s send buffer full, disconnecting", p.id)
		p.close()
	}
}

func (r *Relay) writeLoop(p *peer) {
	for {
		select {
		case data := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(p.messageType(), data); err != nil {
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

func (r *Relay) readLoop(p *peer) {
	sender := intake.Sender{Peer: p.id, User: p.user, Scope: r.session.Scope()}
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := r.codec.Decode(p.encoding, data)
		if err != nil {
			r.metrics.Add(telemetry.MetricFramesDecodeFailed, 1)
			r.logger.Printf("discarding malformed frame from %s: %v", p.id, err)
			r.reject(p, proto.Reject{Reason: err.Error()})
			continue
		}
		_, span := telemetry.StartFrame(context.Background(), string(p.id), string(msg.Envelope.Kind))
		_, ok, reason := intake.StageRemote(r.session, sender, msg)
		span.End()
		if !ok {
			r.reject(p, proto.Reject{Kind: msg.Envelope.Kind, Seq: msg.Envelope.Seq, Reason: reason})
		}
	}
}

func (r *Relay) reject(p *peer, reject proto.Reject) {
	data, err := r.codec.EncodeReject(p.encoding, reject)
	if err != nil {
		return
	}
	r.enqueue(p, data)
}
