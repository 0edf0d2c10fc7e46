package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skirmish/server/internal/action"
	"skirmish/server/internal/net/proto"
	"skirmish/server/internal/session"
	"skirmish/server/internal/telemetry"
)

// LinkConfig describes a connection to a relay.
type LinkConfig struct {
	URL      string
	Token    string
	User     action.UserID
	Name     string
	Encoding proto.Encoding
	Codec    *proto.Codec
	Metrics  telemetry.Metrics
	Logger   telemetry.Logger
}

// Link is a peer's connection to a relay. Remote envelopes are staged into
// an attached session; envelopes the session dispatches locally on the
// world topic are sent upstream.
type Link struct {
	conn     *websocket.Conn
	codec    *proto.Codec
	encoding proto.Encoding
	welcome  proto.Welcome
	metrics  telemetry.Metrics
	logger   telemetry.Logger

	send chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	rejects  []proto.Reject
	attached bool
}

// Dial connects to a relay and waits for its welcome frame.
func Dial(ctx context.Context, cfg LinkConfig) (*Link, error) {
	if cfg.Codec == nil {
		return nil, errors.New("ws: link requires a codec")
	}
	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ws: parse relay url: %w", err)
	}
	query := target.Query()
	if cfg.Token != "" {
		query.Set("token", cfg.Token)
	}
	if cfg.User != "" {
		query.Set("user", string(cfg.User))
	}
	if cfg.Name != "" {
		query.Set("name", cfg.Name)
	}
	query.Set("encoding", cfg.Encoding.String())
	target.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("ws: dial relay: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("ws: dial relay: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ws: read welcome: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	msg, err := cfg.Codec.Decode(cfg.Encoding, data)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ws: decode welcome: %w", err)
	}
	if msg.Type != proto.TypeWelcome {
		conn.Close()
		return nil, fmt.Errorf("ws: expected welcome, got %s", msg.Type)
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	return &Link{
		conn:     conn,
		codec:    cfg.Codec,
		encoding: cfg.Encoding,
		welcome:  msg.Welcome,
		metrics:  metrics,
		logger:   logger,
		send:     make(chan []byte, defaultSendBuffer),
		done:     make(chan struct{}),
	}, nil
}

// Welcome returns the relay's welcome: the assigned peer id, the user, the
// scope and its host.
func (l *Link) Welcome() proto.Welcome { return l.welcome }

// Identity is the bus identity a session behind this link should use.
func (l *Link) Identity() action.Identity {
	return action.Identity{Peer: l.welcome.Peer, User: l.welcome.User, Scope: l.welcome.Scope}
}

// Attach connects the link to s. It may be called once.
func (l *Link) Attach(s *session.Session) error {
	l.mu.Lock()
	if l.attached {
		l.mu.Unlock()
		return errors.New("ws: link already attached")
	}
	l.attached = true
	l.mu.Unlock()

	scope := s.Scope()
	if !s.Do(func() {
		unsubscribe := s.Bus().Subscribe("link", action.TopicFilter(action.TopicWorld), func(env action.Envelope) {
			if !env.IsLocal() {
				return
			}
			data, err := l.codec.EncodeAction(l.encoding, env, scope)
			if err != nil {
				l.logger.Printf("encode %s failed: %v", env.Kind, err)
				return
			}
			select {
			case l.send <- data:
			case <-l.done:
			default:
				l.logger.Printf("[backpressure] relay send buffer full, closing link")
				l.Close()
			}
		})
		go func() {
			<-l.done
			s.Do(unsubscribe)
		}()
	}) {
		return errors.New("ws: session inbox is full")
	}
	go l.writeLoop()
	go l.readLoop(s)
	return nil
}

// Rejects returns the reject frames received so far.
func (l *Link) Rejects() []proto.Reject {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]proto.Reject(nil), l.rejects...)
}

// Done is closed once the link is closed.
func (l *Link) Done() <-chan struct{} { return l.done }

// Close disconnects from the relay. It is idempotent.
func (l *Link) Close() {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

func (l *Link) messageType() int {
	if l.encoding == proto.MsgPack {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (l *Link) writeLoop() {
	for {
		select {
		case data := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(l.messageType(), data); err != nil {
				l.Close()
				return
			}
		case <-l.done:
			return
		}
	}
}

func (l *Link) readLoop(s *session.Session) {
	defer l.Close()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := l.codec.Decode(l.encoding, data)
		if err != nil {
			l.metrics.Add(telemetry.MetricFramesDecodeFailed, 1)
			l.logger.Printf("discarding malformed frame from relay: %v", err)
			continue
		}
		switch msg.Type {
		case proto.TypeAction:
			env := msg.Envelope
			if !s.Enqueue(env.Peer, env) {
				l.logger.Printf("[backpressure] dropped %s from %s", env.Kind, env.Peer)
			}
		case proto.TypeReject:
			l.mu.Lock()
			l.rejects = append(l.rejects, msg.Reject)
			l.mu.Unlock()
		}
	}
}
