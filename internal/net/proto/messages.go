// Package proto is the relay wire format. Every frame is one message,
// encoded as JSON in text frames or as msgpack in binary frames; both use
// the JSON field names.
package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"skirmish/server/internal/action"
	"skirmish/server/internal/clock"
)

// Version tracks the wire-protocol revision.
const Version = 1

// Message type identifiers.
const (
	TypeAction  = "action"
	TypeWelcome = "welcome"
	TypeReject  = "reject"
)

// Encoding selects the frame representation.
type Encoding int

const (
	JSON Encoding = iota
	MsgPack
)

func (e Encoding) String() string {
	if e == MsgPack {
		return "msgpack"
	}
	return "json"
}

// ErrUnsupportedVersion is returned for frames from a newer or older
// protocol revision.
var ErrUnsupportedVersion = errors.New("proto: unsupported protocol version")

// Welcome is the first frame a peer receives after connecting.
type Welcome struct {
	Session string         `json:"session"`
	Scope   action.ScopeID `json:"scope"`
	Host    action.PeerID  `json:"host"`
	Peer    action.PeerID  `json:"peer"`
	User    action.UserID  `json:"user"`
	Tick    uint64         `json:"tick"`
	Time    clock.Millis   `json:"time"`
}

// Reject tells a peer one of its actions was refused at the relay.
type Reject struct {
	Kind   action.Kind `json:"kind,omitempty"`
	Seq    uint64      `json:"seq,omitempty"`
	Reason string      `json:"reason"`
}

// Message is a decoded frame. Only the field matching Type is set.
type Message struct {
	Type     string
	Envelope action.Envelope
	Welcome  Welcome
	Reject   Reject
}

// frame is the flat wire shape. R is the raw payload type of the encoding.
type frame[R any] struct {
	Ver     int            `json:"ver"`
	Type    string         `json:"type"`
	Seq     uint64         `json:"seq,omitempty"`
	Kind    action.Kind    `json:"kind,omitempty"`
	Version int            `json:"version,omitempty"`
	Scope   action.ScopeID `json:"scope,omitempty"`
	Peer    action.PeerID  `json:"peer,omitempty"`
	User    action.UserID  `json:"user,omitempty"`
	Time    clock.Millis   `json:"time,omitempty"`
	Tick    uint64         `json:"tick,omitempty"`
	Cached  bool           `json:"cached,omitempty"`
	Payload R              `json:"payload,omitempty"`
	Session string         `json:"session,omitempty"`
	Host    action.PeerID  `json:"host,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Codec encodes and decodes frames against an action catalog.
type Codec struct {
	catalog *action.Catalog
}

// NewCodec constructs a codec for catalog.
func NewCodec(catalog *action.Catalog) *Codec {
	return &Codec{catalog: catalog}
}

// EncodeAction renders an envelope. The scope is taken from a Remote
// origin; locally originated envelopes carry scope.
func (c *Codec) EncodeAction(enc Encoding, env action.Envelope, scope action.ScopeID) ([]byte, error) {
	if remote, ok := env.Origin.(action.Remote); ok && remote.Scope != "" {
		scope = remote.Scope
	}
	if env.Payload == nil {
		return nil, fmt.Errorf("proto: encode %s: nil payload", env.Kind)
	}
	h := frameHeader{
		Ver:     Version,
		Type:    TypeAction,
		Seq:     env.Seq,
		Kind:    env.Kind,
		Version: env.Version,
		Scope:   scope,
		Peer:    env.Peer,
		User:    env.User,
		Time:    env.Time,
		Tick:    env.Tick,
		Cached:  env.Cached,
	}
	switch enc {
	case MsgPack:
		raw, err := marshalMsgpack(env.Payload)
		if err != nil {
			return nil, fmt.Errorf("proto: encode %s payload: %w", env.Kind, err)
		}
		return marshalMsgpack(withPayload(h, msgpack.RawMessage(raw)))
	default:
		raw, err := json.Marshal(env.Payload)
		if err != nil {
			return nil, fmt.Errorf("proto: encode %s payload: %w", env.Kind, err)
		}
		return json.Marshal(withPayload(h, json.RawMessage(raw)))
	}
}

// EncodeWelcome renders a welcome frame.
func (c *Codec) EncodeWelcome(enc Encoding, w Welcome) ([]byte, error) {
	return encodeHeader(enc, frameHeader{
		Ver:     Version,
		Type:    TypeWelcome,
		Scope:   w.Scope,
		Peer:    w.Peer,
		User:    w.User,
		Time:    w.Time,
		Tick:    w.Tick,
		Session: w.Session,
		Host:    w.Host,
	})
}

// EncodeReject renders a reject frame.
func (c *Codec) EncodeReject(enc Encoding, r Reject) ([]byte, error) {
	return encodeHeader(enc, frameHeader{
		Ver:    Version,
		Type:   TypeReject,
		Seq:    r.Seq,
		Kind:   r.Kind,
		Reason: r.Reason,
	})
}

// Decode parses a frame. Action envelopes come back with a Remote origin
// naming the sender recorded in the frame; relays overwrite it with the
// authenticated connection identity.
func (c *Codec) Decode(enc Encoding, data []byte) (Message, error) {
	switch enc {
	case MsgPack:
		var f frame[msgpack.RawMessage]
		if err := unmarshalMsgpack(data, &f); err != nil {
			return Message{}, fmt.Errorf("proto: decode msgpack frame: %w", err)
		}
		return c.message(f.header(), func(v any) error {
			if len(f.Payload) == 0 {
				return errors.New("missing payload")
			}
			return unmarshalMsgpack(f.Payload, v)
		})
	default:
		var f frame[json.RawMessage]
		if err := json.Unmarshal(data, &f); err != nil {
			return Message{}, fmt.Errorf("proto: decode json frame: %w", err)
		}
		return c.message(f.header(), func(v any) error {
			if len(f.Payload) == 0 {
				return errors.New("missing payload")
			}
			return json.Unmarshal(f.Payload, v)
		})
	}
}

func (c *Codec) message(h frameHeader, payload func(any) error) (Message, error) {
	if h.Ver != Version {
		return Message{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Ver)
	}
	switch h.Type {
	case TypeWelcome:
		return Message{Type: TypeWelcome, Welcome: Welcome{
			Session: h.Session,
			Scope:   h.Scope,
			Host:    h.Host,
			Peer:    h.Peer,
			User:    h.User,
			Tick:    h.Tick,
			Time:    h.Time,
		}}, nil
	case TypeReject:
		return Message{Type: TypeReject, Reject: Reject{Kind: h.Kind, Seq: h.Seq, Reason: h.Reason}}, nil
	case TypeAction:
		def, ok := c.catalog.Lookup(h.Kind)
		if !ok {
			return Message{}, &action.SchemaError{Kind: h.Kind, Reason: "unknown kind"}
		}
		decoded, err := def.Decode(payload)
		if err != nil {
			return Message{}, err
		}
		return Message{Type: TypeAction, Envelope: action.Envelope{
			Seq:     h.Seq,
			Kind:    h.Kind,
			Version: h.Version,
			Payload: decoded,
			Origin:  action.Remote{Peer: h.Peer, Scope: h.Scope},
			Peer:    h.Peer,
			User:    h.User,
			Time:    h.Time,
			Tick:    h.Tick,
			Cached:  h.Cached,
		}}, nil
	default:
		return Message{}, fmt.Errorf("proto: unknown message type %q", h.Type)
	}
}

// frameHeader is a frame without a payload.
type frameHeader = frame[struct{}]

func (f frame[R]) header() frameHeader {
	return frameHeader{
		Ver:     f.Ver,
		Type:    f.Type,
		Seq:     f.Seq,
		Kind:    f.Kind,
		Version: f.Version,
		Scope:   f.Scope,
		Peer:    f.Peer,
		User:    f.User,
		Time:    f.Time,
		Tick:    f.Tick,
		Cached:  f.Cached,
		Session: f.Session,
		Host:    f.Host,
		Reason:  f.Reason,
	}
}

func withPayload[R any](f frameHeader, raw R) frame[R] {
	return frame[R]{
		Ver:     f.Ver,
		Type:    f.Type,
		Seq:     f.Seq,
		Kind:    f.Kind,
		Version: f.Version,
		Scope:   f.Scope,
		Peer:    f.Peer,
		User:    f.User,
		Time:    f.Time,
		Tick:    f.Tick,
		Cached:  f.Cached,
		Payload: raw,
		Session: f.Session,
		Host:    f.Host,
		Reason:  f.Reason,
	}
}

func encodeHeader(enc Encoding, h frameHeader) ([]byte, error) {
	if enc == MsgPack {
		return marshalMsgpack(withPayload[msgpack.RawMessage](h, nil))
	}
	return json.Marshal(withPayload[json.RawMessage](h, nil))
}

func marshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshalMsgpack(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
