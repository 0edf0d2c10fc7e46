package action

import (
	"context"
	"errors"
	"sort"

	"skirmish/server/internal/clock"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
	loggingactions "skirmish/server/logging/actions"
)

// Handler receives delivered envelopes.
type Handler func(Envelope)

// Filter selects the envelopes a subscriber receives.
type Filter func(Envelope) bool

// All matches every envelope.
func All() Filter {
	return func(Envelope) bool { return true }
}

// Kinds matches envelopes of the listed kinds.
func Kinds(kinds ...Kind) Filter {
	set := make(map[Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		set[kind] = struct{}{}
	}
	return func(env Envelope) bool {
		_, ok := set[env.Kind]
		return ok
	}
}

// TopicFilter matches envelopes on topic.
func TopicFilter(topic Topic) Filter {
	return func(env Envelope) bool { return env.Topic == topic }
}

// SubscribeOption customises Subscribe.
type SubscribeOption func(*subscriber)

// WithReplay delivers the retained cached envelopes that match the filter
// immediately on subscription.
func WithReplay() SubscribeOption {
	return func(s *subscriber) { s.replay = true }
}

type subscriber struct {
	id      uint64
	name    string
	filter  Filter
	handler Handler
	replay  bool
}

type cacheSlot struct {
	kind Kind
	key  string
}

// Config wires a Bus.
type Config struct {
	Catalog   *Catalog
	Identity  Identity
	Clock     clock.Source
	Ticks     func() uint64
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// Bus validates, stamps and delivers envelopes. It is single-threaded:
// every method must be called from the session's tick goroutine.
type Bus struct {
	catalog  *Catalog
	identity Identity
	clock    clock.Source
	ticks    func() uint64
	pub      logging.Publisher
	metrics  telemetry.Metrics

	seq         uint64
	nextSubID   uint64
	subscribers []*subscriber
	queues      []*Queue
	cache       map[cacheSlot]Envelope
	pending     []Envelope
	delivering  bool
}

// NewBus constructs a bus over cfg.Catalog.
func NewBus(cfg Config) (*Bus, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("action: bus requires a catalog")
	}
	if cfg.Clock == nil {
		return nil, errors.New("action: bus requires a clock")
	}
	ticks := cfg.Ticks
	if ticks == nil {
		ticks = func() uint64 { return 0 }
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Bus{
		catalog:  cfg.Catalog,
		identity: cfg.Identity,
		clock:    cfg.Clock,
		ticks:    ticks,
		pub:      pub,
		metrics:  metrics,
		cache:    make(map[cacheSlot]Envelope),
	}, nil
}

func (b *Bus) Catalog() *Catalog { return b.catalog }

func (b *Bus) Identity() Identity { return b.identity }

// Now reads the simulation clock used to stamp envelopes.
func (b *Bus) Now() clock.Millis { return b.clock.Now() }

func (b *Bus) Tick() uint64 { return b.ticks() }

// Dispatch validates a locally constructed payload, stamps it and delivers
// it. When called from inside a handler the envelope is delivered after the
// current delivery finishes, before the outermost Dispatch returns.
func (b *Bus) Dispatch(payload Payload) (Envelope, error) {
	if payload == nil {
		return Envelope{}, &SchemaError{Reason: "nil payload"}
	}
	def, ok := b.catalog.Lookup(payload.ActionKind())
	if !ok {
		err := &SchemaError{Kind: payload.ActionKind(), Reason: "unknown kind"}
		b.reportViolation(err, "")
		return Envelope{}, err
	}
	if err := def.Validate(payload); err != nil {
		b.reportViolation(err, "")
		return Envelope{}, err
	}
	env := Envelope{
		Kind:    def.Kind(),
		Version: def.Version(),
		Payload: payload,
		Origin:  Local{},
		Peer:    b.identity.Peer,
		User:    b.identity.User,
		Topic:   def.Topic(),
		Time:    b.clock.Now(),
		Tick:    b.ticks(),
		Cached:  def.Cached(),
	}
	b.metrics.Add(telemetry.MetricActionsDispatched, 1)
	return b.enqueue(env, def), nil
}

// Receive ingests an envelope that arrived from a peer. The origin must be
// Remote; the envelope is validated against the local catalog, assigned a
// local sequence number and tick, and delivered like a dispatch. The
// sender's timestamp is kept.
func (b *Bus) Receive(env Envelope) (Envelope, error) {
	if _, ok := env.Origin.(Remote); !ok {
		err := &SchemaError{Kind: env.Kind, Field: "origin", Reason: "received envelopes must be remote"}
		b.reportViolation(err, remotePeer(env))
		return Envelope{}, err
	}
	def, ok := b.catalog.Lookup(env.Kind)
	if !ok {
		err := &SchemaError{Kind: env.Kind, Reason: "unknown kind"}
		b.reportViolation(err, remotePeer(env))
		return Envelope{}, err
	}
	if env.Version != def.Version() {
		err := &SchemaError{Kind: env.Kind, Field: "version", Reason: "unsupported version"}
		b.reportViolation(err, remotePeer(env))
		return Envelope{}, err
	}
	if def.Topic() == TopicLocal {
		err := &SchemaError{Kind: env.Kind, Field: "topic", Reason: "local kinds are not accepted from peers"}
		b.reportViolation(err, remotePeer(env))
		return Envelope{}, err
	}
	if env.Payload == nil {
		err := &SchemaError{Kind: env.Kind, Field: "payload", Reason: "required"}
		b.reportViolation(err, remotePeer(env))
		return Envelope{}, err
	}
	if env.Payload.ActionKind() != env.Kind {
		err := &SchemaError{Kind: env.Kind, Field: "payload", Reason: "kind mismatch"}
		b.reportViolation(err, remotePeer(env))
		return Envelope{}, err
	}
	if err := def.Validate(env.Payload); err != nil {
		b.reportViolation(err, remotePeer(env))
		return Envelope{}, err
	}
	env.Topic = def.Topic()
	env.Cached = def.Cached()
	env.Tick = b.ticks()
	b.metrics.Add(telemetry.MetricActionsReceived, 1)
	return b.enqueue(env, def), nil
}

func (b *Bus) enqueue(env Envelope, def *Definition) Envelope {
	b.seq++
	env.Seq = b.seq
	if def.Cached() {
		b.cache[cacheSlot{kind: env.Kind, key: def.CacheKey(env.Payload)}] = env
	}
	b.pending = append(b.pending, env)
	if b.delivering {
		return env
	}
	b.delivering = true
	defer func() { b.delivering = false }()
	for len(b.pending) > 0 {
		next := b.pending[0]
		b.pending[0] = Envelope{}
		b.pending = b.pending[1:]
		b.deliver(next)
	}
	b.pending = b.pending[:0]
	return env
}

func (b *Bus) deliver(env Envelope) {
	for _, q := range b.queues {
		if q.accepts(env.Kind) {
			q.push(env)
		}
	}
	// Handlers may subscribe or unsubscribe; iterate over a stable copy.
	subs := append([]*subscriber(nil), b.subscribers...)
	for _, sub := range subs {
		if sub.filter(env) {
			sub.handler(env)
		}
	}
	b.metrics.Add(telemetry.MetricActionsDelivered, 1)
}

// Subscribe registers a handler. The returned function removes it.
func (b *Bus) Subscribe(name string, filter Filter, handler Handler, opts ...SubscribeOption) func() {
	if filter == nil {
		filter = All()
	}
	b.nextSubID++
	sub := &subscriber{id: b.nextSubID, name: name, filter: filter, handler: handler}
	for _, opt := range opts {
		opt(sub)
	}
	b.subscribers = append(b.subscribers, sub)
	if sub.replay {
		for _, env := range b.Cached() {
			if filter(env) {
				handler(env)
			}
		}
	}
	return func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id uint64) {
	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// DefineQueue creates a queue fed with every delivered envelope of kinds.
func (b *Bus) DefineQueue(kinds ...Kind) *Queue {
	q := newQueue(kinds)
	b.queues = append(b.queues, q)
	return q
}

// Cached returns the retained envelopes, the latest per kind and cache key,
// in sequence order.
func (b *Bus) Cached() []Envelope {
	out := make([]Envelope, 0, len(b.cache))
	for _, env := range b.cache {
		out = append(out, env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Reject reports an envelope that a receptor or system discarded without
// mutating state. reason should wrap one of the package sentinels.
func (b *Bus) Reject(env Envelope, reason error, receptor string) {
	if errors.Is(reason, ErrSchemaViolation) {
		b.metrics.Add(telemetry.MetricSchemaViolations, 1)
		loggingactions.SchemaViolation(context.Background(), b.pub, b.ticks(), actorRef(env), string(env.Kind), loggingactions.SchemaViolationPayload{
			Reason: reason.Error(),
			Remote: !env.IsLocal(),
		}, map[string]any{"receptor": receptor})
		return
	}
	label, metric := rejectionLabel(reason)
	b.metrics.Add(metric, 1)
	loggingactions.Rejected(context.Background(), b.pub, b.ticks(), actorRef(env), string(env.Kind), env.Seq, loggingactions.RejectedPayload{
		Reason:   label,
		Receptor: receptor,
	}, map[string]any{"peer": string(env.Peer)})
}

// Publisher exposes the bus event publisher to systems built on the bus.
func (b *Bus) Publisher() logging.Publisher {
	return b.pub
}

func rejectionLabel(reason error) (string, string) {
	switch {
	case errors.Is(reason, ErrUnauthorized):
		return loggingactions.ReasonUnauthorized, telemetry.MetricUnauthorized
	case errors.Is(reason, ErrMissingRecord):
		return loggingactions.ReasonMissingRecord, telemetry.MetricMissingRecord
	case errors.Is(reason, ErrStaleReference):
		return loggingactions.ReasonStaleReference, telemetry.MetricStaleReference
	default:
		return loggingactions.ReasonInactive, telemetry.MetricInactive
	}
}

func remotePeer(env Envelope) PeerID {
	if remote, ok := env.Origin.(Remote); ok && remote.Peer != "" {
		return remote.Peer
	}
	if env.Peer != "" {
		return env.Peer
	}
	return "unknown"
}

// reportViolation logs a refused payload. peer is empty for local dispatches.
func (b *Bus) reportViolation(err error, peer PeerID) {
	b.metrics.Add(telemetry.MetricSchemaViolations, 1)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		return
	}
	remote := peer != ""
	actor := logging.PlayerRef(string(b.identity.User))
	if remote {
		actor = logging.PeerRef(string(peer))
	}
	loggingactions.SchemaViolation(context.Background(), b.pub, b.ticks(), actor, string(schemaErr.Kind), loggingactions.SchemaViolationPayload{
		Field:  schemaErr.Field,
		Reason: schemaErr.Reason,
		Remote: remote,
	}, nil)
}

func actorRef(env Envelope) logging.EntityRef {
	if env.User != "" {
		return logging.PlayerRef(string(env.User))
	}
	return logging.PeerRef(string(env.Peer))
}
