package session

import (
	"sync"

	"skirmish/server/internal/action"
	"skirmish/server/internal/telemetry"
)

const (
	// RejectInboxFull indicates the inbox is saturated.
	RejectInboxFull = "inbox_full"
	// RejectPeerLimit indicates the sending peer exceeded its per-tick share.
	RejectPeerLimit = "peer_limit"

	metricInboxOccupancy = "inbox_occupancy"
)

// Entry is one unit of work staged for the tick loop. Exactly one of
// Envelope, Payload or Call is meaningful: Call runs on the tick goroutine,
// a non-nil Payload is dispatched locally and otherwise Envelope is
// received as a remote action from Peer.
type Entry struct {
	Peer     action.PeerID
	Envelope action.Envelope
	Payload  action.Payload
	Call     func()
}

// Kind labels the entry for logs.
func (e Entry) Kind() string {
	switch {
	case e.Call != nil:
		return "call"
	case e.Payload != nil:
		return string(e.Payload.ActionKind())
	default:
		return string(e.Envelope.Kind)
	}
}

// Inbox stores staged entries in a fixed-size ring. It is safe for
// concurrent producers and a single consumer.
type Inbox struct {
	mu        sync.Mutex
	data      []Entry
	head      int
	tail      int
	count     int
	peerLimit int
	perPeer   map[action.PeerID]int
	drops     map[action.PeerID]uint64
	metrics   telemetry.Metrics
}

// NewInbox constructs an inbox with the provided capacity. A positive
// peerLimit caps how many entries one peer may stage between drains.
func NewInbox(capacity, peerLimit int, metrics telemetry.Metrics) *Inbox {
	if capacity < 1 {
		capacity = 1
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Inbox{
		data:      make([]Entry, capacity),
		peerLimit: peerLimit,
		perPeer:   make(map[action.PeerID]int),
		drops:     make(map[action.PeerID]uint64),
		metrics:   metrics,
	}
}

// Capacity reports the maximum number of entries the inbox can hold.
func (b *Inbox) Capacity() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Push stages an entry. On rejection it returns the reason and how many
// entries the peer has had dropped so far.
func (b *Inbox) Push(entry Entry) (string, uint64) {
	if b == nil {
		return RejectInboxFull, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peerLimit > 0 && entry.Peer != "" && b.perPeer[entry.Peer] >= b.peerLimit {
		return RejectPeerLimit, b.dropLocked(entry.Peer)
	}
	if b.count == len(b.data) {
		return RejectInboxFull, b.dropLocked(entry.Peer)
	}
	b.data[b.tail] = entry
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	if entry.Peer != "" {
		b.perPeer[entry.Peer]++
	}
	b.metrics.Store(metricInboxOccupancy, uint64(b.count))
	return "", 0
}

// Drain returns all staged entries in FIFO order and clears the inbox.
func (b *Inbox) Drain() []Entry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	entries := make([]Entry, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		entries[i] = b.data[idx]
		b.data[idx] = Entry{}
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	if len(b.perPeer) > 0 {
		b.perPeer = make(map[action.PeerID]int)
	}
	b.metrics.Store(metricInboxOccupancy, 0)
	return entries
}

// Len reports the number of staged entries.
func (b *Inbox) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Forget clears the drop counter of a disconnected peer.
func (b *Inbox) Forget(peer action.PeerID) {
	b.mu.Lock()
	delete(b.drops, peer)
	b.mu.Unlock()
}

func (b *Inbox) dropLocked(peer action.PeerID) uint64 {
	b.metrics.Add(telemetry.MetricInboxDropped, 1)
	if peer == "" {
		return 0
	}
	count := b.drops[peer] + 1
	b.drops[peer] = count
	return count
}
