package action

import "iter"

// Queue is a FIFO of delivered envelopes for a fixed set of kinds. Systems
// drain it once per tick. Queues grow on demand and never drop envelopes.
type Queue struct {
	kinds map[Kind]struct{}
	data  []Envelope
	head  int
	tail  int
	count int
}

func newQueue(kinds []Kind) *Queue {
	set := make(map[Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		set[kind] = struct{}{}
	}
	return &Queue{kinds: set, data: make([]Envelope, 8)}
}

func (q *Queue) accepts(kind Kind) bool {
	_, ok := q.kinds[kind]
	return ok
}

func (q *Queue) push(env Envelope) {
	if q.count == len(q.data) {
		q.grow()
	}
	q.data[q.tail] = env
	q.tail = (q.tail + 1) % len(q.data)
	q.count++
}

func (q *Queue) grow() {
	next := make([]Envelope, len(q.data)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.data[(q.head+i)%len(q.data)]
	}
	q.data = next
	q.head = 0
	q.tail = q.count
}

func (q *Queue) pop() (Envelope, bool) {
	if q.count == 0 {
		return Envelope{}, false
	}
	env := q.data[q.head]
	q.data[q.head] = Envelope{}
	q.head = (q.head + 1) % len(q.data)
	q.count--
	return env, true
}

// Len reports the number of queued envelopes.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return q.count
}

// Drain yields the envelopes queued when iteration begins, oldest first.
// Each is removed before it is yielded, so stopping early leaves the rest
// queued. Envelopes pushed while draining wait for the next drain.
func (q *Queue) Drain() iter.Seq[Envelope] {
	return func(yield func(Envelope) bool) {
		if q == nil {
			return
		}
		remaining := q.count
		for ; remaining > 0; remaining-- {
			env, ok := q.pop()
			if !ok {
				return
			}
			if !yield(env) {
				return
			}
		}
	}
}
