package order

import "fmt"

// OverflowPolicy decides what a full queue does with a new order
type OverflowPolicy string

const (
	// OverflowDropNewest rejects the incoming order and keeps the backlog intact
	OverflowDropNewest OverflowPolicy = "drop_newest"

	// OverflowDropOldest evicts the head of the queue to admit the incoming order
	OverflowDropOldest OverflowPolicy = "drop_oldest"
)

// ParseOverflowPolicy validates a configured policy name
func ParseOverflowPolicy(raw string) (OverflowPolicy, error) {
	switch OverflowPolicy(raw) {
	case OverflowDropNewest, OverflowDropOldest:
		return OverflowPolicy(raw), nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", raw)
	}
}

// Queue is a bounded FIFO of pending order ids.
//
// Not safe for concurrent use; it belongs to the order book agent. Capacity
// bounds memory under sustained overload: once full, the overflow policy sheds
// one order per enqueue.
type Queue struct {
	items    []ID
	head     int
	capacity int
	policy   OverflowPolicy
}

// NewQueue creates a queue holding at most capacity ids
func NewQueue(capacity int, policy OverflowPolicy) (*Queue, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", capacity)
	}
	if _, err := ParseOverflowPolicy(string(policy)); err != nil {
		return nil, err
	}
	return &Queue{
		items:    make([]ID, 0, min(capacity, 64)),
		capacity: capacity,
		policy:   policy,
	}, nil
}

// Enqueue appends id. When the queue is full the policy picks a victim, which
// is returned with shed=true (the victim may be id itself).
func (q *Queue) Enqueue(id ID) (victim ID, shed bool) {
	if q.Len() < q.capacity {
		q.items = append(q.items, id)
		return 0, false
	}

	switch q.policy {
	case OverflowDropOldest:
		victim, _ = q.Dequeue()
		q.items = append(q.items, id)
		return victim, true
	default:
		return id, true
	}
}

// Dequeue pops the oldest id
func (q *Queue) Dequeue() (ID, bool) {
	if q.Len() == 0 {
		return 0, false
	}
	id := q.items[q.head]
	q.head++

	// Compact once the consumed prefix dominates the backing array
	if q.head > 32 && q.head*2 >= len(q.items) {
		remaining := copy(q.items, q.items[q.head:])
		q.items = q.items[:remaining]
		q.head = 0
	}
	return id, true
}

func (q *Queue) Len() int { return len(q.items) - q.head }

func (q *Queue) Capacity() int { return q.capacity }

func (q *Queue) Policy() OverflowPolicy { return q.policy }

// Items returns a copy of the pending ids, oldest first
func (q *Queue) Items() []ID {
	out := make([]ID, q.Len())
	copy(out, q.items[q.head:])
	return out
}
