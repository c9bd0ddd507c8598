package actor

import "sync"

// mailbox is an unbounded FIFO with a wake-up signal.
//
// push never blocks, which is what lets any agent (or timer callback) send to
// any other agent without stalling its own loop. Per-sender ordering follows
// from the single mutex-protected queue.
type mailbox[M any] struct {
	mu     sync.Mutex
	queue  []M
	head   int
	closed bool
	signal chan struct{}
}

func newMailbox[M any]() *mailbox[M] {
	return &mailbox[M]{signal: make(chan struct{}, 1)}
}

// push enqueues msg. Returns false once the mailbox is closed.
func (mb *mailbox[M]) push(msg M) bool {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return false
	}
	mb.queue = append(mb.queue, msg)
	mb.mu.Unlock()

	// Non-blocking send - a pending signal already covers this message
	select {
	case mb.signal <- struct{}{}:
	default:
	}
	return true
}

// pop dequeues the oldest message
func (mb *mailbox[M]) pop() (M, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	var zero M
	if mb.head == len(mb.queue) {
		return zero, false
	}
	msg := mb.queue[mb.head]
	mb.queue[mb.head] = zero
	mb.head++
	if mb.head == len(mb.queue) {
		mb.queue = mb.queue[:0]
		mb.head = 0
	}
	return msg, true
}

func (mb *mailbox[M]) len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue) - mb.head
}

// close rejects further pushes and discards queued messages
func (mb *mailbox[M]) close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.closed = true
	mb.queue = nil
	mb.head = 0
}
