package helpers

import (
	"testing"
	"time"
)

// Probe is a named mailbox standing in for an agent. It satisfies
// actor.Ref[M], so it can be handed to the agent under test as a peer.
type Probe[M any] struct {
	name     string
	messages chan M
}

// NewProbe creates a probe that buffers up to 1024 messages
func NewProbe[M any](name string) *Probe[M] {
	return &Probe[M]{name: name, messages: make(chan M, 1024)}
}

func (p *Probe[M]) Name() string { return p.name }

// Tell records msg. Returns false once the buffer is full.
func (p *Probe[M]) Tell(msg M) bool {
	select {
	case p.messages <- msg:
		return true
	default:
		return false
	}
}

// Next waits up to timeout for the next message
func (p *Probe[M]) Next(timeout time.Duration) (M, bool) {
	select {
	case msg := <-p.messages:
		return msg, true
	case <-time.After(timeout):
		var zero M
		return zero, false
	}
}

// Expect waits for the next message
func (p *Probe[M]) Expect(t *testing.T, timeout time.Duration) M {
	t.Helper()
	msg, ok := p.Next(timeout)
	if !ok {
		t.Fatalf("probe %s: no message within %s", p.name, timeout)
	}
	return msg
}

// ExpectNone fails if a message arrives within d
func (p *Probe[M]) ExpectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-p.messages:
		t.Fatalf("probe %s: unexpected message %#v", p.name, msg)
	case <-time.After(d):
	}
}

// Len returns the number of buffered messages
func (p *Probe[M]) Len() int {
	return len(p.messages)
}
