package order

import (
	"fmt"
	"strconv"
)

// ID identifies an order. IDs are assigned by the order book, start at 1 and
// increase by one per generated order.
type ID int

func (id ID) String() string { return "#" + strconv.Itoa(int(id)) }

// Sequence hands out monotonically increasing order ids.
// Not safe for concurrent use; it belongs to the order book agent.
type Sequence struct {
	next ID
}

// NewSequence creates a sequence whose first id is 1
func NewSequence() *Sequence {
	return &Sequence{next: 1}
}

// Next returns the next id and advances the sequence
func (s *Sequence) Next() ID {
	id := s.next
	s.next++
	return id
}

// Peek returns the id Next would return, without advancing
func (s *Sequence) Peek() ID {
	return s.next
}

// ParseID parses "#12" or "12"
func ParseID(raw string) (ID, error) {
	if len(raw) > 0 && raw[0] == '#' {
		raw = raw[1:]
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return ID(n), nil
}
