package parts

import "math/rand/v2"

// Fulfillment is the outcome of one parts request against a Stock.
//
// Invariant: len(Delivered)+len(Missing) == len(Requested)
type Fulfillment struct {
	Requested []Kind
	Delivered []Kind
	Missing   []Kind
}

// Partial reports whether at least one requested kind was out of stock
func (f Fulfillment) Partial() bool {
	return len(f.Missing) > 0
}

// Stock holds the per-kind counts of one storage pool.
//
// Stock is NOT safe for concurrent use. It is owned by exactly one inventory
// agent and only mutated from that agent's message loop.
//
// Invariants:
// - Every catalog kind has an entry
// - Counts are never negative
type Stock struct {
	catalog *Catalog
	counts  map[Kind]int
}

// NewStock seeds every catalog kind with the same initial count
func NewStock(catalog *Catalog, initial int) (*Stock, error) {
	if initial < 0 {
		return nil, &ErrNegativeStock{Amount: initial}
	}

	counts := make(map[Kind]int, catalog.Size())
	for _, kind := range catalog.kinds {
		counts[kind] = initial
	}
	return &Stock{catalog: catalog, counts: counts}, nil
}

func (s *Stock) Catalog() *Catalog { return s.catalog }

// Count returns the units on hand for a kind (0 for unknown kinds)
func (s *Stock) Count(kind Kind) int {
	return s.counts[kind]
}

// Total returns the units on hand across all kinds
func (s *Stock) Total() int {
	total := 0
	for _, units := range s.counts {
		total += units
	}
	return total
}

// Snapshot returns a copy of the counts
func (s *Stock) Snapshot() map[Kind]int {
	out := make(map[Kind]int, len(s.counts))
	for kind, units := range s.counts {
		out[kind] = units
	}
	return out
}

// Take removes one unit of each requested kind that is in stock.
// Kinds at zero are reported missing and left untouched.
func (s *Stock) Take(requested []Kind) Fulfillment {
	result := Fulfillment{
		Requested: requested,
		Delivered: make([]Kind, 0, len(requested)),
		Missing:   make([]Kind, 0),
	}

	for _, kind := range requested {
		if s.counts[kind] > 0 {
			s.counts[kind]--
			result.Delivered = append(result.Delivered, kind)
		} else {
			result.Missing = append(result.Missing, kind)
		}
	}
	return result
}

// Fulfill draws count distinct kinds from the catalog and takes them from stock
func (s *Stock) Fulfill(rng *rand.Rand, count int) (Fulfillment, error) {
	requested, err := s.catalog.Sample(rng, count)
	if err != nil {
		return Fulfillment{}, err
	}
	return s.Take(requested), nil
}

// Replenish adds increment units to every catalog kind, scarce or not
func (s *Stock) Replenish(increment int) error {
	if increment < 0 {
		return &ErrNegativeStock{Amount: increment}
	}
	for _, kind := range s.catalog.kinds {
		s.counts[kind] += increment
	}
	return nil
}
