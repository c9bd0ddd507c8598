package parts

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Kind identifies one entry of the part catalog. Kinds are opaque labels.
type Kind string

func (k Kind) String() string { return string(k) }

// Catalog is the fixed, ordered set of part kinds known to a factory.
// It is immutable after construction and safe to share between agents.
type Catalog struct {
	kinds []Kind
	index map[Kind]int
}

// NewCatalog creates a catalog from part names. Names must be non-blank and unique.
func NewCatalog(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return nil, &ErrEmptyCatalog{}
	}

	kinds := make([]Kind, 0, len(names))
	index := make(map[Kind]int, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("part name cannot be empty")
		}
		kind := Kind(name)
		if _, exists := index[kind]; exists {
			return nil, &ErrDuplicatePartKind{Kind: kind}
		}
		index[kind] = len(kinds)
		kinds = append(kinds, kind)
	}

	return &Catalog{kinds: kinds, index: index}, nil
}

// MustNewCatalog is NewCatalog for fixtures and defaults; it panics on invalid input.
func MustNewCatalog(names ...string) *Catalog {
	c, err := NewCatalog(names)
	if err != nil {
		panic(err)
	}
	return c
}

// Kinds returns a copy of the catalog entries in declaration order
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, len(c.kinds))
	copy(out, c.kinds)
	return out
}

func (c *Catalog) Size() int { return len(c.kinds) }

func (c *Catalog) Contains(kind Kind) bool {
	_, ok := c.index[kind]
	return ok
}

// Sample draws n distinct kinds uniformly at random (partial Fisher-Yates).
// The draw ignores stock levels.
func (c *Catalog) Sample(rng *rand.Rand, n int) ([]Kind, error) {
	if n < 0 || n > len(c.kinds) {
		return nil, &ErrInvalidRequestCount{Requested: n, CatalogSize: len(c.kinds)}
	}

	pool := c.Kinds()
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n], nil
}
