package parts

import "fmt"

// ErrEmptyCatalog indicates a catalog was built without part kinds
type ErrEmptyCatalog struct{}

func (e *ErrEmptyCatalog) Error() string {
	return "part catalog cannot be empty"
}

// ErrDuplicatePartKind indicates a part name appears twice in a catalog
type ErrDuplicatePartKind struct {
	Kind Kind
}

func (e *ErrDuplicatePartKind) Error() string {
	return fmt.Sprintf("duplicate part kind in catalog: %s", e.Kind)
}

// ErrInvalidRequestCount indicates a parts request asks for more distinct kinds than exist
type ErrInvalidRequestCount struct {
	Requested   int
	CatalogSize int
}

func (e *ErrInvalidRequestCount) Error() string {
	return fmt.Sprintf("cannot draw %d distinct parts from a catalog of %d", e.Requested, e.CatalogSize)
}

// ErrNegativeStock indicates an attempt to seed or replenish stock with a negative amount
type ErrNegativeStock struct {
	Amount int
}

func (e *ErrNegativeStock) Error() string {
	return fmt.Sprintf("stock amount cannot be negative: %d", e.Amount)
}
