package job

import (
	"fmt"

	"github.com/andrescamacho/carfactory-go/internal/domain/order"
)

// ErrWorkerBusy indicates a job arrived while another one is in flight
type ErrWorkerBusy struct {
	Current  order.ID
	Rejected order.ID
	Phase    Phase
}

func (e *ErrWorkerBusy) Error() string {
	return fmt.Sprintf("worker busy with order %s (%s), cannot start %s", e.Current, e.Phase, e.Rejected)
}

// ErrStaleResponse indicates a parts reply whose correlation id is not the pending one
type ErrStaleResponse struct {
	OrderID  order.ID
	Expected string
	Got      string
}

func (e *ErrStaleResponse) Error() string {
	return fmt.Sprintf("stale parts response for order %s: expected request %s, got %s", e.OrderID, e.Expected, e.Got)
}

// ErrForeignOrder indicates an event for an order the worker is not running
type ErrForeignOrder struct {
	Current order.ID
	Got     order.ID
}

func (e *ErrForeignOrder) Error() string {
	return fmt.Sprintf("event for order %s while running %s", e.Got, e.Current)
}
