package shared

import "fmt"

// DomainError is the base error type for all domain errors
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// State transition errors

// InvalidTransitionError reports a state machine transition that is not allowed
// from the entity's current state.
type InvalidTransitionError struct {
	*DomainError
	From string
	To   string
}

func NewInvalidTransitionError(from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{
		DomainError: NewDomainError(fmt.Sprintf("cannot transition from %s to %s", from, to)),
		From:        from,
		To:          to,
	}
}
