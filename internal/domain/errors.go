package domain

import "fmt"

// ValidationError reports malformed input rejected synchronously at a
// boundary (feed ingestion, order submission, config load). It never enters
// the event log and never stops the pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// VenueError reports an execution venue failure (timeout, throttle, venue
// rejection). It is terminal for the order that triggered it: the adapter
// converts it into an order.reject event, it is never swallowed.
type VenueError struct {
	Venue  string
	Code   string
	Reason string
}

// Error implements the error interface.
func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s: %s (%s)", e.Venue, e.Reason, e.Code)
}
