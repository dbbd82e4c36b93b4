package wizard

import (
	"errors"
	"strings"
)

var (
	// ErrWrongStep is returned when an operation is not valid in the current step.
	ErrWrongStep = errors.New("wizard: operation not available in this step")
	// ErrBusy is returned while a conflicting request is still running.
	ErrBusy = errors.New("wizard: request already in progress")
	// ErrStale is returned when a response arrives after the wizard moved on;
	// the response is discarded.
	ErrStale = errors.New("wizard: response discarded, wizard state changed")

	ErrUnknownProposal = errors.New("wizard: unknown proposal")
)

// ValidationError lists the problems found in user input. Nothing was sent to
// the generative service.
type ValidationError struct {
	Subject  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Subject + ": " + strings.Join(e.Problems, "; ")
}
