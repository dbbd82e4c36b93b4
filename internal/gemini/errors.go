package gemini

import (
	"fmt"
	"strings"
)

// Kind classifies a failed request.
type Kind int

const (
	// KindService covers transport failures and non-2xx answers.
	KindService Kind = iota + 1
	// KindSchemaViolation means the response did not have the declared shape.
	KindSchemaViolation
	// KindEmptyResult means a well-formed response carried no proposals.
	KindEmptyResult
	// KindNoImageReturned means an image request came back without an image.
	KindNoImageReturned
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service error"
	case KindSchemaViolation:
		return "schema violation"
	case KindEmptyResult:
		return "empty result"
	case KindNoImageReturned:
		return "no image returned"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is.
var (
	ErrService         = &Error{Kind: KindService}
	ErrSchemaViolation = &Error{Kind: KindSchemaViolation}
	ErrEmptyResult     = &Error{Kind: KindEmptyResult}
	ErrNoImageReturned = &Error{Kind: KindNoImageReturned}
)

// Error is returned by every Client request. Explanation carries any text the
// service sent alongside the failure, such as a safety refusal.
type Error struct {
	Kind        Kind
	Op          string
	StatusCode  int
	Explanation string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("gemini")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Explanation != "" {
		b.WriteString(": ")
		b.WriteString(e.Explanation)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Explanation == "" && t.Err == nil && t.Kind == e.Kind
}

// UserMessage is the text to show a person: the service's own explanation
// when there is one.
func (e *Error) UserMessage() string {
	if e.Explanation != "" {
		return e.Explanation
	}
	return e.Kind.String()
}

func newError(kind Kind, op string, explanation string, err error) *Error {
	return &Error{Kind: kind, Op: op, Explanation: strings.TrimSpace(explanation), Err: err}
}
