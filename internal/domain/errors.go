package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrInvalidOutcome         = errors.New("invalid outcome label")
	ErrUnsupportedMarketShape = errors.New("unsupported market shape")
	ErrOutcomeNotFound        = errors.New("outcome not found")
	ErrMarketNotResolved      = errors.New("market not resolved")
)

// FieldError records a single missing or malformed field found while
// validating a fetched subgraph record.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// ValidationError aggregates every field violation found in one subgraph
// record, so a caller sees all problems with a record at once instead of
// fixing them one at a time.
type ValidationError struct {
	Record string // "market" or "bet"
	ID     string // record id when known
	Fields []FieldError
}

// Add appends a field violation.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	})
}

// OrNil returns the error itself if any violations were recorded, nil
// otherwise. Use as the final return of a validation pass.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid ")
	b.WriteString(e.Record)
	if e.ID != "" {
		b.WriteString(" ")
		b.WriteString(e.ID)
	}
	b.WriteString(" record:")
	for _, f := range e.Fields {
		b.WriteString("\n  - ")
		b.WriteString(f.Error())
	}
	return b.String()
}
