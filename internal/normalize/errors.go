package normalize

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoModelArray indicates that no recognizable model array exists
	// anywhere in the payload.
	ErrNoModelArray = errors.New("no model array found")

	// ErrInvalidPayload indicates the payload is not decodable JSON.
	ErrInvalidPayload = errors.New("invalid payload")
)

// DataFormatError is returned when a payload cannot be loaded at all. It is
// fatal to the load and wraps ErrNoModelArray or ErrInvalidPayload.
type DataFormatError struct {
	// Reason is a short description of what was wrong.
	Reason string
	// Keys are the top-level keys seen in an unrecognized object payload.
	Keys []string
	Err  error
}

func (e *DataFormatError) Error() string {
	var b strings.Builder
	b.WriteString("data format: ")
	b.WriteString(e.Reason)
	if len(e.Keys) > 0 {
		fmt.Fprintf(&b, " (keys: %s)", strings.Join(e.Keys, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DataFormatError) Unwrap() error {
	return e.Err
}

// RecordError describes a single upstream record that could not be
// extracted. Record errors are logged and never abort a load.
type RecordError struct {
	Index int
	ID    string
	Err   error
}

func (e *RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
