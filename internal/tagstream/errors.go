package tagstream

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by NextCompleted after Close.
var ErrClosed = errors.New("tagstream: stream closed")

// ParseError reports malformed XML. Offset is the byte offset of the token
// that failed, counted from the start of the source.
type ParseError struct {
	Document string
	Line     int
	Offset   int64
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: line %d, offset %d: %s", e.Document, e.Line, e.Offset, e.Reason)
}
