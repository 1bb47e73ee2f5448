package docindex

import (
	"errors"
	"fmt"
)

// ErrNotLoaded is returned by Buffered.Resolve before Load.
var ErrNotLoaded = errors.New("docindex: document not loaded")

// OutOfOrderSentenceError reports a streaming request for an id the stream
// has already moved past. Last is the id of the last sentence consumed.
type OutOfOrderSentenceError struct {
	Document string
	ID       string
	Last     string
}

func (e *OutOfOrderSentenceError) Error() string {
	return fmt.Sprintf("%s: sentence %q requested after %q", e.Document, e.ID, e.Last)
}

// SentenceNotFoundError reports a streaming request for an id that does not
// occur in the rest of the document.
type SentenceNotFoundError struct {
	Document string
	ID       string
}

func (e *SentenceNotFoundError) Error() string {
	return fmt.Sprintf("%s: sentence %q not found", e.Document, e.ID)
}
