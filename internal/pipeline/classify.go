package pipeline

import (
	"errors"
	"fmt"

	"github.com/dgallion1/alignread/internal/docindex"
)

// DocumentError is a failure confined to one sentence document of a pair:
// it could not be opened, was malformed, or a lookup in it failed.
type DocumentError struct {
	Document string
	Err      error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %v", e.Document, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// IsPairLocal reports whether err only spoils the current document pair.
// The run skips such pairs; every other error aborts it.
func IsPairLocal(err error) bool {
	var docErr *DocumentError
	if errors.As(err, &docErr) {
		return true
	}
	var outOfOrder *docindex.OutOfOrderSentenceError
	if errors.As(err, &outOfOrder) {
		return true
	}
	var notFound *docindex.SentenceNotFoundError
	return errors.As(err, &notFound)
}
