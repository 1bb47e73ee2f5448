package alignment

import "fmt"

// StructuralError reports well-formed XML that breaks the cesAlign format,
// such as an xtargets value without ';' or a link outside any linkGrp.
type StructuralError struct {
	Document string
	Line     int
	Reason   string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("alignment %s: line %d: %s", e.Document, e.Line, e.Reason)
}
