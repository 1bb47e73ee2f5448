package bitext

// Link is one alignment between a set of source sentence ids and a set of
// target sentence ids. A side whose sole id is Placeholder is a non-alignment.
type Link struct {
	SourceIDs []string          // Ids on the source side, in xtargets order
	TargetIDs []string          // Ids on the target side, in xtargets order
	Attrs     map[string]string // Link attributes except xtargets (id, certainty, overlap, ...)
}

// Placeholder is the id standing for "no sentence" on an empty xtargets side.
const Placeholder = ""

// IsPlaceholder reports whether ids is the one-element empty side.
func IsPlaceholder(ids []string) bool {
	return len(ids) == 1 && ids[0] == Placeholder
}

// Count returns the number of real sentence ids in ids. The placeholder counts 0.
func Count(ids []string) int {
	if IsPlaceholder(ids) {
		return 0
	}
	return len(ids)
}

// LinkGroup is the content of one linkGrp: a document pair and its links.
type LinkGroup struct {
	FromDoc string
	ToDoc   string
	Links   []Link

	// SourceIDs and TargetIDs are the union of ids referenced by Links,
	// including Placeholder when a side is empty.
	SourceIDs map[string]struct{}
	TargetIDs map[string]struct{}

	// CarryOver is set when collection stopped at a link that belongs to a
	// different document pair. It is replayed as the first link of the next group.
	CarryOver *Link
}

// Sentence is one resolved sentence of a document.
type Sentence struct {
	ID    string
	Text  string
	Attrs map[string]string
}

// Pair is a finished extraction record handed to output writers.
type Pair struct {
	FromDoc string
	ToDoc   string

	SourceIDs []string
	TargetIDs []string

	SourceText string // Source sentences joined with single spaces
	TargetText string // Target sentences joined with single spaces

	Source []Sentence // One entry per requested source id
	Target []Sentence // One entry per requested target id

	LinkAttrs map[string]string
}
