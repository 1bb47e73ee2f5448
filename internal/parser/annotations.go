package parser

import "strings"

// Annotations renders token attributes next to each word, as in
// "house|NN|house".
type Annotations struct {
	Enabled   bool
	Attrs     []string
	Delimiter string
}

// missingAttr stands in for a token attribute the document does not carry.
const missingAttr = "None"

// DefaultAnnotations returns enabled annotations with the mode's default
// attributes and "|" as delimiter.
func DefaultAnnotations(m Mode) Annotations {
	return Annotations{Enabled: true, Attrs: m.DefaultAnnotationAttrs(), Delimiter: "|"}
}

func (a Annotations) render(word string, attrs map[string]string) string {
	delim := a.Delimiter
	if delim == "" {
		delim = "|"
	}
	var sb strings.Builder
	sb.WriteString(word)
	for _, name := range a.Attrs {
		sb.WriteString(delim)
		if v, ok := attrs[name]; ok {
			sb.WriteString(v)
		} else {
			sb.WriteString(missingAttr)
		}
	}
	return sb.String()
}
