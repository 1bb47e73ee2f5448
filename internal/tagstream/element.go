package tagstream

import "strings"

// Ancestor is the name and attributes of an element that was still open when
// a descendant closed. Ancestors never carry text.
type Ancestor struct {
	Name  string
	Attrs map[string]string
}

// Element is a completed XML element, handed out on its end tag.
type Element struct {
	Name  string
	Attrs map[string]string
	Line  int // Line of the end tag

	segments  []string
	ancestors []Ancestor // Nearest first
}

// Text returns the accumulated character data of the element.
func (e *Element) Text() string {
	switch len(e.segments) {
	case 0:
		return ""
	case 1:
		return e.segments[0]
	}
	return strings.Join(e.segments, "")
}

// Segments returns the character data runs of the element in document
// order. A new run starts after every child element.
func (e *Element) Segments() []string {
	return e.segments
}

// Attr returns the value of attribute name, or "" when absent.
func (e *Element) Attr(name string) string {
	return e.Attrs[name]
}

// Depth is the number of ancestors of the element.
func (e *Element) Depth() int {
	return len(e.ancestors)
}

// Parent returns the direct parent of the element.
func (e *Element) Parent() (Ancestor, bool) {
	if len(e.ancestors) == 0 {
		return Ancestor{}, false
	}
	return e.ancestors[0], true
}

// InAncestors walks the ancestor chain from the parent upwards and returns
// the nearest ancestor called name.
func (e *Element) InAncestors(name string) (Ancestor, bool) {
	for _, a := range e.ancestors {
		if a.Name == name {
			return a, true
		}
	}
	return Ancestor{}, false
}
