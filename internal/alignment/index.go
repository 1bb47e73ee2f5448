// Package alignment reads a cesAlign sentence-alignment file one linkGrp at a
// time.
package alignment

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/alignread/internal/bitext"
	"github.com/dgallion1/alignread/internal/tagstream"
)

// Index walks the link groups of an alignment stream. It is not safe for
// concurrent use.
type Index struct {
	stream  *tagstream.Stream
	pending []tagstream.Element

	carry     *bitext.Link
	carryFrom string
	carryTo   string
}

// NewIndex reads alignments from r. document names the source in errors.
func NewIndex(r io.Reader, document string) *Index {
	return &Index{
		stream: tagstream.New(r, document, tagstream.Options{NoText: true}),
	}
}

// Document returns the name given to NewIndex.
func (x *Index) Document() string {
	return x.stream.Document()
}

// Close releases the underlying stream.
func (x *Index) Close() error {
	return x.stream.Close()
}

// CollectLinks returns the links of the next document pair. Collection ends
// at the group's linkGrp end tag, or at a link whose linkGrp names other
// documents; that link is returned as CarryOver and becomes the first link of
// the next call. It returns io.EOF when no links remain.
func (x *Index) CollectLinks() (*bitext.LinkGroup, error) {
	var grp *bitext.LinkGroup
	if x.carry != nil {
		grp = newGroup(x.carryFrom, x.carryTo)
		addLink(grp, *x.carry)
		x.carry = nil
	}

	for {
		el, err := x.next()
		if err == io.EOF {
			if grp != nil {
				return grp, nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		switch el.Name {
		case "link":
			from, to, err := x.groupDocs(&el)
			if err != nil {
				return nil, err
			}
			link, err := x.parseLink(&el)
			if err != nil {
				return nil, err
			}
			if grp == nil {
				grp = newGroup(from, to)
			} else if from != grp.FromDoc || to != grp.ToDoc {
				x.carry = &link
				x.carryFrom, x.carryTo = from, to
				carried := link
				grp.CarryOver = &carried
				return grp, nil
			}
			addLink(grp, link)

		case "linkGrp":
			// Empty groups and groups closing around another pair's links are skipped.
			if grp != nil && el.Attr("fromDoc") == grp.FromDoc && el.Attr("toDoc") == grp.ToDoc {
				return grp, nil
			}
		}
	}
}

func (x *Index) next() (tagstream.Element, error) {
	for len(x.pending) == 0 {
		els, err := x.stream.NextCompleted()
		if err != nil {
			return tagstream.Element{}, err
		}
		x.pending = els
	}
	el := x.pending[0]
	x.pending = x.pending[1:]
	return el, nil
}

func (x *Index) groupDocs(el *tagstream.Element) (string, string, error) {
	grp, ok := el.InAncestors("linkGrp")
	if !ok {
		return "", "", x.structural(el, "link outside any linkGrp")
	}
	from, okFrom := grp.Attrs["fromDoc"]
	to, okTo := grp.Attrs["toDoc"]
	if !okFrom || !okTo {
		return "", "", x.structural(el, "linkGrp without fromDoc and toDoc")
	}
	return from, to, nil
}

func (x *Index) parseLink(el *tagstream.Element) (bitext.Link, error) {
	v, ok := el.Attrs["xtargets"]
	if !ok {
		return bitext.Link{}, x.structural(el, "link without xtargets")
	}
	src, trg, err := ParseXTargets(v)
	if err != nil {
		return bitext.Link{}, x.structural(el, err.Error())
	}

	var attrs map[string]string
	if len(el.Attrs) > 1 {
		attrs = make(map[string]string, len(el.Attrs)-1)
		for k, v := range el.Attrs {
			if k != "xtargets" {
				attrs[k] = v
			}
		}
	}
	return bitext.Link{SourceIDs: src, TargetIDs: trg, Attrs: attrs}, nil
}

func (x *Index) structural(el *tagstream.Element, reason string) error {
	return &StructuralError{Document: x.stream.Document(), Line: el.Line, Reason: reason}
}

// ParseXTargets splits an xtargets value "a b;c" into its source and target
// ids. An empty side is the single placeholder id.
func ParseXTargets(v string) ([]string, []string, error) {
	src, trg, found := strings.Cut(v, ";")
	if !found {
		return nil, nil, fmt.Errorf("xtargets %q has no ';'", v)
	}
	return splitIDs(src), splitIDs(trg), nil
}

func splitIDs(side string) []string {
	ids := strings.Fields(side)
	if len(ids) == 0 {
		return []string{bitext.Placeholder}
	}
	return ids
}

func newGroup(from, to string) *bitext.LinkGroup {
	return &bitext.LinkGroup{
		FromDoc:   from,
		ToDoc:     to,
		SourceIDs: make(map[string]struct{}),
		TargetIDs: make(map[string]struct{}),
	}
}

func addLink(g *bitext.LinkGroup, link bitext.Link) {
	g.Links = append(g.Links, link)
	for _, id := range link.SourceIDs {
		g.SourceIDs[id] = struct{}{}
	}
	for _, id := range link.TargetIDs {
		g.TargetIDs[id] = struct{}{}
	}
}
