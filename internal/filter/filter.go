// Package filter decides which alignment links are extracted.
package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dgallion1/alignread/internal/bitext"
)

// Rejection explains why a link was dropped. It is a value, not an error.
type Rejection struct {
	Filter string
	Reason string
}

func (r Rejection) String() string {
	return r.Filter + ": " + r.Reason
}

// Filter is a single rejection predicate over a link.
type Filter interface {
	Name() string
	// Reject reports whether link is rejected, and why.
	Reject(link *bitext.Link) (Rejection, bool)
}

// Chain accepts a link only when no filter rejects it.
type Chain []Filter

// Reject returns the first rejection in chain order.
func (c Chain) Reject(link *bitext.Link) (Rejection, bool) {
	for _, f := range c {
		if r, ok := f.Reject(link); ok {
			return r, true
		}
	}
	return Rejection{}, false
}

// Accepts reports whether every filter passes link.
func (c Chain) Accepts(link *bitext.Link) bool {
	_, rejected := c.Reject(link)
	return !rejected
}

// Side is one side of a link.
type Side int

const (
	Source Side = iota
	Target
)

func (s Side) String() string {
	if s == Target {
		return "target"
	}
	return "source"
}

func (s Side) ids(link *bitext.Link) []string {
	if s == Target {
		return link.TargetIDs
	}
	return link.SourceIDs
}

// Range is an inclusive sentence-count range, or all counts.
type Range struct {
	All      bool
	Min, Max int
}

// AllRange accepts every count.
var AllRange = Range{All: true}

// ParseRange parses "all", "N" or "N-M".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllRange, nil
	}
	lo, hi, isSpan := strings.Cut(s, "-")
	if !isSpan {
		hi = lo
	}
	first, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil || first < 0 {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	last, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || last < first {
		return Range{}, fmt.Errorf("invalid range %q", s)
	}
	return Range{Min: first, Max: last}, nil
}

// Contains reports whether n lies in the range.
func (r Range) Contains(n int) bool {
	return r.All || (n >= r.Min && n <= r.Max)
}

func (r Range) String() string {
	switch {
	case r.All:
		return "all"
	case r.Min == r.Max:
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// CountRange rejects links whose id count on Side is outside Range. The
// placeholder side counts 0.
type CountRange struct {
	Side  Side
	Range Range
}

func (f CountRange) Name() string { return f.Side.String() + "-range" }

func (f CountRange) Reject(link *bitext.Link) (Rejection, bool) {
	n := bitext.Count(f.Side.ids(link))
	if f.Range.Contains(n) {
		return Rejection{}, false
	}
	return Rejection{Filter: f.Name(), Reason: fmt.Sprintf("%d sentences outside %s", n, f.Range)}, true
}

// AttributeThreshold rejects links whose numeric attribute is below
// Threshold. A value that does not parse as a number is rejected. A link
// without the attribute passes unless RejectMissing is set.
type AttributeThreshold struct {
	Attribute     string
	Threshold     float64
	RejectMissing bool
}

func (f AttributeThreshold) Name() string { return "attribute" }

func (f AttributeThreshold) Reject(link *bitext.Link) (Rejection, bool) {
	v, ok := link.Attrs[f.Attribute]
	if !ok {
		if f.RejectMissing {
			return Rejection{Filter: f.Name(), Reason: fmt.Sprintf("missing %s", f.Attribute)}, true
		}
		return Rejection{}, false
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(score) {
		return Rejection{Filter: f.Name(), Reason: fmt.Sprintf("%s %q is not a number", f.Attribute, v)}, true
	}
	if score < f.Threshold {
		return Rejection{Filter: f.Name(), Reason: fmt.Sprintf("%s %g below %g", f.Attribute, score, f.Threshold)}, true
	}
	return Rejection{}, false
}

// NonEmpty rejects non-alignments, links with an empty side.
type NonEmpty struct{}

func (NonEmpty) Name() string { return "non-empty" }

func (f NonEmpty) Reject(link *bitext.Link) (Rejection, bool) {
	switch {
	case bitext.IsPlaceholder(link.SourceIDs):
		return Rejection{Filter: f.Name(), Reason: "empty source side"}, true
	case bitext.IsPlaceholder(link.TargetIDs):
		return Rejection{Filter: f.Name(), Reason: "empty target side"}, true
	}
	return Rejection{}, false
}

// Spec is the user-facing filter configuration of a run.
type Spec struct {
	SourceRange   string
	TargetRange   string
	Attribute     string
	Threshold     float64
	RejectMissing bool
	NonEmpty      bool
}

// Build composes the chain for spec, leaving out filters that accept
// everything.
func Build(spec Spec) (Chain, error) {
	var chain Chain
	if spec.NonEmpty {
		chain = append(chain, NonEmpty{})
	}
	for _, side := range []struct {
		side Side
		expr string
	}{{Source, spec.SourceRange}, {Target, spec.TargetRange}} {
		r, err := ParseRange(side.expr)
		if err != nil {
			return nil, fmt.Errorf("%s range: %w", side.side, err)
		}
		if !r.All {
			chain = append(chain, CountRange{Side: side.side, Range: r})
		}
	}
	if spec.Attribute != "" {
		chain = append(chain, AttributeThreshold{
			Attribute:     spec.Attribute,
			Threshold:     spec.Threshold,
			RejectMissing: spec.RejectMissing,
		})
	}
	return chain, nil
}
