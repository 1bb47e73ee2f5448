// Package parser turns completed sentence-document elements into sentences
// according to the preprocessing mode of the corpus.
package parser

import (
	"fmt"
	"strings"

	"github.com/dgallion1/alignread/internal/tagstream"
)

// Mode is the text-reconstruction convention of a sentence document.
type Mode int

const (
	// Tokenized documents hold one w element per token.
	Tokenized Mode = iota
	// Raw documents hold the sentence text directly in s.
	Raw
	// RawTimed is raw subtitle text interleaved with time markers.
	RawTimed
	// Parsed documents are tokenized with dependency annotations on w.
	Parsed
)

var modeNames = map[string]Mode{
	"xml":      Tokenized,
	"raw":      Raw,
	"raw-time": RawTimed,
	"parsed":   Parsed,
}

// ParseMode maps a preprocessing name (xml, raw, raw-time, parsed) to a Mode.
func ParseMode(name string) (Mode, error) {
	m, ok := modeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unsupported preprocessing %q", name)
	}
	return m, nil
}

func (m Mode) String() string {
	switch m {
	case Tokenized:
		return "xml"
	case Raw:
		return "raw"
	case RawTimed:
		return "raw-time"
	case Parsed:
		return "parsed"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Directory is the corpus subdirectory holding documents of this mode.
func (m Mode) Directory() string {
	switch m {
	case Raw, RawTimed:
		return "raw"
	case Parsed:
		return "parsed"
	}
	return "xml"
}

// DataTag is the only element whose character data the mode needs.
func (m Mode) DataTag() string {
	if m.tokenized() {
		return "w"
	}
	return "s"
}

// StreamOptions returns tag stream options for documents of this mode.
func (m Mode) StreamOptions() tagstream.Options {
	return tagstream.Options{DataTag: m.DataTag()}
}

func (m Mode) tokenized() bool {
	return m == Tokenized || m == Parsed
}

// DefaultAnnotationAttrs lists the token attributes printed with annotations
// when none are configured.
func (m Mode) DefaultAnnotationAttrs() []string {
	if m == Parsed {
		return []string{"upos", "feats", "head", "deprel"}
	}
	return []string{"pos", "lem"}
}

// extractText returns the text contributed by el: a token for w elements in
// tokenized modes, the sentence text for s elements in raw modes.
func (m Mode) extractText(el *tagstream.Element, ann Annotations) (string, bool) {
	switch m {
	case Tokenized, Parsed:
		if el.Name != "w" {
			return "", false
		}
		word := strings.TrimSpace(el.Text())
		if word == "" {
			return "", false
		}
		if ann.Enabled {
			return ann.render(word, el.Attrs), true
		}
		return word, true

	case Raw:
		if el.Name != "s" {
			return "", false
		}
		return el.Text(), true

	case RawTimed:
		if el.Name != "s" {
			return "", false
		}
		segs := el.Segments()
		for i := len(segs) - 1; i >= 0; i-- {
			if t := strings.TrimSpace(segs[i]); t != "" {
				return t, true
			}
		}
		return "", true
	}
	return "", false
}
