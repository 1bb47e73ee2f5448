package parser

import (
	"strings"

	"github.com/dgallion1/alignread/internal/bitext"
	"github.com/dgallion1/alignread/internal/tagstream"
)

// Builder assembles sentences from the completed elements of one sentence
// document, fed in end-tag order.
type Builder struct {
	mode   Mode
	ann    Annotations
	tokens []string
}

// NewBuilder returns a Builder for documents in the given mode.
func NewBuilder(mode Mode, ann Annotations) *Builder {
	return &Builder{mode: mode, ann: ann}
}

// Feed consumes one element and returns the finished sentence when el is an
// s element. Tokens outside any s are ignored.
func (b *Builder) Feed(el *tagstream.Element) (bitext.Sentence, bool) {
	if el.Name != "s" {
		if _, inSentence := el.InAncestors("s"); !inSentence {
			return bitext.Sentence{}, false
		}
		if tok, ok := b.mode.extractText(el, b.ann); ok {
			b.tokens = append(b.tokens, tok)
		}
		return bitext.Sentence{}, false
	}

	var text string
	if b.mode.tokenized() {
		text = strings.Join(b.tokens, " ")
		b.tokens = b.tokens[:0]
	} else {
		text, _ = b.mode.extractText(el, b.ann)
	}
	return bitext.Sentence{ID: el.Attr("id"), Text: text, Attrs: el.Attrs}, true
}
