// Package docindex resolves sentence ids of one sentence document to text.
//
// Streaming reads the document forward only and needs ids in document order.
// Buffered reads it once into memory and answers any order.
package docindex

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/alignread/internal/bitext"
	"github.com/dgallion1/alignread/internal/parser"
	"github.com/dgallion1/alignread/internal/tagstream"
)

// Strategy selects a DocumentIndex implementation.
type Strategy int

const (
	StrategyBuffered Strategy = iota
	StrategyStreaming
)

func (s Strategy) String() string {
	if s == StrategyStreaming {
		return "streaming"
	}
	return "buffered"
}

// Resolution is the outcome of resolving a list of ids.
type Resolution struct {
	// Text joins the non-empty sentence texts with single spaces.
	Text string
	// Sentences holds one record per requested id, in request order.
	Sentences []bitext.Sentence
}

// Index resolves sentence ids to text.
type Index interface {
	Resolve(ids []string) (Resolution, error)
	Close() error
}

func join(sents []bitext.Sentence) string {
	var sb strings.Builder
	for _, s := range sents {
		if s.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// reader pulls finished sentences out of a tag stream.
type reader struct {
	stream  *tagstream.Stream
	builder *parser.Builder
	pending []tagstream.Element
}

func newReader(r io.Reader, document string, mode parser.Mode, ann parser.Annotations) reader {
	return reader{
		stream:  tagstream.New(r, document, mode.StreamOptions()),
		builder: parser.NewBuilder(mode, ann),
	}
}

// next returns the next sentence of the document, or io.EOF.
func (r *reader) next() (bitext.Sentence, error) {
	for {
		for len(r.pending) > 0 {
			el := &r.pending[0]
			r.pending = r.pending[1:]
			if sent, ok := r.builder.Feed(el); ok {
				return sent, nil
			}
		}
		els, err := r.stream.NextCompleted()
		if err != nil {
			return bitext.Sentence{}, err
		}
		r.pending = els
	}
}

// Streaming resolves ids by reading forward. Ids must be requested in
// non-decreasing natural order; the last sentence read may be requested
// again. Any id at or before the last sentence consumed from the stream,
// matched or skipped, is out of order.
type Streaming struct {
	r     reader
	last  *bitext.Sentence
	ahead *bitext.Sentence
	// passed is the id of the last sentence consumed, excluding ahead.
	passed    string
	hasPassed bool
}

// NewStreaming returns a Streaming index over r.
func NewStreaming(r io.Reader, document string, mode parser.Mode, ann parser.Annotations) *Streaming {
	return &Streaming{r: newReader(r, document, mode, ann)}
}

// Resolve returns the sentences for ids in request order.
func (s *Streaming) Resolve(ids []string) (Resolution, error) {
	sents := make([]bitext.Sentence, 0, len(ids))
	for _, id := range ids {
		sent, err := s.resolveOne(id)
		if err != nil {
			return Resolution{}, err
		}
		sents = append(sents, sent)
	}
	return Resolution{Text: join(sents), Sentences: sents}, nil
}

func (s *Streaming) resolveOne(id string) (bitext.Sentence, error) {
	if id == bitext.Placeholder {
		return bitext.Sentence{}, nil
	}
	doc := s.r.stream.Document()

	if s.last != nil && id == s.last.ID {
		return *s.last, nil
	}
	if s.hasPassed && bitext.CompareIDs(id, s.passed) <= 0 {
		return bitext.Sentence{}, &OutOfOrderSentenceError{Document: doc, ID: id, Last: s.passed}
	}
	if s.ahead != nil {
		switch c := bitext.CompareIDs(id, s.ahead.ID); {
		case c == 0:
			s.consume(s.ahead)
			s.ahead = nil
			return *s.last, nil
		case c < 0:
			return bitext.Sentence{}, &SentenceNotFoundError{Document: doc, ID: id}
		}
		s.consume(nil)
	}

	for {
		sent, err := s.r.next()
		if err == io.EOF {
			return bitext.Sentence{}, &SentenceNotFoundError{Document: doc, ID: id}
		}
		if err != nil {
			return bitext.Sentence{}, err
		}
		switch c := bitext.CompareIDs(id, sent.ID); {
		case c == 0:
			s.consume(&sent)
			return sent, nil
		case c < 0:
			s.ahead = &sent
			return bitext.Sentence{}, &SentenceNotFoundError{Document: doc, ID: id}
		}
		s.passed, s.hasPassed = sent.ID, true
	}
}

// consume moves the position past matched, or past the look-ahead when
// matched is nil.
func (s *Streaming) consume(matched *bitext.Sentence) {
	if matched == nil {
		s.passed, s.hasPassed = s.ahead.ID, true
		s.ahead = nil
		return
	}
	s.last = matched
	s.passed, s.hasPassed = matched.ID, true
}

// Close releases the underlying stream.
func (s *Streaming) Close() error {
	return s.r.stream.Close()
}

// Buffered loads a document into memory once and then answers lookups in
// any order.
type Buffered struct {
	r         reader
	sentences map[string]bitext.Sentence
	loaded    bool
}

// NewBuffered returns a Buffered index over r. Call Load before Resolve.
func NewBuffered(r io.Reader, document string, mode parser.Mode, ann parser.Annotations) *Buffered {
	return &Buffered{r: newReader(r, document, mode, ann)}
}

// Load reads the whole document. With a nil wanted set every sentence is
// kept, otherwise only the wanted ids.
func (b *Buffered) Load(wanted map[string]struct{}) error {
	if b.loaded {
		return fmt.Errorf("%s: already loaded", b.r.stream.Document())
	}
	b.sentences = make(map[string]bitext.Sentence, len(wanted))
	for {
		sent, err := b.r.next()
		if err == io.EOF {
			b.loaded = true
			return nil
		}
		if err != nil {
			return err
		}
		if sent.ID == bitext.Placeholder {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[sent.ID]; !ok {
				continue
			}
		}
		b.sentences[sent.ID] = sent
	}
}

// Len returns the number of sentences kept by Load.
func (b *Buffered) Len() int {
	return len(b.sentences)
}

// Resolve looks up ids. Missing ids and the placeholder resolve to empty
// sentences.
func (b *Buffered) Resolve(ids []string) (Resolution, error) {
	if !b.loaded {
		return Resolution{}, ErrNotLoaded
	}
	sents := make([]bitext.Sentence, 0, len(ids))
	for _, id := range ids {
		if id == bitext.Placeholder {
			sents = append(sents, bitext.Sentence{})
			continue
		}
		sent, ok := b.sentences[id]
		if !ok {
			sent = bitext.Sentence{ID: id}
		}
		sents = append(sents, sent)
	}
	return Resolution{Text: join(sents), Sentences: sents}, nil
}

// Close releases the underlying stream and the loaded sentences.
func (b *Buffered) Close() error {
	b.sentences = nil
	return b.r.stream.Close()
}
