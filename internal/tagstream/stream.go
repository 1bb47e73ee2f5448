// Package tagstream builds XML elements incrementally from a line-oriented
// source and hands each element to the caller as soon as its end tag is read.
//
// Only the chain of currently open elements is resident. Open elements live in
// an arena stack indexed by depth; closing an element pops its frame, transfers
// the frame's attributes and text to the returned Element, and leaves the frame
// for reuse by the next sibling.
package tagstream

import (
	"bufio"
	"fmt"
	"io"
)

// readSize bounds a single piece fed to the tokenizer. Longer lines are fed
// in several pieces.
const readSize = 64 * 1024

// Options selects which character data is accumulated.
type Options struct {
	// DataTag, when set, restricts accumulation to elements with this name.
	DataTag string
	// NoText disables accumulation for every element.
	NoText bool
}

type frame struct {
	name    string
	attrs   map[string]string
	collect bool
	segs    []string
	cur     []byte
}

// Stream is an incremental XML tree builder. It is not safe for concurrent use.
type Stream struct {
	src      io.Reader
	rd       *bufio.Reader
	document string
	opts     Options

	buf    []byte // Unconsumed input
	back   []byte // Backing storage reused for buf
	offset int64  // Source offset of buf[0]
	lines  int    // Newlines fed so far
	line   int    // Line currently being tokenized

	stack []frame // Arena; frames past depth are free for reuse
	depth int

	rootSeen   bool
	rootClosed bool
	started    bool
	finished   bool

	done []Element
	err  error
}

// New creates a Stream reading from r. document names the source in errors.
// Close closes r when it is an io.Closer.
func New(r io.Reader, document string, opts Options) *Stream {
	return &Stream{
		src:      r,
		rd:       bufio.NewReaderSize(r, readSize),
		document: document,
		opts:     opts,
	}
}

// Document returns the name given to New.
func (s *Stream) Document() string {
	return s.document
}

// NextCompleted feeds the source line by line until at least one element has
// been completed, and returns every element completed on the last line fed in
// end-tag order. It returns io.EOF once the input is exhausted and a
// *ParseError on malformed input; after an error every call returns it again.
func (s *Stream) NextCompleted() ([]Element, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		if s.finished {
			return nil, io.EOF
		}

		piece, rerr := s.rd.ReadSlice('\n')
		if len(piece) > 0 {
			if err := s.feed(piece); err != nil {
				s.err = err
				return nil, err
			}
		}
		switch rerr {
		case nil, bufio.ErrBufferFull:
		case io.EOF:
			if err := s.finish(); err != nil {
				s.err = err
				return nil, err
			}
			s.finished = true
		default:
			s.err = fmt.Errorf("read %s: %w", s.document, rerr)
			return nil, s.err
		}

		if len(s.done) > 0 {
			out := s.done
			s.done = nil
			return out, nil
		}
	}
}

// Close releases the open path and closes the source when it is an io.Closer.
func (s *Stream) Close() error {
	s.stack = nil
	s.depth = 0
	s.buf = nil
	s.back = nil
	s.done = nil
	if s.err == nil {
		s.err = ErrClosed
	}
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Stream) feed(piece []byte) error {
	s.line = s.lines + 1
	if piece[len(piece)-1] == '\n' {
		s.lines++
	}
	if !s.started {
		s.started = true
		if len(piece) >= 3 && piece[0] == 0xEF && piece[1] == 0xBB && piece[2] == 0xBF {
			piece = piece[3:]
			s.offset = 3
		}
	}

	s.buf = append(s.buf, piece...)
	err := s.scan(false)

	// Keep the unconsumed tail at the front of the backing array.
	s.buf = append(s.back[:0], s.buf...)
	s.back = s.buf
	return err
}

func (s *Stream) finish() error {
	if err := s.scan(true); err != nil {
		return err
	}
	if s.depth > 0 {
		return s.fail("unclosed element <%s> at end of input", s.stack[s.depth-1].name)
	}
	if !s.rootSeen {
		return s.fail("no element found")
	}
	return nil
}

func (s *Stream) fail(format string, args ...any) error {
	return &ParseError{
		Document: s.document,
		Line:     s.line,
		Offset:   s.offset,
		Reason:   fmt.Sprintf(format, args...),
	}
}

func (s *Stream) advance(n int) {
	s.buf = s.buf[n:]
	s.offset += int64(n)
}

func (s *Stream) push(name string, attrs map[string]string) {
	if s.depth > 0 {
		parent := &s.stack[s.depth-1]
		if len(parent.cur) > 0 {
			parent.segs = append(parent.segs, string(parent.cur))
			parent.cur = parent.cur[:0]
		}
	}
	collect := !s.opts.NoText && (s.opts.DataTag == "" || s.opts.DataTag == name)
	if s.depth == len(s.stack) {
		s.stack = append(s.stack, frame{})
	}
	f := &s.stack[s.depth]
	f.name = name
	f.attrs = attrs
	f.collect = collect
	f.segs = nil
	f.cur = f.cur[:0]
	s.depth++
}

func (s *Stream) pop() {
	f := &s.stack[s.depth-1]
	if len(f.cur) > 0 {
		f.segs = append(f.segs, string(f.cur))
		f.cur = f.cur[:0]
	}
	el := Element{
		Name:     f.name,
		Attrs:    f.attrs,
		Line:     s.line,
		segments: f.segs,
	}
	if s.depth > 1 {
		el.ancestors = make([]Ancestor, 0, s.depth-1)
		for k := s.depth - 2; k >= 0; k-- {
			el.ancestors = append(el.ancestors, Ancestor{Name: s.stack[k].name, Attrs: s.stack[k].attrs})
		}
	}
	f.name = ""
	f.attrs = nil
	f.segs = nil
	s.depth--
	if s.depth == 0 {
		s.rootClosed = true
	}
	s.done = append(s.done, el)
}

func (s *Stream) startTag(name string, attrs map[string]string, empty bool) error {
	if s.depth == 0 {
		if s.rootClosed {
			return s.fail("junk after document element: <%s>", name)
		}
		s.rootSeen = true
	}
	s.push(name, attrs)
	if empty {
		s.pop()
	}
	return nil
}

func (s *Stream) endTag(name string) error {
	if s.depth == 0 {
		return s.fail("unexpected end tag </%s>", name)
	}
	if open := s.stack[s.depth-1].name; open != name {
		return s.fail("mismatched tag: expected </%s>, found </%s>", open, name)
	}
	s.pop()
	return nil
}

// text handles character data. CDATA content is taken literally.
func (s *Stream) text(data []byte, cdata bool) error {
	if s.depth == 0 {
		if !cdata && isBlank(data) {
			return nil
		}
		if s.rootClosed {
			return s.fail("junk after document element")
		}
		return s.fail("text before the root element")
	}
	f := &s.stack[s.depth-1]
	if cdata {
		if f.collect {
			f.cur = append(f.cur, data...)
		}
		return nil
	}
	if f.collect {
		out, reason := decodeEntities(f.cur, data)
		if reason != "" {
			return s.fail("%s", reason)
		}
		f.cur = out
		return nil
	}
	if reason := checkEntities(data); reason != "" {
		return s.fail("%s", reason)
	}
	return nil
}
