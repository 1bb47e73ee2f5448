// Package output renders extracted sentence pairs.
package output

import (
	"bufio"
	"fmt"
	"io"
	"slices"

	"github.com/dgallion1/alignread/internal/bitext"
)

// Writer receives pairs grouped by document pair. Close writes any trailer
// and flushes; it does not close the underlying io.Writer.
type Writer interface {
	BeginGroup(fromDoc, toDoc string) error
	WritePair(p *bitext.Pair) error
	EndGroup() error
	Close() error
}

// Options configures a Writer.
type Options struct {
	// Target receives target sentences in moses format. When nil both sides
	// go to the main writer, tab separated.
	Target io.Writer
	// SourceLang and TargetLang label the tmx translation units.
	SourceLang string
	TargetLang string
}

// Formats lists the names accepted by New.
var Formats = []string{"normal", "moses", "tmx", "links"}

// IsFormat reports whether name is a known output format.
func IsFormat(name string) bool {
	return slices.Contains(Formats, name)
}

// Extension is the file extension conventionally used for a format.
func Extension(format string) string {
	switch format {
	case "moses":
		return ".txt"
	case "tmx":
		return ".tmx"
	case "links":
		return ".xml"
	}
	return ".txt"
}

// New returns a Writer for format writing to w.
func New(format string, w io.Writer, opts Options) (Writer, error) {
	switch format {
	case "normal", "":
		return &normalWriter{w: bufio.NewWriter(w)}, nil
	case "moses":
		mw := &mosesWriter{src: bufio.NewWriter(w)}
		if opts.Target != nil {
			mw.trg = bufio.NewWriter(opts.Target)
		}
		return mw, nil
	case "tmx":
		if opts.SourceLang == "" || opts.TargetLang == "" {
			return nil, fmt.Errorf("tmx output needs source and target languages")
		}
		return newTMXWriter(bufio.NewWriter(w), opts.SourceLang, opts.TargetLang)
	case "links":
		return newLinksWriter(bufio.NewWriter(w))
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

const separator = "================================\n"

type normalWriter struct {
	w *bufio.Writer
}

func (n *normalWriter) BeginGroup(fromDoc, toDoc string) error {
	_, err := fmt.Fprintf(n.w, "\n# %s\n# %s\n\n%s", fromDoc, toDoc, separator)
	return err
}

func (n *normalWriter) WritePair(p *bitext.Pair) error {
	for _, s := range p.Source {
		if s.ID != bitext.Placeholder {
			fmt.Fprintf(n.w, "(src)=\"%s\">%s\n", s.ID, s.Text)
		}
	}
	for _, s := range p.Target {
		if s.ID != bitext.Placeholder {
			fmt.Fprintf(n.w, "(trg)=\"%s\">%s\n", s.ID, s.Text)
		}
	}
	_, err := n.w.WriteString(separator)
	return err
}

func (n *normalWriter) EndGroup() error { return nil }

func (n *normalWriter) Close() error { return n.w.Flush() }

type mosesWriter struct {
	src *bufio.Writer
	trg *bufio.Writer
}

func (m *mosesWriter) BeginGroup(string, string) error { return nil }

func (m *mosesWriter) WritePair(p *bitext.Pair) error {
	if m.trg == nil {
		_, err := fmt.Fprintf(m.src, "%s\t%s\n", p.SourceText, p.TargetText)
		return err
	}
	if _, err := fmt.Fprintln(m.src, p.SourceText); err != nil {
		return err
	}
	_, err := fmt.Fprintln(m.trg, p.TargetText)
	return err
}

func (m *mosesWriter) EndGroup() error { return nil }

func (m *mosesWriter) Close() error {
	if m.trg != nil {
		if err := m.trg.Flush(); err != nil {
			return err
		}
	}
	return m.src.Flush()
}
