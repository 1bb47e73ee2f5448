package output

import (
	"bufio"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/beevik/etree"
	"github.com/dgallion1/alignread/internal/bitext"
)

const xmlDecl = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// tmxWriter streams a TMX 1.4 document. Each translation unit is built as
// its own etree fragment.
type tmxWriter struct {
	w        *bufio.Writer
	src, trg string
}

func newTMXWriter(w *bufio.Writer, src, trg string) (*tmxWriter, error) {
	doc := etree.NewDocument()
	header := doc.CreateElement("header")
	header.CreateAttr("srclang", src)
	header.CreateAttr("adminlang", "en")
	header.CreateAttr("segtype", "sentence")
	header.CreateAttr("datatype", "PlainText")

	w.WriteString(xmlDecl)
	w.WriteString("<tmx version=\"1.4\">\n")
	if _, err := doc.WriteTo(w); err != nil {
		return nil, err
	}
	if _, err := w.WriteString("\n<body>\n"); err != nil {
		return nil, err
	}
	return &tmxWriter{w: w, src: src, trg: trg}, nil
}

func (t *tmxWriter) BeginGroup(string, string) error { return nil }

func (t *tmxWriter) WritePair(p *bitext.Pair) error {
	doc := etree.NewDocument()
	tu := doc.CreateElement("tu")
	for _, side := range []struct{ lang, text string }{{t.src, p.SourceText}, {t.trg, p.TargetText}} {
		tuv := tu.CreateElement("tuv")
		tuv.CreateAttr("xml:lang", side.lang)
		tuv.CreateElement("seg").SetText(side.text)
	}
	doc.Indent(2)
	_, err := doc.WriteTo(t.w)
	return err
}

func (t *tmxWriter) EndGroup() error { return nil }

func (t *tmxWriter) Close() error {
	if _, err := t.w.WriteString("</body>\n</tmx>\n"); err != nil {
		return err
	}
	return t.w.Flush()
}

// linksWriter writes accepted links back out as a cesAlign document, one
// linkGrp per document pair.
type linksWriter struct {
	w   *bufio.Writer
	doc *etree.Document
	grp *etree.Element
}

func newLinksWriter(w *bufio.Writer) (*linksWriter, error) {
	w.WriteString(xmlDecl)
	w.WriteString(`<!DOCTYPE cesAlign PUBLIC "-//CES//DTD XML cesAlign//EN" "">` + "\n")
	if _, err := w.WriteString("<cesAlign version=\"1.0\">\n"); err != nil {
		return nil, err
	}
	return &linksWriter{w: w}, nil
}

func (l *linksWriter) BeginGroup(fromDoc, toDoc string) error {
	l.doc = etree.NewDocument()
	l.grp = l.doc.CreateElement("linkGrp")
	l.grp.CreateAttr("targType", "s")
	l.grp.CreateAttr("fromDoc", fromDoc)
	l.grp.CreateAttr("toDoc", toDoc)
	return nil
}

func (l *linksWriter) WritePair(p *bitext.Pair) error {
	if l.grp == nil {
		return fmt.Errorf("links output: pair outside a group")
	}
	link := l.grp.CreateElement("link")
	for _, k := range slices.Sorted(maps.Keys(p.LinkAttrs)) {
		link.CreateAttr(k, p.LinkAttrs[k])
	}
	link.CreateAttr("xtargets", strings.Join(p.SourceIDs, " ")+";"+strings.Join(p.TargetIDs, " "))
	return nil
}

func (l *linksWriter) EndGroup() error {
	if l.doc == nil {
		return nil
	}
	l.doc.Indent(1)
	_, err := l.doc.WriteTo(l.w)
	l.doc, l.grp = nil, nil
	return err
}

func (l *linksWriter) Close() error {
	if _, err := l.w.WriteString("</cesAlign>\n"); err != nil {
		return err
	}
	return l.w.Flush()
}
