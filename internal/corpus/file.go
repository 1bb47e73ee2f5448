// Package corpus opens alignment files and sentence documents from disk,
// from directories and from zip archives.
package corpus

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"golang.org/x/net/html/charset"
)

// declSniff bounds how far into a document the XML declaration is looked for.
const declSniff = 1024

// multiCloser reads from the outermost decoder and closes every layer.
type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var errs []error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenFile opens an alignment file or sentence document. Files ending in .gz
// are decompressed, and text in a non-UTF-8 encoding named by the XML
// declaration is converted to UTF-8.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc, err := wrap(f, path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rc, nil
}

// wrap layers decompression and decoding over r. closer releases r.
func wrap(r io.Reader, name string, closer io.Closer) (io.ReadCloser, error) {
	mc := &multiCloser{Reader: r, closers: []io.Closer{closer}}
	if strings.HasSuffix(name, ".gz") {
		zr, err := pgzip.NewReader(bufio.NewReader(r))
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", name, err)
		}
		mc.Reader = zr
		mc.closers = append(mc.closers, zr)
	}
	decoded, err := Decode(mc.Reader)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	mc.Reader = decoded
	return mc, nil
}

// Decode returns a UTF-8 reader for an XML stream. The encoding is taken
// from the XML declaration; UTF-8 and undeclared streams pass through.
func Decode(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(declSniff)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}
	label := declaredEncoding(head)
	switch strings.ToLower(label) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return br, nil
	}
	return charset.NewReaderLabel(label, br)
}

func declaredEncoding(head []byte) string {
	head = bytes.TrimPrefix(head, []byte("\xEF\xBB\xBF"))
	if !bytes.HasPrefix(head, []byte("<?xml")) {
		return ""
	}
	end := bytes.Index(head, []byte("?>"))
	if end < 0 {
		return ""
	}
	decl := head[:end]
	i := bytes.Index(decl, []byte("encoding"))
	if i < 0 {
		return ""
	}
	rest := bytes.TrimLeft(decl[i+len("encoding"):], " \t\r\n")
	if len(rest) == 0 || rest[0] != '=' {
		return ""
	}
	rest = bytes.TrimLeft(rest[1:], " \t\r\n")
	if len(rest) == 0 || (rest[0] != '"' && rest[0] != '\'') {
		return ""
	}
	q := rest[0]
	j := bytes.IndexByte(rest[1:], q)
	if j < 0 {
		return ""
	}
	return string(rest[1 : 1+j])
}
