package tagstream

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// maxEntityLen bounds the distance between '&' and ';' of a reference.
const maxEntityLen = 32

var (
	commentOpen  = []byte("<!--")
	commentClose = []byte("-->")
	cdataOpen    = []byte("<![CDATA[")
	cdataClose   = []byte("]]>")
	piClose      = []byte("?>")
)

// scan consumes every complete token in s.buf. An incomplete token at the
// end of the buffer is left for the next feed, unless final is set, in which
// case it is an error.
func (s *Stream) scan(final bool) error {
	for len(s.buf) > 0 {
		if s.buf[0] != '<' {
			n := bytes.IndexByte(s.buf, '<')
			if n < 0 {
				n = len(s.buf)
				if !final {
					n = textCut(s.buf)
				}
				if n == 0 {
					return nil
				}
			}
			if err := s.text(s.buf[:n], false); err != nil {
				return err
			}
			s.advance(n)
			continue
		}

		n, err := s.markup()
		if err != nil {
			return err
		}
		if n == 0 {
			if final {
				return s.fail("unclosed token at end of input")
			}
			return nil
		}
		s.advance(n)
	}
	return nil
}

// textCut returns how much of an all-text buffer can be consumed without
// splitting an entity reference.
func textCut(b []byte) int {
	amp := bytes.LastIndexByte(b, '&')
	if amp < 0 || bytes.IndexByte(b[amp:], ';') >= 0 || len(b)-amp >= maxEntityLen {
		return len(b)
	}
	return amp
}

// markup consumes one markup token starting at s.buf[0] == '<' and returns
// its length, or 0 when the buffer does not yet hold the whole token.
func (s *Stream) markup() (int, error) {
	b := s.buf
	if len(b) < 2 {
		return 0, nil
	}

	switch b[1] {
	case '!':
		if bytes.HasPrefix(b, commentOpen) {
			end := bytes.Index(b[len(commentOpen):], commentClose)
			if end < 0 {
				return 0, nil
			}
			return len(commentOpen) + end + len(commentClose), nil
		}
		if bytes.HasPrefix(b, cdataOpen) {
			end := bytes.Index(b[len(cdataOpen):], cdataClose)
			if end < 0 {
				return 0, nil
			}
			body := b[len(cdataOpen) : len(cdataOpen)+end]
			if err := s.text(body, true); err != nil {
				return 0, err
			}
			return len(cdataOpen) + end + len(cdataClose), nil
		}
		if isPrefixOf(b, commentOpen) || isPrefixOf(b, cdataOpen) {
			return 0, nil
		}
		return declarationEnd(b), nil

	case '?':
		end := bytes.Index(b[2:], piClose)
		if end < 0 {
			return 0, nil
		}
		return 2 + end + len(piClose), nil

	case '/':
		end := bytes.IndexByte(b, '>')
		if end < 0 {
			return 0, nil
		}
		name := string(bytes.TrimRight(b[2:end], " \t\r\n"))
		if !validName(name) {
			return 0, s.fail("invalid end tag name %q", name)
		}
		if err := s.endTag(name); err != nil {
			return 0, err
		}
		return end + 1, nil
	}

	end := tagEnd(b)
	if end < 0 {
		return 0, nil
	}
	content := b[1:end]
	empty := len(content) > 0 && content[len(content)-1] == '/'
	if empty {
		content = content[:len(content)-1]
	}
	name, attrs, reason := parseStartTag(content)
	if reason != "" {
		return 0, s.fail("%s", reason)
	}
	if err := s.startTag(name, attrs, empty); err != nil {
		return 0, err
	}
	return end + 1, nil
}

// tagEnd returns the index of the '>' closing a start tag, skipping quoted
// attribute values, or -1.
func tagEnd(b []byte) int {
	var quote byte
	for i := 1; i < len(b); i++ {
		c := b[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

// declarationEnd returns the length of a <!DOCTYPE ...> declaration,
// including an internal subset in brackets, or 0 if it is incomplete.
func declarationEnd(b []byte) int {
	var quote byte
	depth := 0
	for i := 2; i < len(b); i++ {
		c := b[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == '>' && depth <= 0:
			return i + 1
		}
	}
	return 0
}

func isPrefixOf(b, full []byte) bool {
	return len(b) < len(full) && bytes.HasPrefix(full, b)
}

// parseStartTag splits the inside of a start tag into its name and
// attributes. A non-empty reason reports malformed input.
func parseStartTag(content []byte) (string, map[string]string, string) {
	i := 0
	for i < len(content) && !isSpace(content[i]) {
		i++
	}
	name := string(content[:i])
	if !validName(name) {
		return "", nil, fmt.Sprintf("invalid tag name %q", name)
	}

	var attrs map[string]string
	for {
		for i < len(content) && isSpace(content[i]) {
			i++
		}
		if i == len(content) {
			return name, attrs, ""
		}

		start := i
		for i < len(content) && content[i] != '=' && !isSpace(content[i]) {
			i++
		}
		key := string(content[start:i])
		if !validName(key) {
			return "", nil, fmt.Sprintf("invalid attribute name %q in <%s>", key, name)
		}
		for i < len(content) && isSpace(content[i]) {
			i++
		}
		if i == len(content) || content[i] != '=' {
			return "", nil, fmt.Sprintf("attribute %q in <%s> has no value", key, name)
		}
		i++
		for i < len(content) && isSpace(content[i]) {
			i++
		}
		if i == len(content) || (content[i] != '"' && content[i] != '\'') {
			return "", nil, fmt.Sprintf("unquoted value for attribute %q in <%s>", key, name)
		}
		quote := content[i]
		i++
		end := bytes.IndexByte(content[i:], quote)
		if end < 0 {
			return "", nil, fmt.Sprintf("unterminated value for attribute %q in <%s>", key, name)
		}
		raw := content[i : i+end]
		i += end + 1
		if bytes.IndexByte(raw, '<') >= 0 {
			return "", nil, fmt.Sprintf("'<' in value of attribute %q in <%s>", key, name)
		}
		value, reason := decodeEntities(nil, normalizeAttr(raw))
		if reason != "" {
			return "", nil, reason
		}
		if attrs == nil {
			attrs = make(map[string]string, 4)
		}
		if _, dup := attrs[key]; dup {
			return "", nil, fmt.Sprintf("duplicate attribute %q in <%s>", key, name)
		}
		attrs[key] = string(value)

		if i < len(content) && !isSpace(content[i]) {
			return "", nil, fmt.Sprintf("missing whitespace after attribute %q in <%s>", key, name)
		}
	}
}

// normalizeAttr maps literal tab, newline and carriage return to spaces.
func normalizeAttr(raw []byte) []byte {
	if bytes.IndexAny(raw, "\t\r\n") < 0 {
		return raw
	}
	out := make([]byte, len(raw))
	for i, c := range raw {
		if c == '\t' || c == '\r' || c == '\n' {
			c = ' '
		}
		out[i] = c
	}
	return out
}

// decodeEntities appends src to dst with entity and character references
// replaced.
func decodeEntities(dst, src []byte) ([]byte, string) {
	for {
		amp := bytes.IndexByte(src, '&')
		if amp < 0 {
			return append(dst, src...), ""
		}
		dst = append(dst, src[:amp]...)
		src = src[amp:]
		semi := bytes.IndexByte(src, ';')
		if semi < 0 || semi > maxEntityLen {
			return dst, "not well-formed: bare '&'"
		}
		r, reason := resolveEntity(string(src[1:semi]))
		if reason != "" {
			return dst, reason
		}
		dst = utf8.AppendRune(dst, r)
		src = src[semi+1:]
	}
}

// checkEntities validates references in src without decoding it.
func checkEntities(src []byte) string {
	for {
		amp := bytes.IndexByte(src, '&')
		if amp < 0 {
			return ""
		}
		src = src[amp:]
		semi := bytes.IndexByte(src, ';')
		if semi < 0 || semi > maxEntityLen {
			return "not well-formed: bare '&'"
		}
		if _, reason := resolveEntity(string(src[1:semi])); reason != "" {
			return reason
		}
		src = src[semi+1:]
	}
}

func resolveEntity(name string) (rune, string) {
	switch name {
	case "lt":
		return '<', ""
	case "gt":
		return '>', ""
	case "amp":
		return '&', ""
	case "quot":
		return '"', ""
	case "apos":
		return '\'', ""
	}
	if len(name) < 2 || name[0] != '#' {
		return 0, fmt.Sprintf("undefined entity &%s;", name)
	}

	var n uint64
	var err error
	if name[1] == 'x' {
		n, err = strconv.ParseUint(name[2:], 16, 32)
	} else {
		n, err = strconv.ParseUint(name[1:], 10, 32)
	}
	r := rune(n)
	if err != nil || n == 0 || n > utf8.MaxRune || !utf8.ValidRune(r) {
		return 0, fmt.Sprintf("reference to invalid character &%s;", name)
	}
	return r, ""
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	switch c := name[0]; {
	case c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return false
	}
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '<', '>', '&', '"', '\'', '=', '/', ' ', '\t', '\r', '\n':
			return false
		}
	}
	return true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isBlank(b []byte) bool {
	for _, c := range b {
		if !isSpace(c) {
			return false
		}
	}
	return true
}
