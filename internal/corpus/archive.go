package corpus

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// Archive opens sentence documents stored in a zip file. Documents are
// looked up by the names used in linkGrp fromDoc and toDoc attributes.
type Archive struct {
	path   string
	prefer string
	zr     *zip.ReadCloser
	byName map[string]*zip.File
	// bySuffix maps every trailing path of an entry to the entries ending in it.
	bySuffix map[string][]*zip.File
}

// OpenArchive opens the zip file at path. When several entries end in a
// requested name, the one below a directory called prefer is chosen; prefer
// is normally the preprocessing directory such as xml or raw.
func OpenArchive(path, prefer string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	a := &Archive{
		path:     path,
		prefer:   strings.Trim(prefer, "/"),
		zr:       zr,
		byName:   make(map[string]*zip.File, len(zr.File)),
		bySuffix: make(map[string][]*zip.File),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		a.byName[f.Name] = f
		for i := 0; i < len(f.Name); i++ {
			if f.Name[i] == '/' {
				suffix := f.Name[i+1:]
				a.bySuffix[suffix] = append(a.bySuffix[suffix], f)
			}
		}
	}
	return a, nil
}

// Len returns the number of documents in the archive.
func (a *Archive) Len() int {
	return len(a.byName)
}

// Open returns the document called name and its uncompressed size, or -1
// when the entry is itself gzipped. The exact entry name is tried first,
// then the name without .gz, then a unique entry ending in either.
func (a *Archive) Open(name string) (io.ReadCloser, int64, error) {
	f, err := a.lookup(name)
	if err != nil {
		return nil, 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, 0, fmt.Errorf("open %s in %s: %w", f.Name, a.path, err)
	}
	doc, err := wrap(rc, f.Name, rc)
	if err != nil {
		rc.Close()
		return nil, 0, err
	}
	size := int64(f.UncompressedSize64)
	if strings.HasSuffix(f.Name, ".gz") {
		size = -1
	}
	return doc, size, nil
}

func (a *Archive) lookup(name string) (*zip.File, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	candidates := []string{name}
	if trimmed := strings.TrimSuffix(name, ".gz"); trimmed != name {
		candidates = append(candidates, trimmed)
	}

	for _, c := range candidates {
		if f, ok := a.byName[c]; ok {
			return f, nil
		}
	}
	for _, c := range candidates {
		switch matches := a.bySuffix[c]; len(matches) {
		case 0:
		case 1:
			return matches[0], nil
		default:
			if f := a.preferred(matches); f != nil {
				return f, nil
			}
			return nil, fmt.Errorf("%s: %d entries in %s match", name, len(matches), a.path)
		}
	}
	return nil, fmt.Errorf("%s not in %s: %w", name, a.path, os.ErrNotExist)
}

// preferred returns the only match with a prefer path segment, or nil.
func (a *Archive) preferred(matches []*zip.File) *zip.File {
	if a.prefer == "" {
		return nil
	}
	var found *zip.File
	for _, f := range matches {
		if !slices.Contains(strings.Split(path.Dir(f.Name), "/"), a.prefer) {
			continue
		}
		if found != nil {
			return nil
		}
		found = f
	}
	return found
}

// Close closes the zip file.
func (a *Archive) Close() error {
	return a.zr.Close()
}

// Dir opens sentence documents below Root. Names not found directly below
// Root are looked up below Root/Prefer, the preprocessing directory of a
// corpus laid out as <prefer>/<lang>/<doc>.
type Dir struct {
	Root   string
	Prefer string
}

// Open returns the document called name and its size, or -1 for gzipped
// files. A name ending in .gz also matches the uncompressed file, and a
// plain name also matches its .gz form.
func (d Dir) Open(name string) (io.ReadCloser, int64, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return nil, 0, fmt.Errorf("document name %q escapes %s", name, d.Root)
	}
	var candidates []string
	roots := []string{d.Root}
	if d.Prefer != "" && filepath.IsLocal(d.Prefer) {
		roots = append(roots, filepath.Join(d.Root, d.Prefer))
	}
	for _, root := range roots {
		base := filepath.Join(root, filepath.FromSlash(name))
		candidates = append(candidates, base)
		if trimmed := strings.TrimSuffix(base, ".gz"); trimmed != base {
			candidates = append(candidates, trimmed)
		} else {
			candidates = append(candidates, base+".gz")
		}
	}

	for _, file := range candidates {
		info, err := os.Stat(file)
		if err != nil || info.IsDir() {
			continue
		}
		rc, err := OpenFile(file)
		if err != nil {
			return nil, 0, err
		}
		size := info.Size()
		if strings.HasSuffix(file, ".gz") {
			size = -1
		}
		return rc, size, nil
	}
	return nil, 0, fmt.Errorf("%s not in %s: %w", name, d.Root, os.ErrNotExist)
}
