package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/dgallion1/alignread/internal/config"
	"github.com/dgallion1/alignread/internal/corpus"
	"github.com/dgallion1/alignread/internal/docindex"
	"github.com/dgallion1/alignread/internal/filter"
	"github.com/dgallion1/alignread/internal/parser"
)

// Files names the inputs of one run. Each side is read from a zip archive or
// from a directory; the archive wins when both are set.
type Files struct {
	Alignment  string `json:"alignment"`
	SrcArchive string `json:"src_archive,omitempty"`
	TrgArchive string `json:"trg_archive,omitempty"`
	SrcDir     string `json:"src_dir,omitempty"`
	TrgDir     string `json:"trg_dir,omitempty"`
}

// Within resolves every path of f below root. Paths that are absolute or
// climb out of root are rejected.
func (f Files) Within(root string) (Files, error) {
	if f.Alignment == "" {
		return Files{}, errors.New("alignment is required")
	}
	out := f
	for _, p := range []*string{&out.Alignment, &out.SrcArchive, &out.TrgArchive, &out.SrcDir, &out.TrgDir} {
		if *p == "" {
			continue
		}
		if !filepath.IsLocal(*p) {
			return Files{}, fmt.Errorf("path %q escapes the corpus root", *p)
		}
		*p = filepath.Join(root, *p)
	}
	return out, nil
}

// openers opens both sides. prefer names the preprocessing directory used
// to pick between documents of the same name.
func (f Files) openers(prefer string) (src, trg DocumentOpener, closeFn func(), err error) {
	var closers []io.Closer
	closeFn = func() {
		for _, c := range closers {
			c.Close()
		}
	}
	side := func(name, archive, dir string) (DocumentOpener, error) {
		switch {
		case archive != "":
			a, err := corpus.OpenArchive(archive, prefer)
			if err != nil {
				return nil, fmt.Errorf("%s side: %w", name, err)
			}
			closers = append(closers, a)
			return a, nil
		case dir != "":
			return corpus.Dir{Root: dir, Prefer: prefer}, nil
		}
		return nil, fmt.Errorf("no %s archive or directory", name)
	}
	if src, err = side("source", f.SrcArchive, f.SrcDir); err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	if trg, err = side("target", f.TrgArchive, f.TrgDir); err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return src, trg, closeFn, nil
}

// OptionsFor turns extraction settings into driver options. Hooks and
// stats are left for the caller.
func OptionsFor(e config.Extract) (Options, error) {
	e.ApplyDefaults()
	mode, err := parser.ParseMode(e.Preprocess)
	if err != nil {
		return Options{}, err
	}
	chain, err := filter.Build(filter.Spec{
		SourceRange:   e.SrcRange,
		TargetRange:   e.TrgRange,
		Attribute:     e.Attribute,
		Threshold:     e.Threshold,
		RejectMissing: e.RejectMissingAttribute,
		NonEmpty:      e.LeaveNonAlignmentsOut,
	})
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		Mode:      mode,
		Chain:     chain,
		MaxPairs:  e.Maximum,
		LinksOnly: e.WriteMode == "links",
	}
	if e.Fast {
		opts.Strategy = docindex.StrategyStreaming
	}
	if e.PrintAnnotations {
		opts.SourceAnnotations = annotations(mode, e.SourceAnnotations, e.AnnotationDelimiter)
		opts.TargetAnnotations = annotations(mode, e.TargetAnnotations, e.AnnotationDelimiter)
	}
	return opts, nil
}

func annotations(mode parser.Mode, attrs []string, delim string) parser.Annotations {
	a := parser.DefaultAnnotations(mode)
	if len(attrs) > 0 {
		a.Attrs = attrs
	}
	if delim != "" {
		a.Delimiter = delim
	}
	return a
}

// Execute opens the files of a run and drives the extraction into sink.
// Sentence documents are not opened for links-only runs.
func Execute(ctx context.Context, log *slog.Logger, files Files, sink Sink, opts Options) (Summary, error) {
	var src, trg DocumentOpener
	if !opts.LinksOnly {
		var closeFn func()
		var err error
		src, trg, closeFn, err = files.openers(opts.Mode.Directory())
		if err != nil {
			return Summary{}, err
		}
		defer closeFn()
	}

	rc, err := corpus.OpenFile(files.Alignment)
	if err != nil {
		return Summary{}, fmt.Errorf("open alignment: %w", err)
	}

	log.Info("extraction started",
		"alignment", files.Alignment,
		"mode", opts.Mode.String(),
		"strategy", opts.Strategy.String(),
		"filters", len(opts.Chain))
	return NewDriver(src, trg, sink, log, opts).Run(ctx, rc, filepath.Base(files.Alignment))
}
