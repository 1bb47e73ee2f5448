package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/dgallion1/alignread/internal/config"
	"github.com/dgallion1/alignread/internal/output"
	"github.com/dgallion1/alignread/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type readFlags struct {
	files pipeline.Files
	write []string

	preprocess       string
	fast             bool
	srcRange         string
	trgRange         string
	attribute        string
	threshold        float64
	rejectMissing    bool
	leaveOut         bool
	maximum          int
	writeMode        string
	srcLang          string
	trgLang          string
	printAnnotations bool
	srcAnnotations   []string
	trgAnnotations   []string
	delimiter        string
}

func readCmd(g *globalFlags) *cobra.Command {
	var f readFlags

	c := &cobra.Command{
		Use:   "read",
		Short: "Read sentence pairs from an alignment file and its documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if g.config != "" {
				var err error
				if cfg, err = config.LoadFile(g.config, cfg); err != nil {
					return err
				}
			}
			e := cfg.Extract
			f.apply(cmd.Flags(), &e)
			if err := e.Validate(); err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), g.debug)
			return runRead(cmd, f, e, log)
		},
	}

	fl := c.Flags()
	fl.StringVarP(&f.files.Alignment, "alignment", "a", "", "alignment file (.xml or .xml.gz)")
	fl.StringVar(&f.files.SrcArchive, "src-archive", "", "zip archive with source documents")
	fl.StringVar(&f.files.TrgArchive, "trg-archive", "", "zip archive with target documents")
	fl.StringVar(&f.files.SrcDir, "src-dir", "", "directory with source documents")
	fl.StringVar(&f.files.TrgDir, "trg-dir", "", "directory with target documents")
	fl.StringSliceVarP(&f.write, "write", "w", nil, "output file; moses accepts a source and a target file")

	fl.StringVarP(&f.preprocess, "preprocess", "p", "xml", "document form: xml|raw|raw-time|parsed")
	fl.BoolVarP(&f.fast, "fast", "f", false, "stream documents instead of loading the linked sentences")
	fl.StringVarP(&f.srcRange, "src-range", "S", "all", "accepted number of source sentences per link (N or N-M)")
	fl.StringVarP(&f.trgRange, "trg-range", "T", "all", "accepted number of target sentences per link (N or N-M)")
	fl.StringVar(&f.attribute, "attribute", "", "numeric link attribute to filter on")
	fl.Float64Var(&f.threshold, "threshold", 0, "minimum value of --attribute")
	fl.BoolVar(&f.rejectMissing, "reject-missing-attribute", false, "reject links without --attribute")
	fl.BoolVar(&f.leaveOut, "leave-non-alignments-out", false, "skip links with an empty side")
	fl.IntVarP(&f.maximum, "maximum", "m", 0, "stop after this many pairs (0 for all)")
	fl.StringVarP(&f.writeMode, "write-mode", "W", "normal", "output format: normal|moses|tmx|links")
	fl.StringVar(&f.srcLang, "src-lang", "", "source language for tmx output")
	fl.StringVar(&f.trgLang, "trg-lang", "", "target language for tmx output")
	fl.BoolVar(&f.printAnnotations, "print-annotations", false, "print token annotations")
	fl.StringSliceVar(&f.srcAnnotations, "source-annotations", nil, "source token attributes to print")
	fl.StringSliceVar(&f.trgAnnotations, "target-annotations", nil, "target token attributes to print")
	fl.StringVar(&f.delimiter, "change-annotation-delimiter", "|", "delimiter between a token and its annotations")

	_ = c.MarkFlagRequired("alignment")
	return c
}

// apply overrides e with every flag given on the command line. Flags left
// unset keep the environment or config file value.
func (f readFlags) apply(fs *pflag.FlagSet, e *config.Extract) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("preprocess", func() { e.Preprocess = f.preprocess })
	set("fast", func() { e.Fast = f.fast })
	set("src-range", func() { e.SrcRange = f.srcRange })
	set("trg-range", func() { e.TrgRange = f.trgRange })
	set("attribute", func() { e.Attribute = f.attribute })
	set("threshold", func() { e.Threshold = f.threshold })
	set("reject-missing-attribute", func() { e.RejectMissingAttribute = f.rejectMissing })
	set("leave-non-alignments-out", func() { e.LeaveNonAlignmentsOut = f.leaveOut })
	set("maximum", func() { e.Maximum = f.maximum })
	set("write-mode", func() { e.WriteMode = f.writeMode })
	set("src-lang", func() { e.SrcLang = f.srcLang })
	set("trg-lang", func() { e.TrgLang = f.trgLang })
	set("print-annotations", func() { e.PrintAnnotations = f.printAnnotations })
	set("source-annotations", func() { e.SourceAnnotations = f.srcAnnotations })
	set("target-annotations", func() { e.TargetAnnotations = f.trgAnnotations })
	set("change-annotation-delimiter", func() { e.AnnotationDelimiter = f.delimiter })
	e.ApplyDefaults()
}

func runRead(cmd *cobra.Command, f readFlags, e config.Extract, log *slog.Logger) (err error) {
	outs, closeOuts, err := openOutputs(cmd.OutOrStdout(), f.write, e.WriteMode)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeOuts(); closeErr != nil && err == nil {
			err = fmt.Errorf("close output: %w", closeErr)
		}
	}()

	opts := output.Options{SourceLang: e.SrcLang, TargetLang: e.TrgLang}
	if len(outs) == 2 {
		opts.Target = outs[1]
	}
	w, err := output.New(e.WriteMode, outs[0], opts)
	if err != nil {
		return err
	}

	runOpts, err := pipeline.OptionsFor(e)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	runOpts.OnGroup = func(r pipeline.GroupReport) {
		if r.Skipped {
			warnLabel.Fprint(stderr, "skipped: ")
			fmt.Fprintf(stderr, "%s -> %s: %v\n", r.FromDoc, r.ToDoc, r.Err)
		}
	}

	sum, err := pipeline.Execute(cmd.Context(), log, f.files, w, runOpts)
	if closeErr := w.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("write output: %w", closeErr)
	}
	if err != nil {
		return err
	}
	if err := closeOuts(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	printSummary(stderr, sum)
	return nil
}

// openOutputs returns stdout when no file is named, or the named files.
// Two files are only accepted for moses output. The returned close function
// closes the files once and reports their close errors.
func openOutputs(stdout io.Writer, paths []string, writeMode string) ([]io.Writer, func() error, error) {
	switch {
	case len(paths) == 0:
		return []io.Writer{stdout}, func() error { return nil }, nil
	case len(paths) > 2:
		return nil, nil, fmt.Errorf("--write takes at most two files, got %d", len(paths))
	case len(paths) == 2 && writeMode != "moses":
		return nil, nil, errors.New("two --write files need --write-mode moses")
	}

	var files []*os.File
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		files = nil
		return errors.Join(errs...)
	}
	outs := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		f, err := os.Create(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create output: %w", err)
		}
		files = append(files, f)
		outs = append(outs, f)
	}
	return outs, closeAll, nil
}

// printSummary reports the run totals with grouped digits.
func printSummary(w io.Writer, sum pipeline.Summary) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "%d pairs from %d document pairs", sum.Pairs, sum.Groups)
	if sum.SkippedGroups > 0 {
		p.Fprintf(w, ", %d skipped", sum.SkippedGroups)
	}
	p.Fprintf(w, " (%d of %d links accepted)\n", sum.Accepted, sum.Links)

	names := make([]string, 0, len(sum.Rejected))
	for name := range sum.Rejected {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		p.Fprintf(w, "  rejected by %s: %d\n", name, sum.Rejected[name])
	}
}
