package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgallion1/alignread/internal/alignment"
	"github.com/dgallion1/alignread/internal/bitext"
	"github.com/dgallion1/alignread/internal/docindex"
	"github.com/dgallion1/alignread/internal/filter"
	"github.com/dgallion1/alignread/internal/parser"
	"github.com/pbnjay/memory"
)

// DocumentOpener opens a sentence document by the name used in fromDoc or
// toDoc. size is the uncompressed size when known, or -1.
type DocumentOpener interface {
	Open(name string) (rc io.ReadCloser, size int64, err error)
}

// Sink receives the extracted pairs, one document pair at a time.
type Sink interface {
	BeginGroup(fromDoc, toDoc string) error
	WritePair(p *bitext.Pair) error
	EndGroup() error
}

// GroupReport describes one finished document pair.
type GroupReport struct {
	FromDoc  string
	ToDoc    string
	Links    int
	Accepted int
	Pairs    int
	Skipped  bool
	Err      error
}

// Options controls an extraction run.
type Options struct {
	Strategy          docindex.Strategy
	Mode              parser.Mode
	SourceAnnotations parser.Annotations
	TargetAnnotations parser.Annotations
	Chain             filter.Chain

	// MaxPairs stops the run after that many pairs. Zero means no limit.
	MaxPairs int
	// LinksOnly writes accepted links without opening sentence documents.
	LinksOnly bool

	// OnGroup, when set, is called after every document pair with links.
	OnGroup func(GroupReport)
	// Stats, when set, records per-group timings.
	Stats *PairStats
}

// Summary counts what a run did.
type Summary struct {
	Groups        int            `json:"groups"`
	SkippedGroups int            `json:"skipped_groups"`
	Links         int            `json:"links"`
	Accepted      int            `json:"accepted"`
	Rejected      map[string]int `json:"rejected"`
	Pairs         int            `json:"pairs"`
}

// Driver extracts sentence pairs from an alignment stream, one document pair
// at a time. At most one document per side is open at any time.
type Driver struct {
	src  DocumentOpener
	trg  DocumentOpener
	sink Sink
	log  *slog.Logger
	opts Options

	// Buffered documents larger than this are reported.
	largeDoc uint64
}

func NewDriver(src, trg DocumentOpener, sink Sink, log *slog.Logger, opts Options) *Driver {
	return &Driver{
		src:      src,
		trg:      trg,
		sink:     sink,
		log:      log,
		opts:     opts,
		largeDoc: memory.TotalMemory() / 4,
	}
}

// Run processes the alignment stream r until it ends, the context is
// cancelled, or MaxPairs is reached. Malformed alignments and sink failures
// abort the run; failures inside one document pair skip that pair.
// Run takes ownership of r and closes it on return when it is an io.Closer.
func (d *Driver) Run(ctx context.Context, r io.Reader, name string) (Summary, error) {
	sum := Summary{Rejected: make(map[string]int)}
	idx := alignment.NewIndex(r, name)
	defer idx.Close()

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		grp, err := idx.CollectLinks()
		if err == io.EOF {
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("read alignment: %w", err)
		}
		sum.Groups++
		sum.Links += len(grp.Links)

		accepted := d.accept(grp, &sum)
		if len(accepted) == 0 {
			continue
		}

		log := d.log.With("from_doc", grp.FromDoc, "to_doc", grp.ToDoc)
		start := time.Now()
		pairs, done, err := d.group(ctx, grp, accepted, &sum)
		report := GroupReport{
			FromDoc:  grp.FromDoc,
			ToDoc:    grp.ToDoc,
			Links:    len(grp.Links),
			Accepted: len(accepted),
			Pairs:    pairs,
		}
		if err != nil {
			if !IsPairLocal(err) {
				return sum, err
			}
			sum.SkippedGroups++
			report.Skipped = true
			report.Err = err
			log.Warn("skipping document pair", "error", err, "pairs_written", pairs)
		} else {
			log.Debug("document pair done", "accepted", len(accepted), "pairs", pairs)
		}
		if d.opts.Stats != nil {
			d.opts.Stats.Record(time.Since(start), pairs)
		}
		if d.opts.OnGroup != nil {
			d.opts.OnGroup(report)
		}
		if done {
			return sum, nil
		}
	}
}

func (d *Driver) accept(grp *bitext.LinkGroup, sum *Summary) []*bitext.Link {
	var accepted []*bitext.Link
	for i := range grp.Links {
		link := &grp.Links[i]
		if r, rejected := d.opts.Chain.Reject(link); rejected {
			sum.Rejected[r.Filter]++
			continue
		}
		accepted = append(accepted, link)
	}
	sum.Accepted += len(accepted)
	return accepted
}

// group writes the accepted links of one document pair. done reports that
// MaxPairs was reached.
func (d *Driver) group(ctx context.Context, grp *bitext.LinkGroup, links []*bitext.Link, sum *Summary) (pairs int, done bool, err error) {
	var src, trg docindex.Index
	if !d.opts.LinksOnly {
		src, err = d.openIndex(d.src, grp.FromDoc, grp.SourceIDs, d.opts.SourceAnnotations)
		if err != nil {
			return 0, false, err
		}
		defer src.Close()
		trg, err = d.openIndex(d.trg, grp.ToDoc, grp.TargetIDs, d.opts.TargetAnnotations)
		if err != nil {
			return 0, false, err
		}
		defer trg.Close()
	}

	if err := d.sink.BeginGroup(grp.FromDoc, grp.ToDoc); err != nil {
		return 0, false, fmt.Errorf("write pair: %w", err)
	}
	defer func() {
		if endErr := d.sink.EndGroup(); endErr != nil && err == nil {
			err = fmt.Errorf("write pair: %w", endErr)
		}
	}()

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return pairs, false, err
		}
		p := &bitext.Pair{
			FromDoc:   grp.FromDoc,
			ToDoc:     grp.ToDoc,
			SourceIDs: link.SourceIDs,
			TargetIDs: link.TargetIDs,
			LinkAttrs: link.Attrs,
		}
		if !d.opts.LinksOnly {
			if err := resolveSide(src, grp.FromDoc, link.SourceIDs, &p.SourceText, &p.Source); err != nil {
				return pairs, false, err
			}
			if err := resolveSide(trg, grp.ToDoc, link.TargetIDs, &p.TargetText, &p.Target); err != nil {
				return pairs, false, err
			}
		}
		if err := d.sink.WritePair(p); err != nil {
			return pairs, false, fmt.Errorf("write pair: %w", err)
		}
		pairs++
		sum.Pairs++
		if d.opts.MaxPairs > 0 && sum.Pairs >= d.opts.MaxPairs {
			return pairs, true, nil
		}
	}
	return pairs, false, nil
}

func resolveSide(idx docindex.Index, name string, ids []string, text *string, sents *[]bitext.Sentence) error {
	res, err := idx.Resolve(ids)
	if err != nil {
		return &DocumentError{Document: name, Err: err}
	}
	*text = res.Text
	*sents = res.Sentences
	return nil
}

func (d *Driver) openIndex(opener DocumentOpener, name string, ids map[string]struct{}, ann parser.Annotations) (docindex.Index, error) {
	rc, size, err := opener.Open(name)
	if err != nil {
		return nil, &DocumentError{Document: name, Err: err}
	}

	if d.opts.Strategy == docindex.StrategyStreaming {
		return docindex.NewStreaming(rc, name, d.opts.Mode, ann), nil
	}

	if d.largeDoc > 0 && size > 0 && uint64(size) > d.largeDoc {
		d.log.Warn("large document loaded into memory, consider streaming mode",
			"document", name, "bytes", size, "system_memory", memory.TotalMemory())
	}
	b := docindex.NewBuffered(rc, name, d.opts.Mode, ann)
	if err := b.Load(ids); err != nil {
		b.Close()
		return nil, &DocumentError{Document: name, Err: err}
	}
	return b, nil
}
