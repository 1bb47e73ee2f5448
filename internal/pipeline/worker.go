package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/alignread/internal/output"
)

// Worker runs extraction jobs against files below the corpus root.
type Worker struct {
	corpusRoot string
	outputDir  string
	stats      *PairStats
	log        *slog.Logger
}

func NewWorker(corpusRoot, outputDir string, stats *PairStats, log *slog.Logger) *Worker {
	return &Worker{
		corpusRoot: corpusRoot,
		outputDir:  outputDir,
		stats:      stats,
		log:        log,
	}
}

// Process runs one job to completion and records the outcome on the job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID)
	req := job.Request
	req.Extract.ApplyDefaults()

	job.SetStatus(StatusOpening, "opening")
	files, err := req.Files.Within(w.corpusRoot)
	if err != nil {
		w.fail(log, job, "opening", err)
		return
	}
	opts, err := OptionsFor(req.Extract)
	if err != nil {
		w.fail(log, job, "opening", err)
		return
	}
	opts.OnGroup = job.RecordGroup
	opts.Stats = w.stats

	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		w.fail(log, job, "opening", fmt.Errorf("create output dir: %w", err))
		return
	}
	path := filepath.Join(w.outputDir, job.ID+output.Extension(req.WriteMode))
	f, err := os.Create(path)
	if err != nil {
		w.fail(log, job, "opening", fmt.Errorf("create output: %w", err))
		return
	}
	defer f.Close()

	out, err := output.New(req.WriteMode, f, output.Options{
		SourceLang: req.SrcLang,
		TargetLang: req.TrgLang,
	})
	if err != nil {
		w.fail(log, job, "opening", err)
		return
	}
	job.SetOutputPath(path)

	job.SetStatus(StatusExtracting, "extracting")
	sum, err := Execute(ctx, log, files, out, opts)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("write output: %w", closeErr)
	}
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close output: %w", closeErr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = errors.New("cancelled")
		}
		w.fail(log, job, "extracting", err)
		return
	}

	job.Finish(sum)
	log.Info("extraction complete",
		"groups", sum.Groups,
		"skipped_groups", sum.SkippedGroups,
		"pairs", sum.Pairs,
		"output", path)
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) {
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(err.Error())
	job.SetStatus(StatusFailed, phase)
}
