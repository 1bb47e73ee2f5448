package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/alignread/internal/config"
	"github.com/dgallion1/alignread/internal/docindex"
	"github.com/dgallion1/alignread/internal/filter"
	"github.com/dgallion1/alignread/internal/parser"
)

// writeCorpus lays the driver fixture out on disk: sentence documents under
// docs/ and the alignment at en-fi.xml.
func writeCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	src, trg := fixture()
	for _, docs := range []map[string]string{src.docs, trg.docs} {
		for name, body := range docs {
			path := filepath.Join(root, "docs", filepath.FromSlash(name))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := os.WriteFile(filepath.Join(root, "en-fi.xml"), []byte(twoGroups), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestFiles_Within(t *testing.T) {
	root := t.TempDir()
	f, err := Files{Alignment: "en-fi.xml", SrcDir: "docs", TrgArchive: "fi/xml.zip"}.Within(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Alignment != filepath.Join(root, "en-fi.xml") {
		t.Errorf("expected alignment below root, got %s", f.Alignment)
	}
	if f.TrgArchive != filepath.Join(root, "fi", "xml.zip") {
		t.Errorf("expected archive below root, got %s", f.TrgArchive)
	}
	if f.SrcArchive != "" || f.TrgDir != "" {
		t.Error("expected empty paths to stay empty")
	}

	bad := []Files{
		{},
		{Alignment: "../en-fi.xml"},
		{Alignment: "/etc/passwd"},
		{Alignment: "en-fi.xml", SrcDir: "docs/../../x"},
	}
	for _, b := range bad {
		if _, err := b.Within(root); err == nil {
			t.Errorf("expected %+v to be rejected", b)
		}
	}
}

func TestOptionsFor(t *testing.T) {
	opts, err := OptionsFor(config.Extract{
		Preprocess:            "parsed",
		Fast:                  true,
		SrcRange:              "1",
		Attribute:             "certainty",
		Threshold:             0.5,
		LeaveNonAlignmentsOut: true,
		Maximum:               10,
		WriteMode:             "links",
		PrintAnnotations:      true,
		TargetAnnotations:     []string{"lemma"},
		AnnotationDelimiter:   "/",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Mode != parser.Parsed {
		t.Errorf("expected parsed mode, got %s", opts.Mode)
	}
	if opts.Strategy != docindex.StrategyStreaming {
		t.Errorf("expected streaming, got %s", opts.Strategy)
	}
	if !opts.LinksOnly || opts.MaxPairs != 10 {
		t.Errorf("expected links only with 10 pairs, got %v and %d", opts.LinksOnly, opts.MaxPairs)
	}
	var names []string
	for _, f := range opts.Chain {
		names = append(names, f.Name())
	}
	if got := strings.Join(names, ","); got != "non-empty,source-range,attribute" {
		t.Errorf("expected non-empty,source-range,attribute, got %s", got)
	}
	if got := strings.Join(opts.SourceAnnotations.Attrs, ","); got != "upos,feats,head,deprel" {
		t.Errorf("expected parsed defaults on the source side, got %s", got)
	}
	if got := strings.Join(opts.TargetAnnotations.Attrs, ","); got != "lemma" {
		t.Errorf("expected lemma on the target side, got %s", got)
	}
	if opts.SourceAnnotations.Delimiter != "/" {
		t.Errorf("expected delimiter /, got %q", opts.SourceAnnotations.Delimiter)
	}
}

func TestOptionsFor_Defaults(t *testing.T) {
	opts, err := OptionsFor(config.Extract{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Mode != parser.Tokenized || opts.Strategy != docindex.StrategyBuffered {
		t.Errorf("expected tokenized buffered, got %s %s", opts.Mode, opts.Strategy)
	}
	if len(opts.Chain) != 0 {
		t.Errorf("expected empty chain, got %d filters", len(opts.Chain))
	}
	if opts.SourceAnnotations.Enabled {
		t.Error("expected annotations off")
	}

	if _, err := OptionsFor(config.Extract{TrgRange: "2-1"}); err == nil {
		t.Error("expected range error")
	}
}

func TestExecute_Dir(t *testing.T) {
	root := writeCorpus(t)
	files, err := Files{Alignment: "en-fi.xml", SrcDir: "docs", TrgDir: "docs"}.Within(root)
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordSink{}
	sum, err := Execute(context.Background(), testLog, files, sink, Options{
		Chain: filter.Chain{filter.NonEmpty{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Groups != 2 || sum.Pairs != 3 {
		t.Errorf("expected 2 groups and 3 pairs, got %d and %d", sum.Groups, sum.Pairs)
	}
	if sum.Rejected["non-empty"] != 1 {
		t.Errorf("expected 1 non-empty rejection, got %v", sum.Rejected)
	}
	if got := sink.texts()[0]; got != "Hello world | Hei maailma" {
		t.Errorf("expected first pair Hello world | Hei maailma, got %q", got)
	}
}

func TestExecute_PreprocessDirectory(t *testing.T) {
	root := t.TempDir()
	src, trg := fixture()
	for _, docs := range []map[string]string{src.docs, trg.docs} {
		for name, body := range docs {
			for sub, text := range map[string]string{"xml": body, "raw": `<document><s id="1">raw</s></document>`} {
				path := filepath.Join(root, "corpus", sub, filepath.FromSlash(name))
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	if err := os.WriteFile(filepath.Join(root, "en-fi.xml"), []byte(twoGroups), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := Files{Alignment: "en-fi.xml", SrcDir: "corpus", TrgDir: "corpus"}.Within(root)
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordSink{}
	if _, err := Execute(context.Background(), testLog, files, sink, Options{Mode: parser.Tokenized}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sink.texts()[0]; got != "Hello world | Hei maailma" {
		t.Errorf("expected the xml documents to be read, got %q", got)
	}
}

func TestExecute_MissingSide(t *testing.T) {
	root := writeCorpus(t)
	files, _ := Files{Alignment: "en-fi.xml", SrcDir: "docs"}.Within(root)
	_, err := Execute(context.Background(), testLog, files, &recordSink{}, Options{})
	if err == nil || !strings.Contains(err.Error(), "no target archive or directory") {
		t.Errorf("expected missing target error, got %v", err)
	}

	// Links-only runs never need documents.
	sink := &recordSink{}
	sum, err := Execute(context.Background(), testLog, files, sink, Options{LinksOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Pairs != 4 {
		t.Errorf("expected 4 links, got %d", sum.Pairs)
	}
}

func TestExecute_MissingAlignment(t *testing.T) {
	root := writeCorpus(t)
	files, _ := Files{Alignment: "nope.xml", SrcDir: "docs", TrgDir: "docs"}.Within(root)
	_, err := Execute(context.Background(), testLog, files, &recordSink{}, Options{})
	if err == nil || !strings.Contains(err.Error(), "open alignment") {
		t.Errorf("expected open alignment error, got %v", err)
	}
}

func waitDone(t *testing.T, job *Job) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status.Done() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
	return JobSnapshot{}
}

func TestWorker_Process(t *testing.T) {
	root := writeCorpus(t)
	out := filepath.Join(t.TempDir(), "out")
	stats := NewPairStats(time.Hour)
	w := NewWorker(root, out, stats, testLog)

	req := Request{Files: Files{Alignment: "en-fi.xml", SrcDir: "docs", TrgDir: "docs"}}
	req.WriteMode = "moses"
	job := NewJob(req)
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected %q, got %q (errors %v)", StatusCompleted, snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.Groups != 2 || snap.Progress.Pairs != 4 {
		t.Errorf("expected 2 groups and 4 pairs, got %d and %d", snap.Progress.Groups, snap.Progress.Pairs)
	}
	if snap.OutputPath != filepath.Join(out, job.ID+".txt") {
		t.Errorf("expected output in %s, got %s", out, snap.OutputPath)
	}
	data, err := os.ReadFile(snap.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), data)
	}
	if lines[0] != "Hello world\tHei maailma" {
		t.Errorf("expected first line Hello world<TAB>Hei maailma, got %q", lines[0])
	}
	if got := stats.Snapshot().Groups; got != 2 {
		t.Errorf("expected 2 timed groups, got %d", got)
	}
}

func TestWorker_ProcessPartial(t *testing.T) {
	root := writeCorpus(t)
	if err := os.Remove(filepath.Join(root, "docs", "fi", "2.xml")); err != nil {
		t.Fatal(err)
	}
	w := NewWorker(root, t.TempDir(), NewPairStats(time.Hour), testLog)
	job := NewJob(Request{Files: Files{Alignment: "en-fi.xml", SrcDir: "docs", TrgDir: "docs"}})
	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Fatalf("expected %q, got %q", StatusPartial, snap.Status)
	}
	if snap.Summary == nil || snap.Summary.SkippedGroups != 1 {
		t.Errorf("expected 1 skipped group, got %+v", snap.Summary)
	}
	if len(snap.Progress.Errors) != 1 {
		t.Errorf("expected 1 error, got %v", snap.Progress.Errors)
	}
}

func TestWorker_ProcessFailures(t *testing.T) {
	root := writeCorpus(t)
	cases := []struct {
		name  string
		req   Request
		phase string
	}{
		{"escaping path", Request{Files: Files{Alignment: "../x.xml"}}, "opening"},
		{"bad preprocess", Request{Files: Files{Alignment: "en-fi.xml"}, Extract: config.Extract{Preprocess: "pdf"}}, "opening"},
		{"missing alignment", Request{Files: Files{Alignment: "none.xml", SrcDir: "docs", TrgDir: "docs"}}, "extracting"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWorker(root, t.TempDir(), NewPairStats(time.Hour), testLog)
			job := NewJob(tc.req)
			w.Process(context.Background(), job)
			snap := job.Snapshot()
			if snap.Status != StatusFailed {
				t.Fatalf("expected %q, got %q", StatusFailed, snap.Status)
			}
			if snap.Phase != tc.phase {
				t.Errorf("expected phase %q, got %q", tc.phase, snap.Phase)
			}
			if len(snap.Progress.Errors) == 0 {
				t.Error("expected an error message")
			}
		})
	}
}

func TestOrchestrator_RunsJobs(t *testing.T) {
	root := writeCorpus(t)
	cfg := config.Config{
		CorpusRoot:   root,
		OutputDir:    t.TempDir(),
		WorkerCount:  2,
		MaxQueueSize: 4,
		JobTTL:       time.Hour,
	}
	o := NewOrchestrator(cfg, testLog)
	o.Start(context.Background())
	defer o.Stop()

	var jobs []*Job
	for range 3 {
		job := NewJob(Request{Files: Files{Alignment: "en-fi.xml", SrcDir: "docs", TrgDir: "docs"}})
		if err := o.Submit(job); err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		snap := waitDone(t, job)
		if snap.Status != StatusCompleted {
			t.Errorf("job %s: expected %q, got %q", job.ID, StatusCompleted, snap.Status)
		}
		if o.GetJob(job.ID) != job {
			t.Errorf("expected job %s in the store", job.ID)
		}
	}
	if got := o.Stats().Snapshot().Groups; got != 6 {
		t.Errorf("expected 6 timed groups, got %d", got)
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	cfg := config.Config{WorkerCount: 1, MaxQueueSize: 1, JobTTL: time.Hour}
	// Not started, so nothing drains the queue.
	o := NewOrchestrator(cfg, testLog)

	if err := o.Submit(NewJob(Request{})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", o.QueueDepth())
	}
	job := NewJob(Request{})
	err := o.Submit(job)
	if err == nil || !strings.Contains(err.Error(), "job queue is full") {
		t.Fatalf("expected queue full error, got %v", err)
	}
	if got := job.Snapshot().Status; got != StatusFailed {
		t.Errorf("expected %q, got %q", StatusFailed, got)
	}
}

func TestOrchestrator_RemoveJob(t *testing.T) {
	root := writeCorpus(t)
	cfg := config.Config{CorpusRoot: root, OutputDir: t.TempDir(), WorkerCount: 1, MaxQueueSize: 2, JobTTL: time.Hour}
	o := NewOrchestrator(cfg, testLog)

	queued := NewJob(Request{})
	if err := o.Submit(queued); err != nil {
		t.Fatal(err)
	}
	if found, err := o.RemoveJob(queued.ID); !found || !errors.Is(err, ErrJobRunning) {
		t.Errorf("expected ErrJobRunning for a queued job, got %v, %v", found, err)
	}
	if found, err := o.RemoveJob("missing"); found || err != nil {
		t.Errorf("expected not found, got %v, %v", found, err)
	}

	o.Start(context.Background())
	defer o.Stop()
	done := waitDone(t, queued)
	if done.Status != StatusFailed {
		t.Fatalf("expected the empty request to fail, got %q", done.Status)
	}

	job := NewJob(Request{Files: Files{Alignment: "en-fi.xml", SrcDir: "docs", TrgDir: "docs"}})
	if err := o.Submit(job); err != nil {
		t.Fatal(err)
	}
	snap := waitDone(t, job)
	if got := len(o.ListJobs()); got != 2 {
		t.Errorf("expected 2 listed jobs, got %d", got)
	}
	if found, err := o.RemoveJob(job.ID); !found || err != nil {
		t.Fatalf("expected removal, got %v, %v", found, err)
	}
	if _, err := os.Stat(snap.OutputPath); !os.IsNotExist(err) {
		t.Errorf("expected output %s to be removed, got %v", snap.OutputPath, err)
	}
	if o.GetJob(job.ID) != nil {
		t.Error("expected job to be forgotten")
	}
}
