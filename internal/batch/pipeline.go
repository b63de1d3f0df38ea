// Package batch runs a list of URLs through classification, profile
// resolution and download, then reports one block per URL.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ytbatch/internal/compose"
	"ytbatch/internal/model"
	"ytbatch/internal/profile"
	"ytbatch/internal/resolve"
)

const defaultConcurrency = 4

// ErrClassificationMismatch means the engine returned a different number of
// classifications than URLs submitted. The batch cannot continue.
var ErrClassificationMismatch = errors.New("classification count does not match submitted urls")

type Pipeline struct {
	Engine   Engine
	Store    *profile.Store
	Resolver *resolve.Resolver

	// Persist is called once after resolution when aliases were learned.
	Persist func(*profile.Store) error

	Out    io.Writer
	Logger *zap.Logger
	RunID  string

	Concurrency     int
	ClassifyTimeout time.Duration
	DownloadTimeout time.Duration
	DryRun          bool

	// Progress is called after each classification. Calls are serialized.
	Progress func(url string, res Classification, done, total int)
}

func (p *Pipeline) Run(ctx context.Context, fileLines, directURLs []string) (Report, error) {
	report := Report{RunID: p.RunID, Learned: []resolve.Learned{}, Entries: []Entry{}}
	if p.Engine == nil || p.Store == nil {
		return report, errors.New("pipeline requires an engine and a profile store")
	}
	log := p.logger()

	records := ParseLines(fileLines, model.SourceFile)
	records = append(records, ParseLines(directURLs, model.SourceArg)...)
	if len(records) == 0 {
		log.Info("nothing to do")
		return report, nil
	}
	log.Info("batch started", zap.Int("urls", len(records)), zap.Bool("dry_run", p.DryRun))

	if err := p.classify(ctx, records); err != nil {
		return report, err
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = resolve.New(p.Store, nil, log)
	}
	learned, err := resolver.ResolveAll(records)
	if err != nil {
		return report, err
	}
	report.Learned = learned

	if p.Persist != nil && p.Store.Dirty() {
		if err := p.Persist(p.Store); err != nil {
			return report, errors.Wrap(err, "save learned aliases")
		}
		p.Store.MarkClean()
		log.Info("profiles saved", zap.Int("learned", len(learned)))
	}

	out := p.Out
	if out == nil {
		out = io.Discard
	}
	rw := NewReportWriter(out, records)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Entries = append(report.Entries, p.process(ctx, rw, rec))
	}
	log.Info("batch finished", zap.Int("urls", len(records)), zap.Int("failures", report.Failures()))
	return report, nil
}

func (p *Pipeline) classify(ctx context.Context, records []*model.Record) error {
	urls := make([]string, len(records))
	for i, rec := range records {
		urls[i] = rec.URL
	}

	var results []Classification
	if bc, ok := p.Engine.(BatchClassifier); ok {
		cctx, cancel := withTimeout(ctx, p.ClassifyTimeout)
		got, err := bc.ClassifyAll(cctx, urls)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// the whole call failed; every record carries the reason
			got = make([]Classification, len(urls))
			for i := range got {
				got[i].Err = classifyError(cctx, err, p.ClassifyTimeout)
			}
		}
		if len(got) != len(urls) {
			return errors.Wrapf(ErrClassificationMismatch, "submitted %d, got %d", len(urls), len(got))
		}
		results = got
	} else {
		results = p.classifyEach(ctx, urls)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	_, batched := p.Engine.(BatchClassifier)
	for i, rec := range records {
		res := results[i]
		rec.ExtractorID = res.ExtractorID
		next := model.PhaseClassified
		if res.Err != "" {
			rec.AddError(res.Err)
			next = model.PhaseFailed
		}
		if err := model.TransitionRecord(rec, next); err != nil {
			return err
		}
		if batched && p.Progress != nil {
			p.Progress(rec.URL, res, i+1, len(records))
		}
	}
	return nil
}

// classifyEach classifies urls with at most Concurrency calls in flight.
// results[i] always belongs to urls[i].
func (p *Pipeline) classifyEach(ctx context.Context, urls []string) []Classification {
	results := make([]Classification, len(urls))
	limit := p.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		done int
	)
	g.SetLimit(limit)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			cctx, cancel := withTimeout(ctx, p.ClassifyTimeout)
			defer cancel()
			res, err := p.Engine.Classify(cctx, url)
			if err != nil {
				res.Err = classifyError(cctx, err, p.ClassifyTimeout)
			}
			results[i] = res

			mu.Lock()
			done++
			if p.Progress != nil {
				p.Progress(url, res, done, len(urls))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) process(ctx context.Context, rw *ReportWriter, rec *model.Record) Entry {
	log := p.logger()
	entry := Entry{
		Line:      rec.Line,
		URL:       rec.URL,
		Source:    rec.Source,
		Extractor: rec.ExtractorID,
		Profile:   profileLabel(rec.ResolvedProfile),
	}
	if rec.HasError() {
		entry.Errors = append([]string(nil), rec.Errors...)
		entry.Outcome = OutcomeError
		rw.Block(entry)
		return entry
	}

	entry.Args = compose.Compose(p.Store, rec.ResolvedProfile, rec.InvocationArgs)
	if p.DryRun {
		entry.Outcome = OutcomeDryRun
		rw.Block(entry)
		return entry
	}

	rw.Header(rec.URL)
	rw.Downloading(rec.Label(), rec.URL)
	log.Debug("invoking engine",
		zap.String("url", rec.URL),
		zap.String("profile", entry.Profile),
		zap.Strings("args", entry.Args),
	)

	ictx, cancel := withTimeout(ctx, p.DownloadTimeout)
	inv, err := p.Engine.Invoke(ictx, entry.Args, rec.URL)
	cancel()
	if err != nil {
		msg := err.Error()
		if p.DownloadTimeout > 0 && errors.Is(ictx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("download timed out after %s", p.DownloadTimeout)
		}
		entry.Errors = append(entry.Errors, msg)
		log.Warn("engine invocation failed", zap.String("url", rec.URL), zap.Error(err))
	}
	for _, f := range inv.Files {
		rec.AddFile(f.Path, f.Stage)
	}
	rec.Completed = inv.Completed
	entry.Completed = inv.Completed
	_ = model.TransitionRecord(rec, model.PhaseInvoked)

	if rec.Completed {
		entry.Files = filesAt(rec, true, model.StageProcess, model.StagePostProcess)
	} else {
		// a prospective name only; the download never got that far
		entry.PotentialFiles = filesAt(rec, false, model.StagePreProcess)
	}
	switch {
	case len(entry.Files) > 0:
		entry.Outcome = OutcomeCompleted
	case len(entry.PotentialFiles) > 0:
		entry.Outcome = OutcomePotential
	default:
		entry.Outcome = OutcomeNoFiles
		_ = model.TransitionRecord(rec, model.PhaseFailed)
	}
	rw.Files(rec.Label(), entry.Files, entry.PotentialFiles)
	return entry
}

// filesAt lists the record's files produced at the given stages, sorted.
// With onDisk set, files that no longer exist are left out.
func filesAt(rec *model.Record, onDisk bool, stages ...model.Stage) []string {
	want := make(map[model.Stage]bool, len(stages))
	for _, s := range stages {
		want[s] = true
	}
	out := make([]string, 0, len(rec.ProducedFiles))
	for path, stage := range rec.ProducedFiles {
		if !want[stage] {
			continue
		}
		if onDisk {
			if _, err := os.Stat(path); err != nil {
				continue
			}
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func classifyError(ctx context.Context, err error, timeout time.Duration) string {
	if timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("classification timed out after %s", timeout)
	}
	return err.Error()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func profileLabel(id string) string {
	if id == "" {
		return profile.DefaultID
	}
	return id
}
