// Package build drives a batch run: list snapshots, parse and resolve them
// in parallel, and fold them into the AS organization map in day order.
package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/asorg-db/internal/logctx"
	"github.com/eunmann/asorg-db/pkg/asorg"
	"github.com/eunmann/asorg-db/pkg/logging"
	"github.com/eunmann/asorg-db/pkg/snapshot"
)

// Config configures a Pipeline.
type Config struct {
	// Concurrency is the number of snapshots parsed in parallel (default 4).
	Concurrency int
	// ReadAhead bounds how many parsed snapshots may wait to be folded
	// (default 2*Concurrency).
	ReadAhead int
	// Since and Until restrict the folded days (inclusive, YYYYMMDD). Empty
	// means unbounded.
	Since string
	Until string
}

// Result summarizes a finished run.
type Result struct {
	Map       asorg.Map
	FirstDay  string
	LastDay   string
	Snapshots int
	// Skipped counts listed snapshots older than the resumed aggregator's
	// last day.
	Skipped   int
	Totals    asorg.FoldStats
	Duration  time.Duration
}

// Pipeline folds the snapshots of a Source into an Aggregator.
type Pipeline struct {
	cfg Config
	src snapshot.Source
	agg *asorg.Aggregator
}

// NewPipeline creates a pipeline over src. A nil aggregator starts from an
// empty map.
func NewPipeline(cfg Config, src snapshot.Source, agg *asorg.Aggregator) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ReadAhead < cfg.Concurrency {
		cfg.ReadAhead = 2 * cfg.Concurrency
	}
	if agg == nil {
		agg = asorg.NewAggregator()
	}
	return &Pipeline{cfg: cfg, src: src, agg: agg}
}

type parsed struct {
	facts   []snapshot.DailyFact
	elapsed time.Duration
}

// Run lists, parses and folds every snapshot. Snapshots older than the
// aggregator's last folded day are skipped. Any error aborts the run and
// leaves the aggregator holding only the days folded before it.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := logging.WithPhase("build")

	refs, err := p.src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snapshot.SortRefs(refs)
	refs = snapshot.FilterRefs(refs, p.cfg.Since, p.cfg.Until)
	listed := len(refs)
	refs = p.skipFolded(refs)
	skipped := listed - len(refs)

	log.Info().
		Int("snapshots", len(refs)).
		Int("skipped", skipped).
		Int("concurrency", p.cfg.Concurrency).
		Str("resume_after", p.agg.LastDay()).
		Msg("starting build")

	result := &Result{Map: p.agg.Map(), Skipped: skipped}
	if len(refs) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	slots := make([]chan parsed, len(refs))
	for i := range slots {
		slots[i] = make(chan parsed, 1)
	}
	window := make(chan struct{}, p.cfg.ReadAhead)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		workers, wctx := errgroup.WithContext(gctx)
		workers.SetLimit(p.cfg.Concurrency)
		for i, ref := range refs {
			select {
			case window <- struct{}{}:
			case <-wctx.Done():
				return workers.Wait()
			}
			workers.Go(func() error {
				fileCtx := logctx.WithFile(logctx.WithDay(logctx.WithLogger(wctx, log), ref.Day), ref.Name)
				t0 := time.Now()
				facts, err := snapshot.Load(fileCtx, p.src, ref)
				if err != nil {
					return err
				}
				slots[i] <- parsed{facts: facts, elapsed: time.Since(t0)}
				return nil
			})
		}
		return workers.Wait()
	})

	progress := logging.NewProgressTracker("fold", int64(listed), log)
	for range skipped {
		progress.RecordSkip()
	}
	foldErr := func() error {
		for i, ref := range refs {
			var res parsed
			select {
			case res = <-slots[i]:
			case <-gctx.Done():
				return gctx.Err()
			}
			<-window

			stats, err := p.agg.Fold(ref.Day, res.facts)
			if err != nil {
				return fmt.Errorf("fold %s: %w", ref.Name, err)
			}
			progress.RecordCompletion(res.elapsed)

			logging.FileProcessed(log, "fold", res.elapsed).
				Str("snapshot_day", ref.Day).
				Int("facts", stats.Facts).
				Int("appended", stats.Appended).
				Int("compacted", stats.Compacted).
				Int("new_asns", stats.NewASNs).
				LogDebug("snapshot folded")
			progress.Tick("folding snapshots")
		}
		return nil
	}()

	if foldErr != nil {
		cancel()
	}
	// A parse error cancels gctx, so the fold loop's error is then only the
	// cancellation and the worker's error is the one to report.
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	if foldErr != nil {
		return nil, foldErr
	}

	result.FirstDay = refs[0].Day
	result.LastDay = p.agg.LastDay()
	result.Snapshots = len(refs)
	result.Totals = p.agg.Totals()
	result.Duration = time.Since(start)

	logging.PhaseComplete(log, "build", result.Duration).
		Int("snapshots", result.Snapshots).
		Int("skipped", result.Skipped).
		Str("first_day", result.FirstDay).
		Str("last_day", result.LastDay).
		Count("asns", int64(len(result.Map))).
		Count("entries", int64(result.Map.EntryCount())).
		Log("build complete")

	return result, nil
}

// skipFolded drops refs strictly older than the aggregator's last day.
func (p *Pipeline) skipFolded(refs []snapshot.Ref) []snapshot.Ref {
	last := p.agg.LastDay()
	if last == "" {
		return refs
	}
	for i, r := range refs {
		if r.Day >= last {
			return refs[i:]
		}
	}
	return nil
}
