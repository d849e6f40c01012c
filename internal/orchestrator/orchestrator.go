// Package orchestrator implements the export orchestrator (spec §4.4,
// §5): discovery/fetch/transform/emit phases under a concurrency
// budget, with graceful interruption.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reconquest/karma-go"
	"github.com/reconquest/pkg/log"
	"golang.org/x/sync/errgroup"

	"github.com/bonovoxly/confluence-exporter/internal/atomicfile"
	"github.com/bonovoxly/confluence-exporter/internal/checksum"
	"github.com/bonovoxly/confluence-exporter/internal/cleanup"
	"github.com/bonovoxly/confluence-exporter/internal/confluence"
	"github.com/bonovoxly/confluence-exporter/internal/errkind"
	"github.com/bonovoxly/confluence-exporter/internal/journal"
	"github.com/bonovoxly/confluence-exporter/internal/manifest"
	"github.com/bonovoxly/confluence-exporter/internal/metrics"
	"github.com/bonovoxly/confluence-exporter/internal/queue"
	"github.com/bonovoxly/confluence-exporter/internal/restricted"
	"github.com/bonovoxly/confluence-exporter/internal/rewrite"
	"github.com/bonovoxly/confluence-exporter/internal/slug"
	"github.com/bonovoxly/confluence-exporter/internal/transform"
	"github.com/bonovoxly/confluence-exporter/internal/transform/macro"
)

// Config configures one export run.
type Config struct {
	SpaceKey    string
	OutputDir   string
	RootPageID  string
	DryRun      bool

	ConcurrencyLimit   int
	MaxDiscoveryPhases int
	BatchSize          int
	MaxEmptyPhases     int
	MaxRetries         int

	PersistenceThreshold int
	QueueMaxSize         int

	Thresholds restricted.Thresholds

	JournalPath        string
	QueueSnapshotPath  string
	ManifestPath       string
	InProgressPath     string
	CompletedPath      string
}

// DefaultConfig fills in the documented defaults (spec §4.4, §5).
func DefaultConfig() Config {
	return Config{
		ConcurrencyLimit:     5,
		MaxDiscoveryPhases:   1000,
		BatchSize:            25,
		MaxEmptyPhases:       3,
		MaxRetries:           3,
		PersistenceThreshold: 25,
		QueueMaxSize:         100000,
	}
}

// TransformFunc matches transform.Transform's signature; injected so
// tests can substitute a fake.
type TransformFunc func(page transform.Page, ctx transform.Context) (transform.Result, error)

// Orchestrator runs the export pipeline. It exclusively owns the
// queue, in-progress manifest, and journal for the lifetime of a run
// (spec §3 "Ownership").
type Orchestrator struct {
	cfg         Config
	api         confluence.API
	transformFn TransformFunc
	cleanupPipe *cleanup.Pipeline
	monitor     *metrics.Monitor
	collectors  *metrics.Collectors

	queue    *queue.Queue
	manifest *manifest.Manifest
	journal  *journal.Journal

	slugs map[string]*slug.Collision // per parent-directory collision resolver

	restrictedEval *restricted.Evaluator

	cancelled int32
	lastProgress time.Time
	rate         *metrics.RateWindow
	mu           sync.Mutex
}

// New constructs an Orchestrator. api and transformFn are the only
// stateless collaborators (spec §3 "The API adapter and transformer
// are stateless collaborators").
func New(cfg Config, api confluence.API, transformFn TransformFunc, collectors *metrics.Collectors) *Orchestrator {
	q := queue.New(queue.Config{
		MaxQueueSize:         cfg.QueueMaxSize,
		PersistenceThreshold: cfg.PersistenceThreshold,
		MaxRetries:           cfg.MaxRetries,
	})

	return &Orchestrator{
		cfg:            cfg,
		api:            api,
		transformFn:    transformFn,
		cleanupPipe:    cleanup.NewPipeline(cleanup.DefaultRules()),
		monitor:        metrics.New(metrics.DefaultThresholds()),
		collectors:     collectors,
		queue:          q,
		manifest:       manifest.New(cfg.SpaceKey, nowUnix()),
		journal:        journal.New(cfg.SpaceKey),
		slugs:          make(map[string]*slug.Collision),
		restrictedEval: restricted.NewEvaluator(cfg.Thresholds),
		rate:           metrics.NewRateWindow(2 * time.Minute),
	}
}

// RestoreQueue replaces the orchestrator's fresh queue with one
// restored from a prior snapshot (used by --resume).
func (o *Orchestrator) RestoreQueue(q *queue.Queue) {
	o.queue = q
}

// RestoreJournal replaces the orchestrator's journal with one loaded
// from disk (used by --resume).
func (o *Orchestrator) RestoreJournal(j *journal.Journal) {
	o.journal = j
}

// Result is the outcome of a completed (or interrupted) run.
type Result struct {
	Manifest        *manifest.Manifest
	ExportedCount   int
	FailedCount     int
	BrokenLinks     int
	Interrupted     bool
	RestrictedSummary restricted.Summary
	Errors          []error
}

func nowUnix() int64 { return time.Now().Unix() }

// Process runs the export: seeds the queue with the root page,
// iterates discovery phases until the queue drains or the phase/empty
// limits are hit, then runs the final link rewrite (spec §4.4).
func (o *Orchestrator) Process(ctx context.Context) (Result, error) {
	if o.queue.IsEmpty() {
		err := o.queue.Add(queue.Item{PageID: o.cfg.RootPageID, SourceType: queue.SourceInitial})
		if err != nil {
			return Result{}, karma.Reason(err)
		}
	}

	emptyPhases := 0
	var runErrors []error

	for phase := 0; phase < o.cfg.MaxDiscoveryPhases; phase++ {
		if o.isCancelled() {
			break
		}

		batch := o.drainBatch(o.cfg.BatchSize)
		if len(batch) == 0 {
			emptyPhases++
			if emptyPhases >= o.cfg.MaxEmptyPhases {
				break
			}
			continue
		}
		emptyPhases = 0

		if errs := o.processBatch(ctx, batch); len(errs) > 0 {
			runErrors = append(runErrors, errs...)
		}

		if o.queue.ShouldPersist() {
			o.persist()
		}

		o.evaluateHealth()

		if o.isCancelled() {
			break
		}
	}

	interrupted := o.isCancelled()
	o.persist()
	if err := o.journal.Save(o.cfg.JournalPath); err != nil {
		log.Errorf(err, "unable to persist journal")
	}

	brokenLinks := 0
	if !o.cfg.DryRun && !interrupted {
		brokenLinks = o.runLinkRewrite()
	}

	if err := o.manifest.Save(o.cfg.ManifestPath); err != nil {
		return Result{}, karma.Reason(err)
	}

	summary := o.restrictedEval.Evaluate()

	exported, failed := o.countOutcomes()

	return Result{
		Manifest:          o.manifest,
		ExportedCount:     exported,
		FailedCount:       failed,
		BrokenLinks:       brokenLinks,
		Interrupted:       interrupted,
		RestrictedSummary: summary,
		Errors:            runErrors,
	}, nil
}

// Cancel flips the cooperative cancellation flag observed at every
// suspension point and before each new queue pull (spec §5).
func (o *Orchestrator) Cancel() {
	atomic.StoreInt32(&o.cancelled, 1)
	o.queue.MarkInterrupted()
}

func (o *Orchestrator) isCancelled() bool {
	return atomic.LoadInt32(&o.cancelled) == 1
}

func (o *Orchestrator) drainBatch(batchSize int) []queue.Item {
	var batch []queue.Item
	for i := 0; i < batchSize; i++ {
		item, ok := o.queue.Next()
		if !ok {
			break
		}
		batch = append(batch, item)
	}
	return batch
}

// processBatch runs batch through a bounded worker pool (spec §4.4,
// §1: errgroup.Group.SetLimit replaces a hand-rolled semaphore).
func (o *Orchestrator) processBatch(ctx context.Context, batch []queue.Item) []error {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(o.cfg.ConcurrencyLimit)

	var mu sync.Mutex
	var errs []error

	for _, item := range batch {
		item := item
		group.Go(func() error {
			if o.isCancelled() {
				o.queue.MarkFailed(item.PageID, true)
				return nil
			}
			if err := o.processItem(gctx, item); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = group.Wait()
	return errs
}

// processItem runs one item through fetch -> transform -> write ->
// manifest update -> enqueue discovered -> markProcessed -> journal
// (spec §4.4 per-item processing, §5 ordering guarantees).
func (o *Orchestrator) processItem(ctx context.Context, item queue.Item) error {
	page, httpStatus, fetchErr := o.fetchWithRetry(ctx, item.PageID)
	if fetchErr != nil {
		return o.handleFetchFailure(item, httpStatus, fetchErr)
	}

	result, err := o.transformFn(toTransformPage(page), transform.Context{SpaceKey: o.cfg.SpaceKey})
	if err != nil {
		o.queue.MarkFailed(item.PageID, false)
		o.journal.Set(journal.Entry{
			ID: item.PageID, Type: journal.TypePage, Status: journal.StatusFailed,
			Timestamp: nowUnix(), Error: err.Error(),
		})
		return errkind.Wrap(err, errkind.Content)
	}

	frontMatter, body := cleanup.SplitFrontMatter(result.Content)
	cleaned, err := o.cleanupPipe.Run(body, cleanup.Context{})
	if err != nil {
		return err
	}
	cleaned.Content = frontMatter + cleaned.Content

	relPath := o.resolvePath(page)

	if !o.cfg.DryRun {
		fullPath := filepath.Join(o.cfg.OutputDir, relPath)
		if err := atomicfile.WriteFile(fullPath, []byte(cleaned.Content), 0o644); err != nil {
			return errkind.Wrap(err, errkind.Filesystem)
		}
	}

	hash := checksum.OfContent([]byte(cleaned.Content))
	o.manifest.Upsert(manifest.Entry{
		ID: page.ID, Title: page.Title, Path: atomicfile.ToSlash(relPath),
		Hash: hash, Status: manifest.StatusExported, Version: page.Version, ParentID: page.ParentID,
	})

	o.enqueueDiscovered(item, result, page)

	o.queue.MarkProcessed(item.PageID)
	o.journal.Set(journal.Entry{
		ID: item.PageID, Type: journal.TypePage, Status: journal.StatusCompleted,
		Path: relPath, Timestamp: nowUnix(),
	})

	o.touchProgress()
	if o.collectors != nil {
		o.collectors.PagesProcessed.Inc()
	}

	return nil
}

func (o *Orchestrator) handleFetchFailure(item queue.Item, httpStatus int, fetchErr error) error {
	class := restricted.Classify(httpStatus, false, false)

	if class.ManifestStatus() != "" {
		o.restrictedEval.RecordPageFailure(item.PageID, class)
		o.queue.MarkFailed(item.PageID, false)
		o.manifest.Upsert(manifest.Entry{ID: item.PageID, Status: class.ManifestStatus()})
		o.journal.Set(journal.Entry{
			ID: item.PageID, Type: journal.TypePage, Status: journal.StatusFailed,
			Timestamp: nowUnix(), Error: fetchErr.Error(),
		})
		return nil
	}

	o.queue.MarkFailed(item.PageID, true)
	if o.collectors != nil {
		o.collectors.Retries.Inc()
	}
	// MarkFailed re-queues the item until its retry count reaches
	// MaxRetries; only the attempt that exhausts them is a page failure.
	if item.RetryCount+1 >= o.cfg.MaxRetries {
		o.restrictedEval.RecordPageFailure(item.PageID, class)
		if o.collectors != nil {
			o.collectors.PagesFailed.Inc()
		}
	}
	return fetchErr
}

// fetchWithRetry fetches a page with exponential backoff and jitter
// (spec §4.4 step 1). Retries are an explicit loop, not exceptions
// (spec §9 "Coroutine control flow").
func (o *Orchestrator) fetchWithRetry(ctx context.Context, pageID string) (*confluence.Page, int, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		page, err := o.api.GetPageWithBody(ctx, pageID)
		if err == nil {
			return page, 0, nil
		}

		lastErr = err
		lastStatus = statusFromErr(err)

		if o.monitor != nil {
			if breaker, ok := o.api.(interface{ BreakerOpen() bool }); ok {
				o.monitor.SetBreakerOpen(breaker.BreakerOpen())
			}
		}

		kind := errkind.FromHTTPStatus(lastStatus)
		if !kind.Retryable() || attempt == o.cfg.MaxRetries {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
		jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
		select {
		case <-ctx.Done():
			return nil, lastStatus, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	return nil, lastStatus, lastErr
}

func statusFromErr(err error) int {
	var apiErr *confluence.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// enqueueDiscovered tags and enqueues every newly discovered pageId
// from the transform result and macro discovery not already present in
// items or processedPages (spec §4.4 step 4).
func (o *Orchestrator) enqueueDiscovered(item queue.Item, result transform.Result, page *confluence.Page) {
	for _, id := range result.DiscoveredPageIDs {
		_ = o.queue.Add(queue.Item{
			PageID: id, SourceType: queue.SourceReference, ParentPageID: item.PageID,
		})
	}

	for _, discovery := range macro.Discover(page.ID, page.BodyStorage) {
		switch discovery.Action {
		case macro.ActionFetchChildren:
			o.enqueueChildren(item.PageID)
		case macro.ActionSearchLabel:
			o.enqueueLabelSearch(discovery)
		}
	}
}

func (o *Orchestrator) enqueueChildren(pageID string) {
	children, _, err := o.api.GetChildPages(context.Background(), pageID, "")
	if err != nil {
		log.Warningf(err, "unable to list children of %s", pageID)
		return
	}
	for _, child := range children {
		_ = o.queue.Add(queue.Item{PageID: child.ID, SourceType: queue.SourceMacro, ParentPageID: pageID})
	}
}

func (o *Orchestrator) enqueueLabelSearch(discovery macro.Discovery) {
	pages, err := o.api.SearchPages(context.Background(), discovery.CQL, 100)
	if err != nil {
		log.Warningf(err, "unable to search by label for %s", discovery.SourcePage)
		return
	}
	for _, p := range pages {
		_ = o.queue.Add(queue.Item{PageID: p.ID, SourceType: queue.SourceMacro, ParentPageID: discovery.SourcePage})
	}
}

// resolvePath derives the emitted Markdown's path relative to the
// space directory from the page's ancestor chain and title slug,
// resolving collisions per parent directory (spec §4.2, §9).
func (o *Orchestrator) resolvePath(page *confluence.Page) string {
	dir := ""
	for _, a := range page.Ancestors {
		dir = path.Join(dir, slug.Slugify(a.Title, slug.DefaultMaxLength))
	}

	resolver, ok := o.slugs[dir]
	if !ok {
		resolver = slug.NewCollision()
		o.slugs[dir] = resolver
	}

	base := slug.Slugify(page.Title, slug.DefaultMaxLength)
	final := resolver.Resolve(page.ID, base)

	return path.Join(dir, final+".md")
}

func (o *Orchestrator) persist() {
	if err := o.queue.Persist(o.cfg.QueueSnapshotPath, o.cfg.SpaceKey); err != nil {
		log.Errorf(err, "unable to persist queue snapshot")
	}
	if o.collectors != nil {
		o.collectors.QueueSize.Set(float64(o.queue.Size()))
	}
}

func (o *Orchestrator) touchProgress() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastProgress = time.Now()
}

// evaluateHealth feeds the current queue/rate state into the monitor
// (spec §4.1 "Monitoring thresholds") and, when alerts fire, logs them
// and updates the health-score gauge.
func (o *Orchestrator) evaluateHealth() {
	now := time.Now()
	exported, _ := o.countOutcomes()
	o.rate.Observe(now, exported)

	o.mu.Lock()
	lastProgress := o.lastProgress
	o.mu.Unlock()

	alerts := o.monitor.Evaluate(metrics.Sample{
		QueueSize:      o.queue.Size(),
		ProcessingRate: o.rate.Rate(),
		LastProgressAt: lastProgress,
		Now:            now,
	})

	for _, a := range alerts {
		log.Warningf(nil, "monitor alert: %s: %s", a.Name, a.Message)
	}

	if o.collectors != nil {
		o.collectors.HealthScore.Set(metrics.HealthScore(alerts))
	}
}

func (o *Orchestrator) countOutcomes() (exported, failed int) {
	for _, e := range o.manifest.Entries {
		switch e.Status {
		case manifest.StatusExported, manifest.StatusUnchanged:
			exported++
		case manifest.StatusDenied, manifest.StatusRemoved:
			failed++
		}
	}
	return
}

// runLinkRewrite performs the final link-rewriting pass (spec §4.6)
// over every emitted Markdown file, using the finished manifest.
func (o *Orchestrator) runLinkRewrite() int {
	entries := make([]rewrite.Entry, 0, len(o.manifest.Entries))
	for _, e := range o.manifest.Entries {
		entries = append(entries, rewrite.Entry{ID: e.ID, Title: e.Title, Path: e.Path, Status: e.Status})
	}
	resolver := rewrite.NewResolver(entries)

	broken := 0
	for _, e := range o.manifest.Entries {
		if e.Status != manifest.StatusExported && e.Status != manifest.StatusUnchanged {
			continue
		}
		fullPath := filepath.Join(o.cfg.OutputDir, e.Path)
		data, err := readFile(fullPath)
		if err != nil {
			continue
		}
		res := resolver.Rewrite(e.Path, string(data))
		broken += res.BrokenLinks
		if err := atomicfile.WriteFile(fullPath, []byte(res.Content), 0o644); err != nil {
			log.Errorf(err, "unable to rewrite links in %s", fullPath)
		}
	}
	return broken
}

func toTransformPage(p *confluence.Page) transform.Page {
	ancestors := make([]transform.Ancestor, 0, len(p.Ancestors))
	for _, a := range p.Ancestors {
		ancestors = append(ancestors, transform.Ancestor{ID: a.ID, Title: a.Title})
	}
	return transform.Page{
		ID: p.ID, Title: p.Title, BodyStorage: p.BodyStorage,
		Version: p.Version, ParentID: p.ParentID, Ancestors: ancestors,
	}
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
