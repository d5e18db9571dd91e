// Package pipeline runs the catalog's map pipelines: refresh the dataset,
// join it onto boundaries, bin and color it, build the legend and render the
// document, then record the run and announce the artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/mapviz/internal/config"
	"github.com/couchcryptid/mapviz/internal/domain"
	"github.com/couchcryptid/mapviz/internal/geo"
	"github.com/couchcryptid/mapviz/internal/observability"
	"github.com/couchcryptid/mapviz/internal/refresh"
)

// ErrRunning is returned when a pipeline is triggered while it is still running.
var ErrRunning = errors.New("pipeline already running")

// Refresher obtains the local copy of a pipeline's dataset.
type Refresher interface {
	Refresh(ctx context.Context, src config.Source) (refresh.Snapshot, error)
	Local(src config.Source) (refresh.Snapshot, error)
}

// BoundaryLoader reads static boundary files.
type BoundaryLoader interface {
	Load(path string, opts geo.Options) ([]domain.GeoFeature, error)
}

// RunRecorder persists run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.Run) error
}

// EventPublisher announces rendered artifacts.
type EventPublisher interface {
	PublishArtifact(ctx context.Context, event domain.ArtifactEvent) error
}

// Options wires a Runner. History and Events are optional.
type Options struct {
	Catalog    *config.Catalog
	DataDir    string
	MapsDir    string
	Refresher  Refresher
	Boundaries BoundaryLoader
	History    RunRecorder
	Events     EventPublisher
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Runner executes catalog pipelines. Each pipeline runs at most once at a
// time; different pipelines may run concurrently.
type Runner struct {
	catalog    *config.Catalog
	dataDir    string
	mapsDir    string
	refresher  Refresher
	boundaries BoundaryLoader
	history    RunRecorder
	events     EventPublisher
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool

	mu      sync.Mutex
	running map[string]bool
}

// New creates a Runner.
func New(opts Options) *Runner {
	return &Runner{
		catalog:    opts.Catalog,
		dataDir:    opts.DataDir,
		mapsDir:    opts.MapsDir,
		refresher:  opts.Refresher,
		boundaries: opts.Boundaries,
		history:    opts.History,
		events:     opts.Events,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		running:    make(map[string]bool),
	}
}

// Catalog returns the pipelines the runner serves.
func (r *Runner) Catalog() *config.Catalog { return r.catalog }

// ArtifactPath is where the pipeline's document is written.
func (r *Runner) ArtifactPath(p config.Pipeline) string {
	return filepath.Join(r.mapsDir, p.Output)
}

// CheckReadiness returns nil once a document can be served: a run succeeded
// or a document from an earlier process is on disk.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if r.ready.Load() {
		return nil
	}
	for _, p := range r.catalog.Pipelines {
		if _, err := os.Stat(r.ArtifactPath(p)); err == nil {
			r.ready.Store(true)
			return nil
		}
	}
	return errors.New("no map has been rendered yet")
}

// Running reports whether the pipeline is currently executing.
func (r *Runner) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[name]
}

func (r *Runner) acquire(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, name)
}

// Run executes one pipeline synchronously. A trigger that arrives while the
// same pipeline is running is recorded as skipped and returns ErrRunning.
func (r *Runner) Run(ctx context.Context, name, trigger string) (domain.Run, error) {
	p, ok := r.catalog.Pipeline(name)
	if !ok {
		return domain.Run{}, fmt.Errorf("%w: unknown pipeline %q", domain.ErrConfig, name)
	}

	run := domain.Run{ID: uuid.NewString(), Pipeline: name, Trigger: trigger, StartedAt: domain.Now()}
	logger := r.logger.With("pipeline", name, "run_id", run.ID, "trigger", trigger)

	if !r.acquire(name) {
		run.Status = domain.RunSkipped
		run.FinishedAt = run.StartedAt
		r.metrics.RunsTotal.WithLabelValues(name, string(domain.RunSkipped)).Inc()
		logger.Warn("run skipped, previous run still in progress")
		r.record(ctx, run, logger)
		return run, ErrRunning
	}
	defer r.release(name)

	r.metrics.PipelineRunning.WithLabelValues(name).Set(1)
	defer r.metrics.PipelineRunning.WithLabelValues(name).Set(0)

	start := time.Now()
	logger.Info("run started", "kind", p.Kind)
	res, err := r.execute(ctx, p, logger)
	r.metrics.RunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	run.FinishedAt = domain.Now()
	run.Dataset = res.dataset
	run.Fetched = res.fetched
	run.Items = res.items
	run.Matched = res.matched
	run.Unmatched = len(res.unmatched)

	if err != nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		r.metrics.RunsTotal.WithLabelValues(name, string(domain.RunFailed)).Inc()
		logger.Error("run failed", "error", err, "duration", time.Since(start))
		r.record(ctx, run, logger)
		return run, err
	}

	run.Status = domain.RunSuccess
	run.Artifact = res.artifact
	r.metrics.RunsTotal.WithLabelValues(name, string(domain.RunSuccess)).Inc()
	r.metrics.LastSuccess.WithLabelValues(name).Set(float64(run.FinishedAt.Unix()))
	r.ready.Store(true)
	logger.Info("run complete",
		"artifact", res.artifact,
		"dataset", res.dataset,
		"fetched", res.fetched,
		"items", res.items,
		"duration", time.Since(start),
	)

	r.record(ctx, run, logger)
	r.publish(ctx, p, run, res, logger)
	return run, nil
}

// RunAll runs every pipeline in catalog order and joins their errors.
func (r *Runner) RunAll(ctx context.Context, trigger string) error {
	var errs []error
	for _, name := range r.catalog.Names() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := r.Run(ctx, name, trigger); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Refresh fetches the pipeline's dataset without rendering.
func (r *Runner) Refresh(ctx context.Context, name string) (refresh.Snapshot, error) {
	p, ok := r.catalog.Pipeline(name)
	if !ok {
		return refresh.Snapshot{}, fmt.Errorf("%w: unknown pipeline %q", domain.ErrConfig, name)
	}
	return r.refresher.Refresh(ctx, p.Source)
}

// snapshot refreshes the dataset, falling back to the last local copy when
// the remote source fails.
func (r *Runner) snapshot(ctx context.Context, p config.Pipeline, logger *slog.Logger) (refresh.Snapshot, error) {
	snap, err := r.refresher.Refresh(ctx, p.Source)
	if err == nil {
		return snap, nil
	}
	var fe *refresh.FetchError
	if !errors.As(err, &fe) {
		return snap, err
	}
	r.metrics.FetchErrors.WithLabelValues(p.Name).Inc()
	logger.Warn("refresh failed, using last local copy", "error", err)
	return r.refresher.Local(p.Source)
}

func (r *Runner) record(ctx context.Context, run domain.Run, logger *slog.Logger) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordRun(ctx, run); err != nil {
		logger.Warn("record run history", "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, p config.Pipeline, run domain.Run, res result, logger *slog.Logger) {
	if r.events == nil {
		return
	}
	event := domain.ArtifactEvent{
		RunID:      run.ID,
		Pipeline:   p.Name,
		Kind:       p.Kind,
		Route:      p.Route,
		Artifact:   res.artifact,
		SideFiles:  res.sideFiles,
		Dataset:    res.dataset,
		Fetched:    res.fetched,
		Items:      res.items,
		Unmatched:  res.unmatched,
		RenderedAt: run.FinishedAt,
	}
	if err := r.events.PublishArtifact(ctx, event); err != nil {
		logger.Warn("publish artifact event", "error", err)
	}
}
