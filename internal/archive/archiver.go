package archive

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wroldwiedbwe/hprofkit/internal/hprof"
	"github.com/wroldwiedbwe/hprofkit/pkg/config"
	apperrors "github.com/wroldwiedbwe/hprofkit/pkg/errors"
	"github.com/wroldwiedbwe/hprofkit/pkg/filter"
	"github.com/wroldwiedbwe/hprofkit/pkg/parallel"
	"github.com/wroldwiedbwe/hprofkit/pkg/utils"
)

// Archiver wires a Store, an optional Fetcher, and the core hprof package
// together into the one archive operation SPEC_FULL.md names: fetch (if
// remote), index, persist. It mirrors the teacher's internal/service.Service
// lifecycle-struct idiom, scaled down to the single collaborator graph the
// digest archiver needs.
type Archiver struct {
	store   *Store
	fetcher *Fetcher // nil when cfg.Storage.Type == "local"
	filter  *filter.ClassFilter
	logger  utils.Logger
}

// NewArchiver builds an Archiver from cfg. A "local" storage config runs
// with fetcher == nil: Run then treats every source argument as an
// already-local path.
func NewArchiver(cfg *config.Config, logger utils.Logger) (*Archiver, error) {
	store, err := NewStore(&cfg.Database)
	if err != nil {
		return nil, err
	}

	var fetcher *Fetcher
	if cfg.Storage.Type == "cos" {
		fetcher, err = NewFetcher(&cfg.Storage)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &Archiver{store: store, fetcher: fetcher, filter: filter.DefaultFilter, logger: logger}, nil
}

// Close releases the Archiver's Store connection.
func (a *Archiver) Close() error {
	return a.store.Close()
}

// Run archives one source: source is a local filesystem path when the
// Archiver has no Fetcher, or a COS object key otherwise. It returns the
// Digest it persisted and the database row id of its DigestFile.
func (a *Archiver) Run(ctx context.Context, source string) (*Digest, int64, error) {
	path := source
	if a.fetcher != nil {
		tmp, err := os.CreateTemp("", "hprofkit-fetch-*.hprof")
		if err != nil {
			return nil, 0, apperrors.Wrap(apperrors.CodeDownloadError, "failed to create temp file", err)
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		err = withSpan(ctx, "fetch", []attribute.KeyValue{attribute.String("archive.source", source)}, func(ctx context.Context) error {
			return a.fetcher.FetchToFile(ctx, source, tmpPath)
		})
		if err != nil {
			return nil, 0, err
		}
		path = tmpPath
	}

	var digest *Digest
	err := withSpan(ctx, "index", []attribute.KeyValue{attribute.String("archive.path", path)}, func(ctx context.Context) error {
		f, err := hprof.Open(path, hprof.WithLogger(a.logger))
		if err != nil {
			return apperrors.Wrap(apperrors.CodeParseError, fmt.Sprintf("failed to open %q", path), err)
		}
		defer f.Close()

		d, err := Walk(ctx, f, source, a.filter)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeParseError, fmt.Sprintf("failed to walk %q", path), err)
		}
		digest = d
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	var fileID int64
	err = withSpan(ctx, "persist", []attribute.KeyValue{attribute.String("archive.source", source)}, func(ctx context.Context) error {
		id, err := a.store.Persist(ctx, digest)
		fileID = id
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	a.logger.WithField("path", path).WithField("classes", len(digest.Classes)).Info("archived dump")
	return digest, fileID, nil
}

// RunResult pairs one RunMany input with its outcome.
type RunResult struct {
	Source string
	Digest *Digest
	FileID int64
	Err    error
}

// RunMany archives several sources concurrently, one task per source on a
// bounded worker pool — the concurrency §5 explicitly sanctions for the
// archiver, since each task opens its own hprof.File rather than sharing one
// across goroutines. Built on pkg/parallel.WorkerPool, the teacher's generic
// bounded-concurrency primitive. cfg.MaxWorkers/Timeout of zero fall back to
// parallel.DefaultPoolConfig(); metrics collection is always enabled so the
// batch's timing summary is available to the caller afterward.
func (a *Archiver) RunMany(ctx context.Context, sources []string, cfg parallel.PoolConfig) ([]RunResult, parallel.PoolMetrics) {
	def := parallel.DefaultPoolConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.TaskBufferSize <= 0 {
		cfg.TaskBufferSize = def.TaskBufferSize
	}
	cfg.CollectMetrics = true

	pool := parallel.NewWorkerPool[string, *Digest](cfg)

	progress := parallel.NewProgressTracker(int64(len(sources)), func(completed, total int64) {
		a.logger.WithField("completed", completed).WithField("total", total).Debug("archiving batch in progress")
	}, 0)
	progress.Start(ctx)
	defer progress.Stop()

	fileIDs := make(map[string]int64, len(sources))
	var mu sync.Mutex

	taskResults := pool.ExecuteFunc(ctx, sources, func(ctx context.Context, source string) (*Digest, error) {
		d, id, err := a.Run(ctx, source)
		if err == nil {
			mu.Lock()
			fileIDs[source] = id
			mu.Unlock()
		}
		progress.Increment()
		return d, err
	})

	results := make([]RunResult, len(taskResults))
	for i, tr := range taskResults {
		results[i] = RunResult{Source: tr.Input, Digest: tr.Result, FileID: fileIDs[tr.Input], Err: tr.Error}
	}
	return results, pool.Metrics()
}
