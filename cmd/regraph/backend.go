package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/regraph/internal/batch"
	"github.com/aevon-lab/regraph/internal/core/config"
	"github.com/aevon-lab/regraph/internal/core/query"
	"github.com/aevon-lab/regraph/internal/savedquery"
	"github.com/aevon-lab/regraph/internal/source"
)

// backend hides the record type chosen by source.format from the commands.
type backend interface {
	Query(text, name string, dates query.DateParser) (*query.DataCollection, query.Options, error)
	Run(ctx context.Context, defs []savedquery.Definition) (*batch.Report, error)
	Scheduler(interval time.Duration, repo savedquery.Repository, sink batch.Sink) *batch.Scheduler
}

type engineBackend[R query.Record] struct {
	*query.Engine[R]
	runner *batch.Runner[R]
}

func (b *engineBackend[R]) Run(ctx context.Context, defs []savedquery.Definition) (*batch.Report, error) {
	return b.runner.Run(ctx, defs)
}

func (b *engineBackend[R]) Scheduler(interval time.Duration, repo savedquery.Repository, sink batch.Sink) *batch.Scheduler {
	return batch.NewScheduler(interval, b.runner, repo, sink)
}

func newBackend[R query.Record](records []R, cfg *config.Config, logger *slog.Logger) (*engineBackend[R], error) {
	dates, err := cfg.Query.DateParser()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Query.Location()
	if err != nil {
		return nil, err
	}
	engine := query.NewEngine(records,
		query.WithDateParser(dates),
		query.WithLocation(loc),
		query.WithDateFormat(cfg.Query.DateFormat),
		query.WithMaxBuckets(cfg.Query.MaxBuckets),
		query.WithLogger(logger),
	)
	logger.Info("[Main] Records loaded", "format", cfg.Source.Format, "records", engine.Len())
	return &engineBackend[R]{
		Engine: engine,
		runner: batch.NewRunner(engine, cfg.Queries.WorkerCount, logger),
	}, nil
}

// openBackend loads the configured record source. path overrides
// source.path when set.
func openBackend(ctx context.Context, cfg *config.Config, path string, logger *slog.Logger) (backend, error) {
	if path == "" {
		path = cfg.Source.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no record file: set source.path or pass --records")
	}

	switch cfg.Source.Format {
	case config.SourceProto:
		records, err := source.LoadProtoRecords(ctx, source.ProtoSource{
			ProtoFile:      cfg.Source.ProtoFile,
			Message:        cfg.Source.Message,
			Path:           path,
			TimestampField: cfg.Source.TimestampField,
		})
		if err != nil {
			return nil, err
		}
		return newBackend(records, cfg, logger)
	default:
		events, err := source.LoadEvents(path)
		if err != nil {
			return nil, err
		}
		return newBackend(events, cfg, logger)
	}
}
