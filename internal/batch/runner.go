// Package batch runs saved queries concurrently against one engine.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aevon-lab/regraph/internal/core/query"
	"github.com/aevon-lab/regraph/internal/logging"
	"github.com/aevon-lab/regraph/internal/savedquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultWorkerCount = 4

// Result is the outcome of one saved query.
type Result struct {
	Name        string                `json:"name"`
	Title       string                `json:"title"`
	Fingerprint string                `json:"fingerprint,omitempty"`
	Collection  *query.DataCollection `json:"collection,omitempty"`
	Options     query.Options         `json:"options,omitempty"`
	Error       string                `json:"error,omitempty"`
	Duration    time.Duration         `json:"duration"`

	Err error `json:"-"`
}

// Report collects the results of one run in definition order.
type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Failed returns the number of results with an error.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Runner executes saved queries against a shared engine.
type Runner[R query.Record] struct {
	engine  *query.Engine[R]
	workers int
	logger  *slog.Logger
}

// NewRunner creates a runner with at most workers queries in flight.
// workers <= 0 selects the default.
func NewRunner[R query.Record](engine *query.Engine[R], workers int, logger *slog.Logger) *Runner[R] {
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	logger = logging.Default(logger)
	return &Runner[R]{
		engine:  engine,
		workers: workers,
		logger:  logger.With("component", "batch"),
	}
}

type outcome struct {
	coll *query.DataCollection
	opts query.Options
}

// memo evaluates each key at most once per run. singleflight merges calls that
// overlap; done keeps the outcome for calls that arrive after the first one
// returned.
type memo struct {
	flight singleflight.Group
	mu     sync.Mutex
	done   map[string]memoEntry
}

type memoEntry struct {
	out outcome
	err error
}

func (m *memo) lookup(key string) (memoEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.done[key]
	return e, ok
}

func (m *memo) do(key string, fn func() (outcome, error)) (outcome, error) {
	if e, ok := m.lookup(key); ok {
		return e.out, e.err
	}
	v, _, _ := m.flight.Do(key, func() (any, error) {
		if e, ok := m.lookup(key); ok {
			return e, nil
		}
		out, err := fn()
		e := memoEntry{out: out, err: err}
		m.mu.Lock()
		m.done[key] = e
		m.mu.Unlock()
		return e, nil
	})
	e := v.(memoEntry)
	return e.out, e.err
}

// Run executes defs. A failing definition is recorded in its Result and does
// not stop the others. Cancelling ctx stops scheduling; definitions that never
// started carry the context error. The returned error is non-nil only when ctx
// was cancelled.
func (r *Runner[R]) Run(ctx context.Context, defs []savedquery.Definition) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Results:   make([]Result, len(defs)),
	}
	for i, def := range defs {
		report.Results[i] = Result{Name: def.Name, Title: def.Title, Fingerprint: def.Fingerprint}
	}

	r.logger.Info("[Batch] Starting run",
		"run_id", report.RunID,
		"queries", len(defs),
		"workers", r.workers,
	)

	// Definitions with identical text, title and locale are evaluated once.
	shared := &memo{done: make(map[string]memoEntry)}

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for i := range defs {
		if ctx.Err() != nil {
			break
		}
		def := defs[i]
		res := &report.Results[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				res.Err = err
				return nil
			}
			started := time.Now()
			out, err := shared.do(def.Title+"\x00"+def.Locale+"\x00"+def.Query, func() (outcome, error) {
				return r.execute(def)
			})
			res.Duration = time.Since(started)
			if err != nil {
				res.Err = err
				r.logger.Warn("[Batch] Query failed", "run_id", report.RunID, "name", def.Name, "error", err)
				return nil
			}
			res.Collection = out.coll
			res.Options = out.opts
			return nil
		})
	}
	_ = g.Wait()

	ctxErr := ctx.Err()
	for i := range report.Results {
		res := &report.Results[i]
		if res.Err == nil && res.Collection == nil && ctxErr != nil {
			res.Err = ctxErr
		}
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
	}
	report.FinishedAt = time.Now().UTC()

	r.logger.Info("[Batch] Run complete",
		"run_id", report.RunID,
		"queries", len(defs),
		"failed", report.Failed(),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)

	if ctxErr != nil {
		return report, fmt.Errorf("batch run %s interrupted: %w", report.RunID, ctxErr)
	}
	return report, nil
}

func (r *Runner[R]) execute(def savedquery.Definition) (outcome, error) {
	stmt := def.Statement
	if stmt == nil {
		var err error
		if stmt, err = query.Parse(def.Query); err != nil {
			return outcome{}, err
		}
	}
	dates, err := def.DateParser(r.engine.Location())
	if err != nil {
		return outcome{}, err
	}
	coll, err := r.engine.Execute(stmt, def.Title, dates)
	if err != nil {
		return outcome{}, err
	}
	return outcome{coll: coll, opts: stmt.Options}, nil
}
