// Package poll runs scheduled fetch cycles across a set of underlyings
// with a bounded worker pool and fans results out to the configured
// sinks: latest-snapshot cache, history store, publisher.
package poll

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/fetch"
	"github.com/dgnsrekt/gexstream/internal/gex"
)

// Fetcher runs one fetch. Satisfied by fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, params fetch.Params) (*gex.Snapshot, error)
}

// Sink receives every aggregated snapshot from a cycle. Sinks must be
// safe for concurrent calls; workers deliver directly.
type Sink interface {
	Accept(ctx context.Context, snap *gex.Snapshot) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, snap *gex.Snapshot) error

func (f SinkFunc) Accept(ctx context.Context, snap *gex.Snapshot) error {
	return f(ctx, snap)
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	Total      int
	Success    int
	Incomplete int
	Failed     int
	Errors     []string
}

// Manager executes poll cycles.
type Manager struct {
	fetcher Fetcher
	sinks   []Sink
	workers int
	logger  *zap.Logger
}

func NewManager(fetcher Fetcher, sinks []Sink, workers int, logger *zap.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		fetcher: fetcher,
		sinks:   sinks,
		workers: workers,
		logger:  logger,
	}
}

// Execute fetches every task with the worker pool and delivers each
// snapshot to all sinks. Sink failures mark the task failed but do not
// stop the cycle.
func (m *Manager) Execute(ctx context.Context, tasks []Task) (*CycleResult, error) {
	result := &CycleResult{Total: len(tasks)}

	if len(tasks) == 0 {
		return result, nil
	}

	// Buffered to the full batch so the fill never blocks; closing up
	// front lets workers drain and exit without a feeder goroutine.
	jobs := make(chan Task, len(tasks))
	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)

	results := make(chan TaskResult, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx, jobs, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		switch {
		case r.Error != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Task, r.Error))
		case r.Incomplete:
			result.Success++
			result.Incomplete++
		default:
			result.Success++
		}
	}

	return result, nil
}

func (m *Manager) worker(ctx context.Context, jobs <-chan Task, results chan<- TaskResult) {
	for task := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := m.processTask(ctx, task)

		select {
		case <-ctx.Done():
			return
		case results <- result:
		}
	}
}

func (m *Manager) processTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{Task: task}

	m.logger.Info("fetching", zap.String("task", task.String()))

	snap, err := m.fetcher.Fetch(ctx, task.params())
	if err != nil {
		result.Error = err
		return result
	}
	result.Incomplete = !snap.Complete

	for _, sink := range m.sinks {
		if err := sink.Accept(ctx, snap); err != nil {
			m.logger.Warn("sink rejected snapshot",
				zap.String("task", task.String()),
				zap.Error(err),
			)
			result.Error = err
			return result
		}
	}

	result.Success = true
	m.logger.Info("fetched",
		zap.String("task", task.String()),
		zap.Float64("spot", snap.Spot),
		zap.Float64("net_total", snap.NetTotal),
		zap.Bool("complete", snap.Complete),
	)
	return result
}
