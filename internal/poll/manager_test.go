package poll

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/fetch"
	"github.com/dgnsrekt/gexstream/internal/gex"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls []string

	fail       map[string]error
	incomplete map[string]bool
}

func (s *stubFetcher) Fetch(_ context.Context, params fetch.Params) (*gex.Snapshot, error) {
	s.mu.Lock()
	s.calls = append(s.calls, params.Underlying)
	s.mu.Unlock()

	if err := s.fail[params.Underlying]; err != nil {
		return nil, err
	}
	return &gex.Snapshot{
		Underlying: params.Underlying,
		Expiration: params.Expiration,
		Complete:   !s.incomplete[params.Underlying],
	}, nil
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []*gex.Snapshot
	err   error
}

func (r *recordingSink) Accept(_ context.Context, snap *gex.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.snaps = append(r.snaps, snap)
	return nil
}

func TestExecute(t *testing.T) {
	fetcher := &stubFetcher{
		fail:       map[string]error{"NDX": errors.New("feed down")},
		incomplete: map[string]bool{"QQQ": true},
	}
	sink := &recordingSink{}
	m := NewManager(fetcher, []Sink{sink}, 2, zap.NewNop())

	tasks := []Task{
		{Underlying: "SPX", Expiration: "251219"},
		{Underlying: "NDX", Expiration: "251219"},
		{Underlying: "QQQ", Expiration: "251219"},
	}

	result, err := m.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if result.Total != 3 || result.Success != 2 || result.Failed != 1 || result.Incomplete != 1 {
		t.Errorf("unexpected cycle result %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.snaps) != 2 {
		t.Errorf("expected 2 snapshots delivered, got %d", len(sink.snaps))
	}
}

func TestExecuteEmpty(t *testing.T) {
	m := NewManager(&stubFetcher{}, nil, 2, zap.NewNop())
	result, err := m.Execute(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestExecuteSinkFailureMarksTaskFailed(t *testing.T) {
	fetcher := &stubFetcher{}
	sink := &recordingSink{err: errors.New("disk full")}
	m := NewManager(fetcher, []Sink{sink}, 1, zap.NewNop())

	result, err := m.Execute(context.Background(), []Task{
		{Underlying: "SPX", Expiration: "251219"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 || result.Success != 0 {
		t.Errorf("expected sink failure to fail the task, got %+v", result)
	}
}
