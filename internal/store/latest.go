package store

import (
	"sync"

	"github.com/dgnsrekt/gexstream/internal/gex"
)

// Latest holds the most recent snapshot per underlying for serving.
type Latest struct {
	mu    sync.RWMutex
	snaps map[string]*gex.Snapshot
}

func NewLatest() *Latest {
	return &Latest{snaps: make(map[string]*gex.Snapshot)}
}

// Put replaces the snapshot for its underlying.
func (l *Latest) Put(snap *gex.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps[snap.Underlying] = snap
}

// Get returns the latest snapshot for an underlying.
func (l *Latest) Get(underlying string) (*gex.Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap, ok := l.snaps[underlying]
	return snap, ok
}

// Underlyings lists the underlyings with a snapshot present.
func (l *Latest) Underlyings() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.snaps))
	for u := range l.snaps {
		out = append(out, u)
	}
	return out
}
