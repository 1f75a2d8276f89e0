package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/gex"
	"github.com/dgnsrekt/gexstream/internal/store"
)

// Broadcaster fans each new snapshot out to connected SSE clients. Slow
// clients drop updates rather than block the poll loop.
type Broadcaster struct {
	latest *store.Latest
	logger *zap.Logger

	mu       sync.RWMutex
	sequence uint64
	clients  map[*sseClient]bool
}

type sseClient struct {
	underlying string // empty subscribes to all
	dataCh     chan []byte
	doneCh     chan struct{}
}

func NewBroadcaster(latest *store.Latest, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		latest:  latest,
		logger:  logger,
		clients: make(map[*sseClient]bool),
	}
}

// Accept delivers one snapshot to every subscribed client, satisfying
// the poll sink contract.
func (b *Broadcaster) Accept(_ context.Context, snap *gex.Snapshot) error {
	event, err := b.formatEvent("snapshot", snap)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		if client.underlying != "" && client.underlying != snap.Underlying {
			continue
		}
		select {
		case client.dataCh <- event:
		default:
			// Channel full, client is slow
			b.logger.Debug("client channel full, dropping snapshot",
				zap.String("underlying", snap.Underlying),
			)
		}
	}
	return nil
}

// HandleSSE streams snapshot events. An optional ?underlying= filter
// restricts the stream to one symbol. The current snapshot, if any, is
// sent immediately on connect.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := &sseClient{
		underlying: r.URL.Query().Get("underlying"),
		dataCh:     make(chan []byte, 10),
		doneCh:     make(chan struct{}),
	}

	b.addClient(client)
	defer b.removeClient(client)

	b.logger.Info("stream client connected",
		zap.String("underlying", client.underlying),
		zap.String("remote_addr", r.RemoteAddr),
	)

	// Send what we already have so new clients render immediately.
	for _, sym := range b.latest.Underlyings() {
		if client.underlying != "" && client.underlying != sym {
			continue
		}
		snap, ok := b.latest.Get(sym)
		if !ok {
			continue
		}
		event, err := b.formatEvent("snapshot", snap)
		if err != nil {
			continue
		}
		if _, err := w.Write(event); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			b.logger.Info("stream client disconnected",
				zap.String("remote_addr", r.RemoteAddr),
			)
			return
		case <-client.doneCh:
			return
		case event := <-client.dataCh:
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (b *Broadcaster) addClient(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
}

func (b *Broadcaster) removeClient(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
	close(client.doneCh)
}

func (b *Broadcaster) formatEvent(eventType string, data any) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.sequence++
	seq := b.sequence
	b.mu.Unlock()

	return []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", eventType, seq, jsonData)), nil
}
