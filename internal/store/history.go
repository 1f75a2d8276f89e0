// Package store persists aggregated snapshots as zstd-compressed JSONL,
// one file per expiration and underlying, and keeps the latest snapshot
// per underlying in memory for serving.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/gex"
)

var ErrNotFound = errors.New("no history for key")

// History appends snapshots to {dir}/{expiration}/{underlying}.jsonl.zst.
// Each append writes one self-contained zstd frame, so a crash between
// appends never corrupts earlier records.
type History struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex
}

func NewHistory(dir string, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{dir: dir, logger: logger}
}

func (h *History) path(expiration, underlying string) string {
	return filepath.Join(h.dir, expiration, underlying+".jsonl.zst")
}

// Append adds one snapshot to the history file for its key.
func (h *History) Append(snap *gex.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	path := h.path(snap.Expiration, snap.Underlying)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}

	line, err := json.Marshal(snap)
	if err != nil {
		enc.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	line = append(line, '\n')

	if _, err := enc.Write(line); err != nil {
		enc.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flushing zstd frame: %w", err)
	}

	h.logger.Debug("snapshot appended",
		zap.String("underlying", snap.Underlying),
		zap.String("expiration", snap.Expiration),
		zap.String("path", path),
	)
	return nil
}

// Load reads every snapshot recorded for one expiration/underlying, in
// append order.
func (h *History) Load(expiration, underlying string) ([]gex.Snapshot, error) {
	f, err := os.Open(h.path(expiration, underlying))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	var out []gex.Snapshot
	scanner := bufio.NewScanner(dec)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap gex.Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		out = append(out, snap)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Expirations lists the expiration directories present, sorted ascending.
func (h *History) Expirations() ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
