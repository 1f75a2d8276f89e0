package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/gex"
	"github.com/dgnsrekt/gexstream/internal/store"
)

func testSnapshot(underlying, expiration string, net float64) *gex.Snapshot {
	return &gex.Snapshot{
		FetchID:      "fetch-1",
		Underlying:   underlying,
		Expiration:   expiration,
		Spot:         6000,
		GeneratedAt:  time.Date(2026, 8, 21, 14, 30, 0, 0, time.UTC),
		Strikes:      []gex.StrikeRecord{{Strike: 6000, NetGEX: net}},
		NetTotal:     net,
		MaxGEXStrike: 6000,
		Complete:     true,
	}
}

func newTestServer(t *testing.T) (*Server, *Broadcaster, *store.Latest, *store.History) {
	t.Helper()
	latest := store.NewLatest()
	history := store.NewHistory(t.TempDir(), zap.NewNop())
	stream := NewBroadcaster(latest, zap.NewNop())
	srv := NewServer(latest, history, stream, zap.NewNop())
	return srv, stream, latest, history
}

func TestHandleLatest(t *testing.T) {
	srv, _, latest, _ := newTestServer(t)
	router := NewRouter(srv, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/gex/SPX", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any snapshot, got %d", rec.Code)
	}

	latest.Put(testSnapshot("SPX", "251219", 1e6))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/gex/SPX", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snap gex.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Underlying != "SPX" || snap.NetTotal != 1e6 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestHandleHistory(t *testing.T) {
	srv, _, _, history := newTestServer(t)
	router := NewRouter(srv, zap.NewNop())

	if err := history.Append(testSnapshot("SPX", "251219", 1)); err != nil {
		t.Fatal(err)
	}
	if err := history.Append(testSnapshot("SPX", "251219", 2)); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/gex/SPX/history?expiration=251219", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count     int            `json:"count"`
		Snapshots []gex.Snapshot `json:"snapshots"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || len(resp.Snapshots) != 2 {
		t.Errorf("expected 2 snapshots, got %+v", resp)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/gex/SPX/history?expiration=nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed expiration, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/gex/NDX/history?expiration=251219", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing history, got %d", rec.Code)
	}
}

func TestHandleHealthAndUnderlyings(t *testing.T) {
	srv, _, latest, _ := newTestServer(t)
	router := NewRouter(srv, zap.NewNop())
	latest.Put(testSnapshot("SPX", "251219", 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/underlyings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Count       int `json:"count"`
		Underlyings []struct {
			Symbol      string `json:"symbol"`
			HasSnapshot bool   `json:"has_snapshot"`
		} `json:"underlyings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count == 0 {
		t.Fatal("expected presets listed")
	}
	for _, u := range resp.Underlyings {
		if u.Symbol == "SPX" && !u.HasSnapshot {
			t.Error("SPX should report a snapshot")
		}
	}
}

func TestStreamDeliversSnapshots(t *testing.T) {
	srv, stream, latest, _ := newTestServer(t)
	router := NewRouter(srv, zap.NewNop())

	latest.Put(testSnapshot("SPX", "251219", 1))

	httpSrv := httptest.NewServer(router)
	defer httpSrv.Close()

	resp, err := http.Get(httpSrv.URL + "/stream?underlying=SPX")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var sb strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("stream read failed: %v", err)
			}
			if line == "\n" {
				return sb.String()
			}
			sb.WriteString(line)
		}
	}

	// Initial snapshot arrives on connect.
	first := readEvent()
	if !strings.Contains(first, "event: snapshot") || !strings.Contains(first, `"SPX"`) {
		t.Fatalf("unexpected initial event: %q", first)
	}

	// A new snapshot is broadcast live.
	go func() {
		time.Sleep(50 * time.Millisecond)
		stream.Accept(context.Background(), testSnapshot("SPX", "251219", 2))
		// Filtered out for this client.
		stream.Accept(context.Background(), testSnapshot("NDX", "251219", 3))
	}()

	second := readEvent()
	if !strings.Contains(second, `"net_total":2`) {
		t.Fatalf("expected live snapshot with net 2, got %q", second)
	}
}
