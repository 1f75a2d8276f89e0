package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/auth"
	"github.com/dgnsrekt/gexstream/internal/config"
	"github.com/dgnsrekt/gexstream/internal/dxlink"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeFeed answers the dxLink handshake and serves scripted market data.
// On subscription it emits a trade for the underlying, and Greeks,
// Summary, and Trade for every subscribed option symbol.
type fakeFeed struct {
	t          *testing.T
	spot       float64
	rejectAuth bool

	mu         sync.Mutex
	subscribed []string
}

func (f *fakeFeed) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := func(v string) {
		conn.WriteMessage(websocket.TextMessage, []byte(v))
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.t.Errorf("undecodable client frame: %s", raw)
			return
		}

		switch msg["type"] {
		case "SETUP":
			send(`{"type":"SETUP","channel":0,"version":"1.0.0","keepaliveTimeout":60,"acceptKeepaliveTimeout":60}`)
		case "AUTH":
			if f.rejectAuth {
				send(`{"type":"AUTH_STATE","channel":0,"state":"UNAUTHORIZED"}`)
				continue
			}
			send(`{"type":"AUTH_STATE","channel":0,"state":"AUTHORIZED"}`)
		case "CHANNEL_REQUEST":
			send(`{"type":"CHANNEL_OPENED","channel":1,"service":"FEED"}`)
		case "FEED_SUBSCRIPTION":
			add, _ := msg["add"].([]any)
			var items []string
			seen := map[string]bool{}
			for _, a := range add {
				entry, _ := a.(map[string]any)
				sym, _ := entry["symbol"].(string)
				f.mu.Lock()
				f.subscribed = append(f.subscribed, sym)
				f.mu.Unlock()
				if seen[sym] {
					continue
				}
				seen[sym] = true
				if strings.HasPrefix(sym, ".") {
					items = append(items,
						fmt.Sprintf(`{"eventType":"Greeks","eventSymbol":"%s","gamma":0.05,"delta":0.5,"theta":-0.4,"vega":1.1,"volatility":0.2}`, sym),
						fmt.Sprintf(`{"eventType":"Summary","eventSymbol":"%s","openInterest":1000,"prevDayClosePrice":10}`, sym),
						fmt.Sprintf(`{"eventType":"Trade","eventSymbol":"%s","price":1.25,"dayVolume":500}`, sym),
					)
				} else {
					items = append(items,
						fmt.Sprintf(`{"eventType":"Trade","eventSymbol":"%s","price":%v,"dayVolume":100}`, sym, f.spot),
					)
				}
			}
			if len(items) > 0 {
				send(`{"type":"FEED_DATA","channel":1,"data":[` + strings.Join(items, ",") + `]}`)
			}
		}
	}
}

// newTestFetcher wires a fetcher against fake auth and feed servers.
func newTestFetcher(t *testing.T, feed *fakeFeed) *Fetcher {
	t.Helper()
	feed.t = t

	feedSrv := httptest.NewServer(http.HandlerFunc(feed.handler))
	t.Cleanup(feedSrv.Close)
	wsURL := "ws" + strings.TrimPrefix(feedSrv.URL, "http")

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			fmt.Fprint(w, `{"access_token":"access-1","expires_in":900}`)
		case "/api-quote-tokens":
			fmt.Fprintf(w, `{"data":{"token":"stream-1","websocket-url":%q}}`, wsURL)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(apiSrv.Close)

	tokens, err := auth.NewManager(config.AuthConfig{
		AuthHost:     apiSrv.URL,
		APIHost:      apiSrv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "refresh",
		TokenCache:   filepath.Join(t.TempDir(), "tokens.json"),
		TimeoutSec:   5,
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	return New(tokens, config.FeedConfig{
		KeepaliveSec:   60,
		AuthTimeoutSec: 5,
		WindowSec:      10,
		SpotTimeoutSec: 3,
		StrikesAbove:   25,
		StrikesBelow:   25,
	}, zap.NewNop())
}

func TestFetchEndToEnd(t *testing.T) {
	feed := &fakeFeed{spot: 6001.3}
	f := newTestFetcher(t, feed)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snap, err := f.Fetch(ctx, Params{
		Underlying:   "SPX",
		Expiration:   "251219",
		StrikesAbove: 2,
		StrikesBelow: 2,
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if !snap.Complete {
		t.Error("expected complete snapshot")
	}
	if snap.Spot != 6001.3 {
		t.Errorf("expected live spot 6001.3, got %v", snap.Spot)
	}
	if len(snap.Strikes) != 5 {
		t.Fatalf("expected 5 strikes, got %d", len(snap.Strikes))
	}
	// Center rounds to 6000 at increment 5.
	if snap.Strikes[2].Strike != 6000 {
		t.Errorf("expected center strike 6000, got %v", snap.Strikes[2].Strike)
	}
	// Every strike: 0.05 * 1000 * 100 * spot for both sides, net zero.
	wantSide := 0.05 * 1000 * 100 * 6001.3
	if got := snap.Strikes[0].CallGEX; got != wantSide {
		t.Errorf("expected call gex %v, got %v", wantSide, got)
	}
	if snap.Strikes[0].NetGEX != 0 {
		t.Errorf("expected symmetric net gex 0, got %v", snap.Strikes[0].NetGEX)
	}
	if snap.ZeroGammaLevel != nil {
		t.Errorf("all-zero nets must not report a level, got %v", *snap.ZeroGammaLevel)
	}
	if snap.Underlying != "SPX" || snap.Expiration != "251219" {
		t.Errorf("unexpected identity %s/%s", snap.Underlying, snap.Expiration)
	}
	if snap.FetchID == "" {
		t.Error("expected a fetch id")
	}
}

func TestFetchSpotOverrideSkipsDiscovery(t *testing.T) {
	feed := &fakeFeed{spot: 9999}
	f := newTestFetcher(t, feed)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snap, err := f.Fetch(ctx, Params{
		Underlying:   "SPX",
		Expiration:   "251219",
		StrikesAbove: 1,
		StrikesBelow: 1,
		SpotOverride: 5800,
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if snap.Spot != 5800 {
		t.Errorf("expected override spot 5800, got %v", snap.Spot)
	}
	if snap.Strikes[1].Strike != 5800 {
		t.Errorf("expected chain centered at 5800, got %v", snap.Strikes[1].Strike)
	}
}

func TestFetchAuthRejection(t *testing.T) {
	feed := &fakeFeed{spot: 6000, rejectAuth: true}
	f := newTestFetcher(t, feed)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := f.Fetch(ctx, Params{Underlying: "SPX", Expiration: "251219"})
	if !errors.Is(err, dxlink.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// The transport must be closed before any subscription goes out.
	feed.mu.Lock()
	defer feed.mu.Unlock()
	if len(feed.subscribed) != 0 {
		t.Errorf("subscriptions sent after auth rejection: %v", feed.subscribed)
	}
}

func TestParamsResolve(t *testing.T) {
	cfg := config.FeedConfig{StrikesAbove: 25, StrikesBelow: 25}

	p, err := (&Params{Underlying: "NDX", Expiration: "251219"}).resolve(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if p.Prefix != "NDXP" || p.Increment != 25 {
		t.Errorf("unexpected preset resolution %+v", p)
	}
	if p.StrikesAbove != 25 || p.StrikesBelow != 25 {
		t.Errorf("expected config defaults, got %+v", p)
	}

	if _, err := (&Params{Underlying: "XSP", Expiration: "251219"}).resolve(cfg); err == nil {
		t.Error("expected error for unknown underlying without prefix")
	}

	p, err = (&Params{Underlying: "XSP", Expiration: "251219", Prefix: "XSP", Increment: 1}).resolve(cfg)
	if err != nil {
		t.Fatalf("custom mode failed: %v", err)
	}
	if p.Prefix != "XSP" || p.Increment != 1 {
		t.Errorf("custom values not honored: %+v", p)
	}

	if _, err := (&Params{Underlying: "SPX", Expiration: "2512"}).resolve(cfg); err == nil {
		t.Error("expected error for malformed expiration")
	}
}
