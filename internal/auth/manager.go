package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/gexstream/internal/config"
)

// Manager owns the access and streaming token lifecycles. The two kinds
// have independent expiry policies and are refreshed under independent
// locks: concurrent callers for a stale kind observe exactly one refresh,
// losers simply read the winner's freshly written token.
type Manager struct {
	cfg        config.AuthConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *Cache
	logger     *zap.Logger

	// accessMu and streamingMu serialize the read-check-refresh-write
	// sequence per token kind. stateMu guards the fields themselves so
	// persist can snapshot both kinds without holding both kind locks.
	accessMu    sync.Mutex
	streamingMu sync.Mutex

	stateMu      sync.Mutex
	access       Token
	streaming    Token
	websocketURL string
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type quoteTokenResponse struct {
	Data struct {
		Token        string `json:"token"`
		WebsocketURL string `json:"websocket-url"`
	} `json:"data"`
}

// Streaming tokens last about a day upstream; record a conservative 20h.
const streamingTokenLifetime = 20 * 60 * 60

func NewManager(cfg config.AuthConfig, logger *zap.Logger) (*Manager, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	m := &Manager{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		cache:   NewCache(cfg.TokenCache),
		logger:  logger,
	}

	// Read the persisted cache at startup; a corrupt cache is discarded.
	cf, err := m.cache.Load()
	if err != nil {
		logger.Warn("could not load token cache", zap.Error(err))
		return m, nil
	}
	if cf.Access != nil {
		m.access = *cf.Access
	}
	if cf.Streaming != nil {
		m.streaming = *cf.Streaming
		m.websocketURL = cf.WebsocketURL
	}
	return m, nil
}

// AccessToken returns a valid OAuth access token, refreshing via the
// refresh-token grant when the cached token is stale or force is set.
func (m *Manager) AccessToken(ctx context.Context, force bool) (Token, error) {
	m.accessMu.Lock()
	defer m.accessMu.Unlock()

	m.stateMu.Lock()
	cached := m.access
	m.stateMu.Unlock()

	if !force && cached.Valid() {
		m.logger.Debug("using cached access token",
			zap.Time("expiresAt", cached.ExpiresAt()))
		return cached, nil
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return Token{}, fmt.Errorf("rate limiter: %w", err)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.cfg.RefreshToken},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.cfg.AuthHost+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("exchanging refresh token: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return Token{}, fmt.Errorf("reading token response: %w", readErr)
	}

	if resp.StatusCode == http.StatusUnauthorized ||
		(resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "invalid_grant")) {
		return Token{}, fmt.Errorf("%w: refresh token rejected, check GEXSTREAM_REFRESH_TOKEN and client credentials", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tr accessTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.ExpiresIn == 0 {
		tr.ExpiresIn = 900
	}

	tok := Token{
		Value:      tr.AccessToken,
		Kind:       KindAccess,
		ObtainedAt: time.Now(),
		ExpiresIn:  tr.ExpiresIn,
	}

	m.stateMu.Lock()
	m.access = tok
	m.stateMu.Unlock()
	m.persist()

	m.logger.Info("access token refreshed",
		zap.Int64("expiresIn", tr.ExpiresIn))
	return tok, nil
}

// StreamerToken returns a valid streaming token plus the feed's websocket
// URL, exchanging the access token against the quote-token endpoint when
// the cached streaming token is stale or force is set.
func (m *Manager) StreamerToken(ctx context.Context, force bool) (Token, string, error) {
	m.streamingMu.Lock()
	defer m.streamingMu.Unlock()

	m.stateMu.Lock()
	cached, wsURL := m.streaming, m.websocketURL
	m.stateMu.Unlock()

	if !force && cached.Valid() && wsURL != "" {
		m.logger.Debug("using cached streaming token",
			zap.Time("expiresAt", cached.ExpiresAt()))
		return cached, wsURL, nil
	}

	accessToken, err := m.AccessToken(ctx, false)
	if err != nil {
		return Token{}, "", err
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return Token{}, "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.cfg.APIHost+"/api-quote-tokens", nil)
	if err != nil {
		return Token{}, "", fmt.Errorf("creating quote token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken.Value)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Token{}, "", fmt.Errorf("fetching streaming token: %w", err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return Token{}, "", fmt.Errorf("reading quote token response: %w", readErr)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return Token{}, "", fmt.Errorf("%w: access token rejected by quote-token endpoint", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, "", fmt.Errorf("quote-token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var qr quoteTokenResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return Token{}, "", fmt.Errorf("decoding quote token response: %w", err)
	}
	if qr.Data.Token == "" || qr.Data.WebsocketURL == "" {
		return Token{}, "", fmt.Errorf("unexpected quote token response: %s", string(body))
	}

	tok := Token{
		Value:      qr.Data.Token,
		Kind:       KindStreaming,
		ObtainedAt: time.Now(),
		ExpiresIn:  streamingTokenLifetime,
	}

	m.stateMu.Lock()
	m.streaming = tok
	m.websocketURL = qr.Data.WebsocketURL
	m.stateMu.Unlock()
	m.persist()

	m.logger.Info("streaming token refreshed",
		zap.String("websocketURL", qr.Data.WebsocketURL))
	return tok, qr.Data.WebsocketURL, nil
}

// persist rewrites the cache file with whatever tokens are currently held.
func (m *Manager) persist() {
	m.stateMu.Lock()
	cf := cacheFile{WebsocketURL: m.websocketURL}
	if m.access.Value != "" {
		tok := m.access
		cf.Access = &tok
	}
	if m.streaming.Value != "" {
		tok := m.streaming
		cf.Streaming = &tok
	}
	m.stateMu.Unlock()

	if err := m.cache.Save(cf); err != nil {
		m.logger.Warn("could not persist token cache", zap.Error(err))
	}
}
