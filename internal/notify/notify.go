package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/poll"
)

// Notifier is the interface for sending poll cycle notifications.
type Notifier interface {
	SendCycle(ctx context.Context, result *poll.CycleResult, duration time.Duration) error
	SendFailure(ctx context.Context, result *poll.CycleResult, duration time.Duration, err error) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// SendCycle reports a completed poll cycle. Cycles with failed tasks are
// escalated to high priority.
func (c *Client) SendCycle(ctx context.Context, result *poll.CycleResult, duration time.Duration) error {
	if !c.config.Enabled {
		return nil
	}

	title := "GEX Poll Cycle Complete"
	tags := c.config.Tags + ",white_check_mark"
	priority := c.config.Priority
	if result.Failed > 0 {
		title = "GEX Poll Cycle: Partial Failure"
		tags = c.config.Tags + ",warning"
		priority = "high"
	}

	return c.send(ctx, title, FormatCycleMessage(result, duration), tags, priority)
}

// SendFailure reports a cycle that aborted entirely.
func (c *Client) SendFailure(ctx context.Context, result *poll.CycleResult, duration time.Duration, err error) error {
	if !c.config.Enabled {
		return nil
	}

	title := "GEX Poll Cycle Failed"
	message := FormatFailureMessage(result, duration, err)
	tags := c.config.Tags + ",x"
	priority := "high" // Override to high priority for failures

	return c.send(ctx, title, message, tags, priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// SendCycle is a no-op.
func (n *NoopNotifier) SendCycle(_ context.Context, _ *poll.CycleResult, _ time.Duration) error {
	return nil
}

// SendFailure is a no-op.
func (n *NoopNotifier) SendFailure(_ context.Context, _ *poll.CycleResult, _ time.Duration, _ error) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
