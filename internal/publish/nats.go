// Package publish pushes aggregated snapshots to NATS for downstream
// consumers. Delivery is fire-and-forget core NATS; the history store is
// the durable record.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/config"
	"github.com/dgnsrekt/gexstream/internal/gex"
)

// Publisher sends snapshots to {prefix}.{underlying}.{expiration}.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials the NATS server. Reconnects are handled by the client;
// publishes during an outage fail and are logged, not queued.
func Connect(cfg config.PublishConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name("gexstream"),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected, reconnecting", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", cfg.URL))
	return &Publisher{nc: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

func (p *Publisher) subject(snap *gex.Snapshot) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, snap.Underlying, snap.Expiration)
}

// Accept publishes one snapshot, satisfying the poll sink contract.
func (p *Publisher) Accept(_ context.Context, snap *gex.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	subject := p.subject(snap)
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	p.logger.Debug("snapshot published",
		zap.String("subject", subject),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

// Close drains the connection so in-flight publishes land before exit.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
		p.nc.Close()
	}
}
