// Package notify publishes content events to other systems.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/contentloader/internal/config"
	"git.home.luguber.info/inful/contentloader/internal/foundation/errors"
	"git.home.luguber.info/inful/contentloader/internal/loader"
	"git.home.luguber.info/inful/contentloader/internal/logfields"
)

// Publisher delivers content events.
type Publisher interface {
	Publish(ctx context.Context, ev loader.ContentEvent) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, loader.ContentEvent) error { return nil }
func (NoopPublisher) Close() error                                      { return nil }

// NATSPublisher publishes content events on JetStream and keeps the latest
// event per unit in a key-value bucket.
type NATSPublisher struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	kv       jetstream.KeyValue
	subject  string
	kvBucket string
	logger   *slog.Logger
}

// NewNATSPublisher connects to NATS and prepares the status bucket.
func NewNATSPublisher(ctx context.Context, cfg *config.NotifyConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.ConfigError("notify is disabled").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("contentloader"))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).Retryable().Build()
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to create JetStream context").Build()
	}

	p := &NATSPublisher{
		conn:     conn,
		js:       js,
		subject:  cfg.Subject,
		kvBucket: cfg.KVBucket,
		logger:   logger,
	}
	if err := p.initKVBucket(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("NATS publisher initialized",
		slog.String("url", cfg.NATSURL),
		slog.String("subject", cfg.Subject),
		slog.String("kv_bucket", cfg.KVBucket))
	return p, nil
}

func (p *NATSPublisher) initKVBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	kv, err := p.js.KeyValue(ctx, p.kvBucket)
	if err == nil {
		p.kv = kv
		return nil
	}

	kv, err = p.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      p.kvBucket,
		Description: "Latest content event per unit",
		History:     1,
	})
	if err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to create KV bucket").
			WithContext("bucket", p.kvBucket).Build()
	}
	p.kv = kv
	p.logger.Info("Created KV bucket for unit status", slog.String("bucket", p.kvBucket))
	return nil
}

// Publish sends the event on the kind's subject and stores it as the unit's
// latest status.
func (p *NATSPublisher) Publish(ctx context.Context, ev loader.ContentEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal content event").Build()
	}

	subject := Subject(p.subject, ev.Kind)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to publish content event").
			WithContext("subject", subject).Retryable().Build()
	}
	if _, err := p.kv.Put(ctx, StatusKey(ev.Unit), data); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to store unit status").
			WithContext("unit", ev.Unit).Retryable().Build()
	}

	p.logger.Debug("Published content event",
		logfields.Unit(ev.Unit), logfields.Event(ev.Kind), slog.String("subject", subject))
	return nil
}

// Close drains the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// Subject returns the subject for an event kind: prefix plus the kind's
// last dotted segment, for example "contentloader.content.loaded".
func Subject(prefix, kind string) string {
	suffix := kind
	if i := strings.LastIndex(kind, "."); i >= 0 {
		suffix = kind[i+1:]
	}
	return strings.TrimSuffix(prefix, ".") + "." + suffix
}

// StatusKey maps a unit name onto a valid KV key. Characters outside the
// allowed key alphabet become underscores.
func StatusKey(unitName string) string {
	var b strings.Builder
	for _, r := range unitName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '=', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	key := strings.Trim(b.String(), ".")
	if key == "" {
		return "_"
	}
	return key
}
