// Package progress publishes best-effort transcoding progress to a
// key/value store with expiry.
package progress

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/quatton/batchffmpeg/pkg/kv"
	"github.com/quatton/batchffmpeg/pkg/qlog"
)

const (
	// Namespace prefixes every progress key.
	Namespace = "ffmpeg_batch_progress"
	// TTL is the lifetime of a progress record.
	TTL = 300 * time.Second
)

// Connect opens the progress store. Any failure, including a missing
// address, yields a no-op store; the reason is logged once here and never
// surfaces again.
func Connect(cfg kv.ValkeyConfig, log *qlog.Logger) kv.Store {
	store, err := kv.NewValkeyStore(cfg)
	if err != nil {
		if errors.Is(err, kv.ErrNotConfigured) {
			log.Warn("progress store not configured, progress reporting disabled")
		} else {
			log.Error("failed to connect to progress store, progress reporting disabled", "addr", cfg.Addr, "error", err)
		}
		return kv.NoopStore{}
	}
	log.Info("connected to progress store", "addr", cfg.Addr)
	return store
}

// Key returns the progress key for a job name.
func Key(jobName string) string {
	return Namespace + ":" + jobName
}

// Publisher writes progress fractions for one job.
type Publisher struct {
	store   kv.Store
	key     string
	enabled bool
	log     *qlog.Logger
}

// NewPublisher binds a store to a job name.
func NewPublisher(store kv.Store, jobName string, log *qlog.Logger) *Publisher {
	if store == nil {
		store = kv.NoopStore{}
	}
	_, noop := store.(kv.NoopStore)
	return &Publisher{
		store:   store,
		key:     Key(jobName),
		enabled: !noop,
		log:     log,
	}
}

// Publish writes fraction under the job key with a fixed expiry. Failures
// are logged and otherwise ignored.
func (p *Publisher) Publish(ctx context.Context, fraction float64) {
	if !p.enabled {
		return
	}

	p.log.Debug("current progress",
		"key", p.key,
		"percent", strconv.FormatFloat(fraction*100, 'f', 1, 64)+"%",
	)

	value := strconv.FormatFloat(fraction, 'f', -1, 64)
	if err := p.store.Set(ctx, p.key, []byte(value), TTL); err != nil {
		p.log.Error("failed to update progress store", "key", p.key, "error", err)
	}
}
