// Package replay delivers the snapshot to the destination channel in
// chronological order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/grouparchive/internal/metrics"
	"github.com/matheus3301/grouparchive/internal/slack"
	"github.com/matheus3301/grouparchive/internal/status"
	"github.com/matheus3301/grouparchive/internal/store"
	"go.uber.org/zap"
)

// Poster is the destination channel API.
type Poster interface {
	CreateChannel(ctx context.Context, name string) (*slack.Response, error)
	PostMessage(ctx context.Context, channel string, p slack.Payload) (*slack.Response, error)
}

// Checkpointer records the next ordinal to deliver after every row.
type Checkpointer interface {
	SaveOrdinal(channel string, next int) error
}

// FatalError aborts a run. Ordinal is the row that failed; re-running with
// it as the start ordinal retries that row.
type FatalError struct {
	Ordinal   int
	MessageID string
	Err       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("deliver row %d (message %s): %v", e.Ordinal, e.MessageID, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Result summarizes a replay run.
type Result struct {
	// SnapshotRows is the size of the whole ordered snapshot; Total is the
	// part of it this run covers.
	SnapshotRows int
	Total        int
	Processed   int
	Sent        int
	Failed      int
	RateLimited int
	// NextOrdinal is the absolute ordinal a follow-up run should start at.
	NextOrdinal int
}

// Replayer posts snapshot rows one at a time, pausing periodically and
// backing off once when the destination looks rate limited.
type Replayer struct {
	cfg        Config
	poster     Poster
	sleeper    Sleeper
	checkpoint Checkpointer
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewReplayer creates a replayer. cp may be nil to skip checkpointing.
func NewReplayer(cfg Config, poster Poster, sleeper Sleeper, cp Checkpointer, m *metrics.Metrics, logger *zap.Logger) (*Replayer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("replay config: %w", err)
	}
	cfg.applyDefaults()
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		cfg:        cfg,
		poster:     poster,
		sleeper:    sleeper,
		checkpoint: cp,
		metrics:    m,
		logger:     logger.With(zap.String("channel", cfg.Channel)),
	}, nil
}

// Run delivers every row from the configured start ordinal to the end.
func (r *Replayer) Run(ctx context.Context) (*Result, error) {
	name := strings.TrimPrefix(r.cfg.Channel, "#")
	if resp, err := r.poster.CreateChannel(ctx, name); err != nil {
		r.logger.Warn("create channel failed", zap.Error(err))
	} else if resp.Error != "" {
		r.logger.Warn("create channel rejected", zap.String("error", resp.Error))
	}

	size, err := r.cfg.Store.CountOrdered()
	if err != nil {
		return nil, fmt.Errorf("count snapshot: %w", err)
	}
	if r.cfg.StartOrdinal > size {
		r.logger.Warn("start ordinal is past the end of the snapshot",
			zap.Int("start_ordinal", r.cfg.StartOrdinal),
			zap.Int("snapshot_rows", size))
	}

	rows, err := r.cfg.Store.ReadOrdered(r.cfg.StartOrdinal)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	res := &Result{SnapshotRows: size, Total: len(rows), NextOrdinal: r.cfg.StartOrdinal}
	r.logger.Info("replay starting",
		zap.Int("start_ordinal", r.cfg.StartOrdinal),
		zap.Int("rows", len(rows)),
		zap.Int("snapshot_rows", size))

	for i, row := range rows {
		ordinal := r.cfg.StartOrdinal + i
		m := status.NewMachine(ordinal)
		if err := r.deliver(ctx, m, row, res); err != nil {
			return res, &FatalError{Ordinal: ordinal, MessageID: row.MessageID, Err: err}
		}

		res.Processed++
		res.NextOrdinal = ordinal + 1
		if r.checkpoint != nil {
			if err := r.checkpoint.SaveOrdinal(r.cfg.Channel, res.NextOrdinal); err != nil {
				r.logger.Warn("checkpoint not saved", zap.Int("next_ordinal", res.NextOrdinal), zap.Error(err))
			}
		}

		if res.Processed%r.cfg.ProgressEvery == 0 {
			r.logger.Info("replay progress",
				zap.Int("processed", res.Processed),
				zap.Int("total", res.Total),
				zap.Float64("ratio", float64(res.Processed)/float64(res.Total)),
				zap.Int("position", res.NextOrdinal),
				zap.Float64("snapshot_ratio", float64(res.NextOrdinal)/float64(size)))
			r.logger.Info("cooling down to stay under rate limit", zap.Duration("for", r.cfg.PeriodicCooldown))
			r.metrics.Cooldowns.WithLabelValues("periodic").Inc()
			if err := r.sleeper.Sleep(ctx, r.cfg.PeriodicCooldown); err != nil {
				return res, err
			}
		}
	}

	r.logger.Info("replay complete",
		zap.Int("processed", res.Processed),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("rate_limited", res.RateLimited))
	return res, nil
}

// deliver moves one row from Pending to Sent, going through RateLimited
// when the first response cannot be decoded. A second undecodable response
// ends in Fatal; any other transport error leaves the row Pending. Both
// abort the run.
func (r *Replayer) deliver(ctx context.Context, m *status.Machine, row store.Row, res *Result) error {
	payload := BuildPayload(row)
	channel := "#" + strings.TrimPrefix(r.cfg.Channel, "#")

	resp, err := r.poster.PostMessage(ctx, channel, payload)
	var decodeErr *slack.DecodeError
	if errors.As(err, &decodeErr) {
		if err := m.Transition(status.RateLimited); err != nil {
			return err
		}
		res.RateLimited++
		r.metrics.Cooldowns.WithLabelValues("rate_limit").Inc()
		r.logger.Warn("undecodable response, likely rate limited",
			zap.Int("ordinal", m.Ordinal()),
			zap.Duration("sleep", r.cfg.RateLimitCooldown),
			zap.Error(err))
		if err := r.sleeper.Sleep(ctx, r.cfg.RateLimitCooldown); err != nil {
			_ = m.Transition(status.Fatal)
			return err
		}
		resp, err = r.poster.PostMessage(ctx, channel, payload)
		if err != nil {
			_ = m.Transition(status.Fatal)
			return err
		}
	} else if err != nil {
		return err
	}

	if resp.Error != "" {
		res.Failed++
		r.metrics.RowsDelivered.WithLabelValues("failed").Inc()
		r.logger.Error("message rejected by destination",
			zap.Int("ordinal", m.Ordinal()),
			zap.String("msg_id", row.MessageID),
			zap.String("error", resp.Error))
	} else {
		res.Sent++
		r.metrics.RowsDelivered.WithLabelValues("sent").Inc()
	}
	return m.Transition(status.Sent)
}
