package app

import (
	"context"

	"github.com/matheus3301/grouparchive/internal/config"
	"github.com/matheus3301/grouparchive/internal/httpclient"
	"github.com/matheus3301/grouparchive/internal/metrics"
	"github.com/matheus3301/grouparchive/internal/paths"
	"github.com/matheus3301/grouparchive/internal/replay"
	"github.com/matheus3301/grouparchive/internal/slack"
	"github.com/matheus3301/grouparchive/internal/store"
	intsync "github.com/matheus3301/grouparchive/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ReplayParams configures one replay run.
type ReplayParams struct {
	Settings

	Channel            string
	AttachmentLocation string
	StartIndex         int
	StartSet           bool // StartIndex was given explicitly and beats Resume
	Resume             bool

	Sleeper replay.Sleeper // optional override for testing
}

// ReplayModule wires the replay stage.
func ReplayModule(p ReplayParams) fx.Option {
	if p.Command == "" {
		p.Command = "groupreplay"
	}
	return fx.Module("replay",
		common(p.Settings),
		fx.Supply(p),
		fx.Provide(
			provideReconciler,
			provideReplayer,
		),
		fx.Invoke(func(d stageDeps, rp *replay.Replayer) {
			registerStage(d, func(ctx context.Context) error {
				_, err := rp.Run(ctx)
				return err
			})
		}),
	)
}

func provideReconciler(db *store.DB, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, logger)
}

func provideReplayer(p ReplayParams, cfg *config.Config, db *store.DB, rec *intsync.Reconciler, m *metrics.Metrics, logger *zap.Logger) (*replay.Replayer, error) {
	channel, err := paths.ChannelName(p.Channel)
	if err != nil {
		return nil, err
	}
	token, err := config.Credential(config.SlackTokenEnv)
	if err != nil {
		return nil, err
	}

	start := p.StartIndex
	if !p.StartSet && p.Resume {
		start, err = rec.LoadOrdinal(channel)
		if err != nil {
			return nil, err
		}
		logger.Info("resuming from checkpoint", zap.String("channel", channel), zap.Int("start_ordinal", start))
	}

	location := cfg.AttachmentLocation
	if p.AttachmentLocation != "" {
		location = p.AttachmentLocation
	}
	logger.Debug("attachments are posted by remote URL", zap.String("attachment_location", location))

	poster := slack.New(cfg.SlackBaseURL, token, httpclient.Options{
		Name: p.Command,
		RPS:  cfg.SlackRPS,
		Dial: p.Dial,
	})
	return replay.NewReplayer(replay.Config{
		Credential:        token,
		Channel:           channel,
		Store:             db,
		StartOrdinal:      start,
		ProgressEvery:     cfg.ProgressEvery,
		PeriodicCooldown:  cfg.PeriodicCooldown.Duration,
		RateLimitCooldown: cfg.RateLimitCooldown.Duration,
	}, poster, p.Sleeper, rec, m, logger)
}
