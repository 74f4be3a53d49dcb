package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/matheus3301/grouparchive/internal/attachment"
	"github.com/matheus3301/grouparchive/internal/config"
	"github.com/matheus3301/grouparchive/internal/groupme"
	"github.com/matheus3301/grouparchive/internal/httpclient"
	"github.com/matheus3301/grouparchive/internal/metrics"
	"github.com/matheus3301/grouparchive/internal/store"
	intsync "github.com/matheus3301/grouparchive/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ExtractParams configures one extraction run.
type ExtractParams struct {
	Settings

	Group            string
	Download         bool
	DownloadLocation string // overrides the config file when set
	Stats            bool
	Stdout           io.Writer // receives --stats output; nil = os.Stdout
}

// ExtractModule wires the extraction stage.
func ExtractModule(p ExtractParams) fx.Option {
	if p.Command == "" {
		p.Command = "grouparchive"
	}
	if p.Stdout == nil {
		p.Stdout = os.Stdout
	}
	return fx.Module("extract",
		common(p.Settings),
		fx.Supply(p),
		fx.Provide(
			provideGroupMe,
			provideResolver,
			provideExtractor,
			newExtractRun,
		),
		fx.Invoke(func(d stageDeps, r *extractRun) {
			registerStage(d, r.run)
		}),
	)
}

func provideGroupMe(s Settings, cfg *config.Config) (*groupme.Client, error) {
	token, err := config.Credential(config.GroupMeTokenEnv)
	if err != nil {
		return nil, err
	}
	return groupme.New(cfg.GroupMeBaseURL, token, httpclient.Options{
		Name: s.Command,
		RPS:  cfg.GroupMeRPS,
		Dial: s.Dial,
	}), nil
}

func provideResolver(p ExtractParams, cfg *config.Config, gm *groupme.Client, logger *zap.Logger) (*attachment.Resolver, error) {
	dir := cfg.DownloadLocation
	if p.DownloadLocation != "" {
		dir = p.DownloadLocation
	}
	if p.Download {
		if err := attachment.EnsureDir(dir); err != nil {
			return nil, err
		}
	}
	return attachment.NewResolver(gm, dir, p.Download, logger), nil
}

func provideExtractor(db *store.DB, r *attachment.Resolver, m *metrics.Metrics, logger *zap.Logger) *intsync.Extractor {
	return intsync.NewExtractor(db, r, m, logger)
}

type extractRun struct {
	p      ExtractParams
	cfg    *config.Config
	gm     *groupme.Client
	ex     *intsync.Extractor
	db     *store.DB
	logger *zap.Logger
}

func newExtractRun(p ExtractParams, cfg *config.Config, gm *groupme.Client, ex *intsync.Extractor, db *store.DB, logger *zap.Logger) *extractRun {
	return &extractRun{p: p, cfg: cfg, gm: gm, ex: ex, db: db, logger: logger}
}

func (r *extractRun) run(ctx context.Context) error {
	group, err := r.gm.FindGroup(ctx, r.p.Group)
	if err != nil {
		return err
	}
	r.logger.Info("group found",
		zap.String("group_id", group.ID),
		zap.String("name", group.Name),
		zap.Int("messages", group.MessageCount()))

	members, err := r.gm.Members(ctx, group.ID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}

	limit := r.cfg.PageSize
	if limit <= 0 || limit > groupme.MaxPageSize {
		limit = groupme.MaxPageSize
	}
	if _, err := r.ex.Run(ctx, intsync.Job{
		Members: members,
		Pager:   groupme.NewPager(r.gm, group.ID, limit),
		Total:   group.MessageCount(),
	}); err != nil {
		return err
	}

	if r.p.Stats {
		st, err := r.db.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.p.Stdout, "users        %d\nmessages     %d\nattachments  %d (%d local)\n",
			st.Users, st.Messages, st.Attachments, st.Local)
	}
	return nil
}
