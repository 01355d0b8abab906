package jobs

import (
    "context"
    "time"

    "github.com/HamedShams/sprint-lens/internal/config"
    "github.com/HamedShams/sprint-lens/internal/repo"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface { RunScheduledAnalysis(ctx context.Context) error }

// lock key shared by every instance so only one runs the scheduled analysis
const analysisLockKey int64 = 731945

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    _, _ = c.AddFunc(cfg.AnalysisCron, cr.analysis)
    return cr
}

func (cr *Cron) Start(){ cr.c.Start() }
func (cr *Cron) Stop(){ cr.c.Stop() }

func (cr *Cron) analysis(){
    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute); defer cancel()
    ok, err := cr.repo.TryAdvisoryLock(ctx, analysisLockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: already running elsewhere"); return }
    defer func(){ _ = cr.repo.AdvisoryUnlock(context.Background(), analysisLockKey) }()
    cr.log.Info().Msg("cron: scheduled analysis")
    if err := cr.svc.RunScheduledAnalysis(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: analysis failed") }
}
