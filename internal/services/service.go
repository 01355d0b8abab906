/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "encoding/json"
    "fmt"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/HamedShams/sprint-lens/internal/cache"
    "github.com/HamedShams/sprint-lens/internal/config"
    "github.com/HamedShams/sprint-lens/internal/domain"
    "github.com/HamedShams/sprint-lens/internal/metrics"
    "github.com/HamedShams/sprint-lens/internal/repo"
    "github.com/rs/zerolog"
)

type JiraClient interface {
    Sprints(ctx context.Context, boardID int64) ([]domain.Sprint, error)
    SprintIssues(ctx context.Context, sprintID int64) ([]domain.Issue, error)
    BacklogIssues(ctx context.Context, boardID int64) ([]domain.Issue, error)
    IssueChangelog(ctx context.Context, key string) (*domain.Changelog, error)
}

type LLM interface {
    Summarize(ctx context.Context, payload any) (string, error)
}

type Notifier interface {
    SendMessagePlain(ctx context.Context, chatID int64, text string) error
    SendMarkdownV2(ctx context.Context, chatID int64, text string) error
}

const snapshotKind = "analysis"

// AnalysisResult is the composite engine output for one board. Persisted
// verbatim to the cache and the history store, and served to the dashboard.
type AnalysisResult struct {
    BoardID     int64                   `json:"boardId"`
    GeneratedAt time.Time               `json:"generatedAt"`
    Sprints     []metrics.SprintMetrics `json:"sprints"`
    Aggregated  *metrics.Aggregated     `json:"aggregated"`
    Backlog     metrics.BacklogHealth   `json:"backlogHealth"`
    Maturity    metrics.MaturityLevel   `json:"maturity"`
    Capacity    metrics.CapacityReport  `json:"capacity"`
}

type Service struct {
    cfg   config.Config
    log   zerolog.Logger
    repo  *repo.Repository
    cache *cache.Cache
    jira  JiraClient
    llm   LLM
    tg    Notifier
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, c *cache.Cache, jira JiraClient, llm LLM, tg Notifier) *Service {
    return &Service{cfg: cfg, log: log, repo: r, cache: c, jira: jira, llm: llm, tg: tg}
}

// AnalyzeBoard runs the full engine for one board: fetch, compute, cache,
// persist. A same-day cached result short-circuits the fetch.
func (s *Service) AnalyzeBoard(ctx context.Context, boardID int64) (*AnalysisResult, error) {
    key := cache.Key(boardID, snapshotKind, time.Now().UTC())
    var cached AnalysisResult
    if s.cache != nil && s.cache.Get(ctx, key, &cached) {
        s.log.Info().Int64("board", boardID).Msg("analysis served from cache")
        return &cached, nil
    }

    sprints, backlog, err := s.fetchBoard(ctx, boardID)
    if err != nil { return nil, err }

    records := metrics.AnalyzeSprints(sprints)
    agg, err := metrics.Aggregate(records)
    if err != nil { return nil, fmt.Errorf("board %d: %w", boardID, err) }
    backlogHealth := metrics.AnalyzeBacklog(backlog)
    maturity := metrics.ClassifyMaturity(agg.RolloverRate, agg.GoalAttainment, backlogHealth.OverallScore, agg.MidSprint)

    // capacity fold wants the same newest-first order the records came back in
    ordered := make([]metrics.SprintIssues, len(sprints))
    copy(ordered, sprints)
    sort.SliceStable(ordered, func(i, j int) bool {
        a, b := ordered[i].Sprint.StartDate, ordered[j].Sprint.StartDate
        if a == nil || b == nil { return b == nil && a != nil }
        return a.After(*b)
    })
    capacity := metrics.CapacityAnalysis(ordered)

    result := &AnalysisResult{
        BoardID:     boardID,
        GeneratedAt: time.Now().UTC(),
        Sprints:     records,
        Aggregated:  agg,
        Backlog:     backlogHealth,
        Maturity:    maturity,
        Capacity:    capacity,
    }
    if s.cache != nil { s.cache.Set(ctx, key, result) }
    if payload, err := json.Marshal(result); err == nil && s.repo != nil {
        if _, err := s.repo.AppendSnapshot(ctx, boardID, snapshotKind, payload); err != nil {
            s.log.Error().Err(err).Int64("board", boardID).Msg("snapshot append failed")
        }
    }
    return result, nil
}

// fetchBoard materializes all sprint issue sets and the backlog before any
// computation starts: rollover for sprint i needs sprint i+1's issues, so there
// is no way to stream this.
func (s *Service) fetchBoard(ctx context.Context, boardID int64) ([]metrics.SprintIssues, []domain.Issue, error) {
    all, err := s.jira.Sprints(ctx, boardID)
    if err != nil { return nil, nil, fmt.Errorf("board %d: list sprints: %w", boardID, err) }
    var dated []domain.Sprint
    for _, sp := range all {
        if sp.StartDate == nil { continue }
        dated = append(dated, sp)
    }
    sort.Slice(dated, func(i, j int) bool { return dated[i].StartDate.After(*dated[j].StartDate) })
    window := s.cfg.SprintWindow
    if window <= 0 { window = 5 }
    if len(dated) > window { dated = dated[:window] }

    // one parallel wave for all sprint issue sets plus the backlog
    bundles := make([]metrics.SprintIssues, len(dated))
    var backlog []domain.Issue
    var mu sync.Mutex
    var firstErr error
    setErr := func(err error) { mu.Lock(); if firstErr == nil { firstErr = err }; mu.Unlock() }

    var wg sync.WaitGroup
    sem := make(chan struct{}, s.workers())
    for i, sp := range dated {
        wg.Add(1)
        go func(i int, sp domain.Sprint) {
            defer wg.Done()
            sem <- struct{}{}; defer func(){ <-sem }()
            issues, err := s.jira.SprintIssues(ctx, sp.ID)
            if err != nil { setErr(fmt.Errorf("sprint %d: %w", sp.ID, err)); return }
            bundles[i] = metrics.SprintIssues{Sprint: sp, Issues: issues}
        }(i, sp)
    }
    wg.Add(1)
    go func() {
        defer wg.Done()
        sem <- struct{}{}; defer func(){ <-sem }()
        b, err := s.jira.BacklogIssues(ctx, boardID)
        if err != nil { setErr(fmt.Errorf("board %d backlog: %w", boardID, err)); return }
        backlog = b
    }()
    wg.Wait()
    if firstErr != nil { return nil, nil, firstErr }

    s.fetchChangelogs(ctx, bundles)
    return bundles, backlog, nil
}

// fetchChangelogs grafts changelogs onto every sprint issue in one bounded
// parallel wave. Sequential per-issue fetches would make the tracker's rate
// limits the dominant cost. Failures leave the issue without history; the
// engine's fallback rules handle that.
func (s *Service) fetchChangelogs(ctx context.Context, bundles []metrics.SprintIssues) {
    type slot struct{ bundle, issue int }
    var slots []slot
    fetched := map[string]*domain.Changelog{}
    var mu sync.Mutex
    for bi := range bundles {
        for ii := range bundles[bi].Issues {
            if bundles[bi].Issues[ii].Changelog != nil { continue }
            slots = append(slots, slot{bundle: bi, issue: ii})
        }
    }
    if len(slots) == 0 { return }

    jobs := make(chan string)
    var wg sync.WaitGroup
    for w := 0; w < s.workers(); w++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for key := range jobs {
                cl, err := s.jira.IssueChangelog(ctx, key)
                if err != nil {
                    s.log.Warn().Err(err).Str("key", key).Msg("changelog fetch failed, engine falls back to current status")
                    continue
                }
                mu.Lock(); fetched[key] = cl; mu.Unlock()
            }
        }()
    }
    queued := map[string]struct{}{}
    for _, sl := range slots {
        key := bundles[sl.bundle].Issues[sl.issue].Key
        if _, ok := queued[key]; ok { continue }
        queued[key] = struct{}{}
        jobs <- key
    }
    close(jobs)
    wg.Wait()
    for _, sl := range slots {
        if cl, ok := fetched[bundles[sl.bundle].Issues[sl.issue].Key]; ok {
            bundles[sl.bundle].Issues[sl.issue].Changelog = cl
        }
    }
}

func (s *Service) workers() int {
    if s.cfg.WorkersJira > 0 { return s.cfg.WorkersJira }
    return 6
}

// GetHistory returns the persisted snapshots for a board, newest first.
func (s *Service) GetHistory(ctx context.Context, boardID int64, limit int) ([]repo.Snapshot, error) {
    return s.repo.ListSnapshots(ctx, boardID, snapshotKind, limit)
}

func (s *Service) GetLastRun(ctx context.Context) (any, error) {
    return s.repo.GetLastRun(ctx)
}

// RunScheduledAnalysis analyzes every configured board, delivers the digest,
// and applies history retention. Per-board failures are reported, not fatal:
// one misconfigured board must not silence the rest.
func (s *Service) RunScheduledAnalysis(ctx context.Context) error {
    boardsJSON, _ := json.Marshal(s.cfg.JiraBoardIDs)
    runID, err := s.repo.StartJobRun(ctx, string(boardsJSON))
    if err != nil { s.log.Error().Err(err).Msg("start job run failed") }
    s.log.Info().Int("boards", len(s.cfg.JiraBoardIDs)).Msg("scheduled analysis: start")

    var boardsOK, sprintsAnalyzed int
    var lastErr error
    defer func(){
        if runID != 0 {
            _ = s.repo.FinishJobRun(ctx, runID, boardsOK, sprintsAnalyzed, lastErr == nil, fmt.Sprintf("%v", lastErr))
        }
    }()

    for _, boardID := range s.cfg.JiraBoardIDs {
        result, err := s.AnalyzeBoard(ctx, boardID)
        if err != nil {
            lastErr = err
            s.log.Error().Err(err).Int64("board", boardID).Msg("board analysis failed")
            s.notify(ctx, fmt.Sprintf("Sprint Lens: board %d has no analyzable data (%v)", boardID, err), false)
            continue
        }
        boardsOK++
        sprintsAnalyzed += len(result.Sprints)
        digest := s.renderDigest(result)
        if s.llm != nil && strings.TrimSpace(s.cfg.OpenAIKey) != "" {
            if note, err := s.llm.Summarize(ctx, result.Aggregated); err == nil && note != "" {
                digest += "\n" + escapeMarkdownV2("Coach note: "+note)
            } else if err != nil {
                s.log.Warn().Err(err).Msg("coach summary failed, sending digest without it")
            }
        }
        s.notify(ctx, digest, true)
    }

    if err := s.repo.PruneSnapshots(ctx, s.cfg.HistoryKeep, s.cfg.HistoryMaxAge); err != nil {
        s.log.Error().Err(err).Msg("history prune failed")
    }
    s.log.Info().Int("ok", boardsOK).Msg("scheduled analysis: done")
    return lastErr
}

func (s *Service) notify(ctx context.Context, text string, markdown bool) {
    if s.tg == nil { return }
    for _, chat := range s.cfg.TelegramChatIDs {
        var err error
        if markdown { err = s.tg.SendMarkdownV2(ctx, chat, text) } else { err = s.tg.SendMessagePlain(ctx, chat, text) }
        if err != nil { s.log.Error().Err(err).Int64("chat", chat).Msg("telegram send failed") }
    }
}

func escapeMarkdownV2(in string) string {
    repl := []string{"_","\\_","*","\\*","[","\\[","]","\\]","(","\\(",")","\\)","~","\\~","`","\\`",">","\\>","#","\\#","+","\\+","-","\\-","=","\\=","|","\\|","{","\\{","}","\\}",".","\\.","!","\\!"}
    for i := 0; i < len(repl); i += 2 { in = strings.ReplaceAll(in, repl[i], repl[i+1]) }
    return in
}

// renderDigest builds the MarkdownV2 board summary for Telegram.
func (s *Service) renderDigest(r *AnalysisResult) string {
    b := &strings.Builder{}
    fmt.Fprintf(b, "*Sprint Lens*\n")
    fmt.Fprintf(b, "%s\n\n", escapeMarkdownV2(fmt.Sprintf("Board %d, last %d sprints", r.BoardID, r.Aggregated.SprintCount)))
    fmt.Fprintf(b, "*Maturity:* %s\n", escapeMarkdownV2(fmt.Sprintf("Level %d (%s)", r.Maturity.Level, r.Maturity.Name)))
    fmt.Fprintf(b, "*Goal attainment:* %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", r.Aggregated.GoalAttainment)))
    fmt.Fprintf(b, "*Rollover:* %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", r.Aggregated.RolloverRate)))
    fmt.Fprintf(b, "*Hit rate:* %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", r.Aggregated.HitRate)))
    fmt.Fprintf(b, "*Mid-sprint additions:* %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f%%", r.Aggregated.MidSprint)))
    fmt.Fprintf(b, "*Backlog health:* %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f", r.Backlog.OverallScore)))
    fmt.Fprintf(b, "*Velocity:* %s\n", escapeMarkdownV2(fmt.Sprintf("%.1f avg, trend %+.1f", r.Capacity.Summary.VelocityAvg, r.Capacity.Summary.VelocityTrend)))
    if len(r.Maturity.Blockers) > 0 {
        fmt.Fprintf(b, "*Blockers:* %s\n", escapeMarkdownV2(strings.Join(r.Maturity.Blockers, ", ")))
    }
    return b.String()
}
