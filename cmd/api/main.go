/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/HamedShams/sprint-lens/internal/adapters/jira"
    "github.com/HamedShams/sprint-lens/internal/adapters/openai"
    "github.com/HamedShams/sprint-lens/internal/adapters/telegram"
    "github.com/HamedShams/sprint-lens/internal/cache"
    "github.com/HamedShams/sprint-lens/internal/config"
    httpapi "github.com/HamedShams/sprint-lens/internal/http"
    "github.com/HamedShams/sprint-lens/internal/jobs"
    "github.com/HamedShams/sprint-lens/internal/logger"
    "github.com/HamedShams/sprint-lens/internal/repo"
    "github.com/HamedShams/sprint-lens/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.NewRepository(db, log)

    // Cache
    c := cache.New(cfg, log)

    // Adapters
    jc := jira.NewClient(cfg, log)
    llm := openai.NewClient(cfg, log)
    tg := telegram.NewClient(cfg, log)

    // Boards configured by name are resolved to IDs once, at startup
    if len(cfg.JiraBoardNames) > 0 {
        ctx2, cancel2 := context.WithTimeout(ctx, 20*time.Second); defer cancel2()
        ids, err := jc.ResolveBoardsByNames(ctx2, cfg.JiraBoardNames)
        if err != nil {
            log.Error().Err(err).Strs("names", cfg.JiraBoardNames).Msg("jira board resolve failed")
        } else {
            log.Info().Ints64("board_ids", ids).Msg("jira boards resolved")
            cfg.JiraBoardIDs = append(cfg.JiraBoardIDs, ids...)
        }
    }

    // Services
    svc := services.New(cfg, log, repository, c, jc, llm, tg)

    // HTTP server (Gin)
    router := httpapi.NewRouter(cfg, log, svc)

    // Cron
    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
