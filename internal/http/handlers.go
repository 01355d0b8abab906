/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"

    "github.com/HamedShams/sprint-lens/internal/config"
    "github.com/HamedShams/sprint-lens/internal/metrics"
    "github.com/HamedShams/sprint-lens/internal/repo"
    "github.com/HamedShams/sprint-lens/internal/services"
    "github.com/rs/zerolog"
)

type service interface {
    AnalyzeBoard(ctx context.Context, boardID int64) (*services.AnalysisResult, error)
    GetHistory(ctx context.Context, boardID int64, limit int) ([]repo.Snapshot, error)
    GetLastRun(ctx context.Context) (any, error)
    RunScheduledAnalysis(ctx context.Context) error
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc service) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func boardID(c *gin.Context) (int64, bool) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil || id <= 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid board id"})
        return 0, false
    }
    return id, true
}

func (h *Handlers) analyze(c *gin.Context) (*services.AnalysisResult, bool) {
    id, ok := boardID(c)
    if !ok { return nil, false }
    result, err := h.svc.AnalyzeBoard(c.Request.Context(), id)
    if err != nil {
        // a board without closed sprints is a caller problem, not a server one
        if errors.Is(err, metrics.ErrNoSprints) {
            c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
            return nil, false
        }
        h.log.Error().Err(err).Int64("board", id).Msg("analysis failed")
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return nil, false
    }
    return result, true
}

func (h *Handlers) BoardMetrics(c *gin.Context) {
    result, ok := h.analyze(c)
    if !ok { return }
    c.JSON(http.StatusOK, result)
}

func (h *Handlers) BoardMaturity(c *gin.Context) {
    result, ok := h.analyze(c)
    if !ok { return }
    c.JSON(http.StatusOK, gin.H{"boardId": result.BoardID, "maturity": result.Maturity})
}

func (h *Handlers) BoardCapacity(c *gin.Context) {
    result, ok := h.analyze(c)
    if !ok { return }
    c.JSON(http.StatusOK, gin.H{"boardId": result.BoardID, "capacity": result.Capacity})
}

func (h *Handlers) BoardHistory(c *gin.Context) {
    id, ok := boardID(c)
    if !ok { return }
    limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
    if limit <= 0 || limit > 100 { limit = 10 }
    snaps, err := h.svc.GetHistory(c.Request.Context(), id, limit)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"boardId": id, "snapshots": snaps})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

func (h *Handlers) RunNow(c *gin.Context) {
    // Run in background detached from the HTTP request to avoid context cancellation
    go func(){ _ = h.svc.RunScheduledAnalysis(context.Background()) }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
