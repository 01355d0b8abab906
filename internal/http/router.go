/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"

    "github.com/HamedShams/sprint-lens/internal/config"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc service) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context){
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    h := NewHandlers(cfg, log, svc)

    r.GET("/healthz", h.Healthz)

    api := r.Group("/api")
    api.GET("/boards/:id/metrics", h.BoardMetrics)
    api.GET("/boards/:id/maturity", h.BoardMaturity)
    api.GET("/boards/:id/capacity", h.BoardCapacity)
    api.GET("/boards/:id/history", h.BoardHistory)

    r.GET("/admin/last-run", h.LastRun)
    r.POST("/admin/run", h.RunNow)

    return r
}
