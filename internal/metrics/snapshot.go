/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
    "sort"
    "strings"
    "time"

    "github.com/HamedShams/sprint-lens/internal/domain"
)

type statusTransition struct {
    at   time.Time
    from string
    to   string
}

// statusTransitions flattens an issue's changelog to status-field transitions
// sorted by timestamp ascending.
func statusTransitions(cl *domain.Changelog) []statusTransition {
    if cl == nil { return nil }
    var trs []statusTransition
    for _, h := range cl.Histories {
        for _, it := range h.Items {
            if !strings.EqualFold(it.Field, "status") { continue }
            trs = append(trs, statusTransition{at: h.Created, from: it.FromString, to: it.ToString})
        }
    }
    sort.Slice(trs, func(i, j int) bool { return trs[i].at.Before(trs[j].at) })
    return trs
}

// CompletedAt reports whether the issue was in a done-category status at the
// given instant, reconstructed from its changelog. Sprint reports must reflect
// what was true when the sprint closed, not what is true now: issues get
// reopened and relabeled, and live status produces retroactively wrong history.
//
// Fallbacks, in order:
//   - no instant: current status category
//   - no changelog: current category is done AND resolutiondate (if any) <= at
//   - no status transitions in the changelog: current status category
//   - no transition at or before the instant: the first transition's fromString
//     is the status that must have held from the start
func CompletedAt(issue domain.Issue, at *time.Time, categories StatusCategories) bool {
    if at == nil || at.IsZero() {
        return issue.Status.Category == domain.CategoryDone
    }
    if issue.Changelog == nil || len(issue.Changelog.Histories) == 0 {
        // Without history, do not claim "done at T" unless the resolution date
        // supports it.
        if issue.Status.Category != domain.CategoryDone { return false }
        if issue.ResolutionDate != nil && issue.ResolutionDate.After(*at) { return false }
        return true
    }
    trs := statusTransitions(issue.Changelog)
    if len(trs) == 0 {
        return issue.Status.Category == domain.CategoryDone
    }
    statusAt := trs[0].from
    for _, tr := range trs {
        if tr.at.After(*at) { break }
        statusAt = tr.to
    }
    return categories.IsDone(statusAt)
}
