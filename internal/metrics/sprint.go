/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
    "sort"
    "strings"
    "time"

    "github.com/HamedShams/sprint-lens/internal/domain"
)

// Rollover reason labels. An issue present in two consecutive sprints counts as
// rolled over only when it carries at least one of these. Closed table so that
// a typo fails loudly instead of silently never matching.
const (
    ReasonExternalBlockers   = "external-blockers"
    ReasonLateDiscovery      = "late-discovery"
    ReasonResourceConstraints = "resource-constraints"
    ReasonInternalBlockers   = "internal-blockers"
    ReasonReqGap             = "req-gap"
    ReasonDevQASpill         = "dev-qa-spill"
)

var rolloverReasons = map[string]struct{}{
    ReasonExternalBlockers:    {},
    ReasonLateDiscovery:       {},
    ReasonResourceConstraints: {},
    ReasonInternalBlockers:    {},
    ReasonReqGap:              {},
    ReasonDevQASpill:          {},
}

// Defect-distribution labels.
const (
    labelPreMerge   = "pre-merge"
    labelCodeReview = "code-review"
    labelQA         = "qa"
    labelTesting    = "testing"
)

// SprintIssues pairs a sprint with its fetched issue set.
type SprintIssues struct {
    Sprint domain.Sprint  `json:"sprint"`
    Issues []domain.Issue `json:"issues"`
}

type RolloverIssue struct {
    Key     string   `json:"key"`
    Reasons []string `json:"reasons"`
}

type RolloverResult struct {
    Rate    float64         `json:"rate"`
    Count   int             `json:"count"`
    Issues  []RolloverIssue `json:"issues"`
    Reasons map[string]int  `json:"reasons"`
}

type MidSprintResult struct {
    Count   int      `json:"count"`
    Percent float64  `json:"percent"`
    Keys    []string `json:"keys"`
}

type DefectDistributionResult struct {
    PreMerge    []string `json:"preMerge"`
    InQA        []string `json:"inQA"`
    PostRelease []string `json:"postRelease"`
}

// SprintMetrics is the per-sprint metric record. Created once per sprint per
// analysis run and never partially updated.
type SprintMetrics struct {
    SprintID       int64                    `json:"sprintId"`
    SprintName     string                   `json:"sprintName"`
    StartDate      *time.Time               `json:"startDate,omitempty"`
    EndDate        *time.Time               `json:"endDate,omitempty"`
    GoalAttainment float64                  `json:"sprintGoalAttainment"`
    Rollover       RolloverResult           `json:"rollover"`
    HitRate        float64                  `json:"sprintHitRate"`
    MidSprint      MidSprintResult          `json:"midSprintAdditions"`
    Defects        DefectDistributionResult `json:"defectDistribution"`
    CycleTimeDays  float64                  `json:"cycleTimeDaysAvg"`
    LeadTimeDays   float64                  `json:"leadTimeDaysAvg"`
}

func nonSubtasks(issues []domain.Issue) []domain.Issue {
    out := make([]domain.Issue, 0, len(issues))
    for _, is := range issues {
        if is.Subtask { continue }
        out = append(out, is)
    }
    return out
}

// GoalAttainment is the percentage of committed points that were done at the
// sprint close instant. Sub-tasks are excluded so points are not double counted
// against their parent. 0 when nothing was committed.
func GoalAttainment(issues []domain.Issue, closeAt *time.Time, cats StatusCategories) float64 {
    var committed, completed float64
    for _, is := range nonSubtasks(issues) {
        committed += is.Estimate
        if CompletedAt(is, closeAt, cats) { completed += is.Estimate }
    }
    if committed == 0 { return 0 }
    return completed / committed * 100
}

// HitRate is the percentage of non-subtask issues done at the sprint close
// instant, by count rather than points.
func HitRate(issues []domain.Issue, closeAt *time.Time, cats StatusCategories) float64 {
    subjects := nonSubtasks(issues)
    if len(subjects) == 0 { return 0 }
    done := 0
    for _, is := range subjects {
        if CompletedAt(is, closeAt, cats) { done++ }
    }
    return float64(done) / float64(len(subjects)) * 100
}

// RolloverRate counts issues present in both this sprint and the next one that
// carry at least one recognized rollover-reason label. With no next sprint the
// rate is 0: rollover is only observable once a following sprint exists.
func RolloverRate(current, next []domain.Issue) RolloverResult {
    res := RolloverResult{Issues: []RolloverIssue{}, Reasons: map[string]int{}}
    subjects := nonSubtasks(current)
    if len(subjects) == 0 || len(next) == 0 { return res }
    nextKeys := make(map[string]struct{}, len(next))
    for _, is := range next { nextKeys[is.Key] = struct{}{} }
    for _, is := range subjects {
        if _, ok := nextKeys[is.Key]; !ok { continue }
        var reasons []string
        for _, l := range is.Labels {
            if _, ok := rolloverReasons[l]; ok { reasons = append(reasons, l) }
        }
        if len(reasons) == 0 { continue }
        res.Count++
        res.Issues = append(res.Issues, RolloverIssue{Key: is.Key, Reasons: reasons})
        for _, r := range reasons { res.Reasons[r]++ }
    }
    res.Rate = float64(res.Count) / float64(len(subjects)) * 100
    return res
}

// MidSprintAdditions counts non-subtask issues created strictly after the
// sprint start.
func MidSprintAdditions(issues []domain.Issue, sprintStart *time.Time) MidSprintResult {
    res := MidSprintResult{Keys: []string{}}
    subjects := nonSubtasks(issues)
    if len(subjects) == 0 || sprintStart == nil { return res }
    for _, is := range subjects {
        if is.Created == nil || !is.Created.After(*sprintStart) { continue }
        res.Count++
        res.Keys = append(res.Keys, is.Key)
    }
    res.Percent = float64(res.Count) / float64(len(subjects)) * 100
    return res
}

// DefectDistribution buckets non-subtask bugs by where they were caught. A bug
// with none of the recognized labels defaults to postRelease.
func DefectDistribution(issues []domain.Issue) DefectDistributionResult {
    res := DefectDistributionResult{PreMerge: []string{}, InQA: []string{}, PostRelease: []string{}}
    for _, is := range nonSubtasks(issues) {
        if !strings.EqualFold(is.Type, "Bug") { continue }
        labels := make(map[string]struct{}, len(is.Labels))
        for _, l := range is.Labels { labels[l] = struct{}{} }
        switch {
        case hasAny(labels, labelPreMerge, labelCodeReview):
            res.PreMerge = append(res.PreMerge, is.Key)
        case hasAny(labels, labelQA, labelTesting):
            res.InQA = append(res.InQA, is.Key)
        default:
            res.PostRelease = append(res.PostRelease, is.Key)
        }
    }
    return res
}

func hasAny(set map[string]struct{}, keys ...string) bool {
    for _, k := range keys {
        if _, ok := set[k]; ok { return true }
    }
    return false
}

func isActiveStatus(name string) bool {
    n := strings.ToLower(strings.TrimSpace(name))
    return strings.Contains(n, "in progress") || strings.Contains(n, "in dev") || n == "doing"
}

func isClosedStatus(name string) bool {
    n := strings.ToLower(strings.TrimSpace(name))
    for _, w := range doneWords {
        if strings.Contains(n, w) { return true }
    }
    return false
}

// CycleTime is the elapsed days between the first transition into an active
// status and the first subsequent transition into a closed one. Nil when either
// boundary was never reached; such issues are excluded from averages, not
// counted as zero.
func CycleTime(issue domain.Issue) *float64 {
    trs := statusTransitions(issue.Changelog)
    var start, stop *time.Time
    for i := range trs {
        tr := trs[i]
        if start == nil {
            if isActiveStatus(tr.to) { start = &trs[i].at }
            continue
        }
        if isClosedStatus(tr.to) { stop = &trs[i].at; break }
    }
    if start == nil || stop == nil { return nil }
    d := stop.Sub(*start).Hours() / 24
    return &d
}

// LeadTime is the elapsed days from creation to resolution, nil if unresolved.
func LeadTime(issue domain.Issue) *float64 {
    if issue.Created == nil || issue.ResolutionDate == nil { return nil }
    d := issue.ResolutionDate.Sub(*issue.Created).Hours() / 24
    return &d
}

// flowAverages computes mean cycle and lead time over a sprint's issues.
// Sub-tasks stay in: they are legitimate flow subjects even though they are
// excluded from point-weighted metrics.
func flowAverages(issues []domain.Issue) (cycle, lead float64) {
    var cSum, lSum float64
    var cN, lN int
    for _, is := range issues {
        if c := CycleTime(is); c != nil { cSum += *c; cN++ }
        if l := LeadTime(is); l != nil { lSum += *l; lN++ }
    }
    if cN > 0 { cycle = cSum / float64(cN) }
    if lN > 0 { lead = lSum / float64(lN) }
    return cycle, lead
}

// AnalyzeSprint computes the full metric record for one sprint. nextIssues is
// the issue set of the chronologically following sprint (nil for the newest).
func AnalyzeSprint(si SprintIssues, nextIssues []domain.Issue) SprintMetrics {
    cats := BuildStatusCategories(si.Issues)
    closeAt := si.Sprint.CloseInstant()
    cycle, lead := flowAverages(si.Issues)
    return SprintMetrics{
        SprintID:       si.Sprint.ID,
        SprintName:     si.Sprint.Name,
        StartDate:      si.Sprint.StartDate,
        EndDate:        si.Sprint.EndDate,
        GoalAttainment: GoalAttainment(si.Issues, closeAt, cats),
        Rollover:       RolloverRate(si.Issues, nextIssues),
        HitRate:        HitRate(si.Issues, closeAt, cats),
        MidSprint:      MidSprintAdditions(si.Issues, si.Sprint.StartDate),
        Defects:        DefectDistribution(si.Issues),
        CycleTimeDays:  cycle,
        LeadTimeDays:   lead,
    }
}

// AnalyzeSprints computes a record per sprint. Input order does not matter;
// sprints are sorted newest first and each one's rollover is checked against
// the chronologically following sprint, so all issue sets must already be
// materialized before any rollover computation begins.
func AnalyzeSprints(sprints []SprintIssues) []SprintMetrics {
    ordered := make([]SprintIssues, len(sprints))
    copy(ordered, sprints)
    sort.SliceStable(ordered, func(i, j int) bool {
        a, b := ordered[i].Sprint.StartDate, ordered[j].Sprint.StartDate
        if a == nil || b == nil { return b == nil && a != nil }
        return a.After(*b)
    })
    out := make([]SprintMetrics, 0, len(ordered))
    for i, si := range ordered {
        var next []domain.Issue
        if i > 0 { next = ordered[i-1].Issues }
        out = append(out, AnalyzeSprint(si, next))
    }
    return out
}
