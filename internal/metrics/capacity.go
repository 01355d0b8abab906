/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
    "math"
    "sort"
)

// IssueCapacity annotates one issue inside one sprint's capacity record.
// SprintCount counts how many analyzed sprints the key has been seen in so far.
type IssueCapacity struct {
    Key               string  `json:"key"`
    Points            float64 `json:"points"`
    Status            string  `json:"status"`
    CompletedInSprint bool    `json:"completedInSprint"`
    IsCarryover       bool    `json:"isCarryover"`
    SprintCount       int     `json:"sprintCount"`
}

type SprintCapacity struct {
    SprintID        int64           `json:"sprintId"`
    SprintName      string          `json:"sprintName"`
    Committed       float64         `json:"committed"`
    Completed       float64         `json:"completed"`
    TotalIssues     int             `json:"totalIssues"`
    CompletedIssues int             `json:"completedIssues"`
    TeamSize        int             `json:"teamSize"`
    Velocity        float64         `json:"velocity"`
    Throughput      int             `json:"throughput"`
    Issues          []IssueCapacity `json:"issues"`
}

// AssigneeWorkload aggregates one assignee's totals across the window,
// deduplicated so a carried-over issue contributes exactly once.
type AssigneeWorkload struct {
    Assignee        string         `json:"assignee"`
    CommittedPoints float64        `json:"committedPoints"`
    CompletedPoints float64        `json:"completedPoints"`
    TotalIssues     int            `json:"totalIssues"`
    CompletedIssues int            `json:"completedIssues"`
    ByType          map[string]int `json:"byType"`
}

type CapacitySummary struct {
    VelocityAvg      float64 `json:"velocityAvg"`
    VelocityStdDev   float64 `json:"velocityStdDev"`
    ThroughputAvg    float64 `json:"throughputAvg"`
    ThroughputStdDev float64 `json:"throughputStdDev"`
    TeamSizeAvg      float64 `json:"teamSizeAvg"`
    TeamSizeStdDev   float64 `json:"teamSizeStdDev"`
    FocusFactorAvg   float64 `json:"focusFactorAvg"`
    VelocityTrend    float64 `json:"velocityTrend"`
}

type CapacityReport struct {
    Sprints   []SprintCapacity   `json:"sprints"`
    Workloads []AssigneeWorkload `json:"workloads"`
    Summary   CapacitySummary    `json:"summary"`
}

// CapacityAnalysis folds over the sprint sequence, most recent first. The
// seen-keys accumulator is threaded through the fold: the first sprint in which
// a key is observed attributes the issue to its assignee's totals, later
// reappearances only bump the carryover annotation.
func CapacityAnalysis(sprints []SprintIssues) CapacityReport {
    report := CapacityReport{Sprints: []SprintCapacity{}, Workloads: []AssigneeWorkload{}}
    seen := map[string]int{}
    byAssignee := map[string]*AssigneeWorkload{}

    for _, si := range sprints {
        cats := BuildStatusCategories(si.Issues)
        closeAt := si.Sprint.CloseInstant()
        sc := SprintCapacity{SprintID: si.Sprint.ID, SprintName: si.Sprint.Name, Issues: []IssueCapacity{}}
        team := map[string]struct{}{}
        for _, is := range nonSubtasks(si.Issues) {
            completed := CompletedAt(is, closeAt, cats)
            seen[is.Key]++
            occurrences := seen[is.Key]
            sc.Committed += is.Estimate
            sc.TotalIssues++
            if completed {
                sc.Completed += is.Estimate
                sc.CompletedIssues++
            }
            team[is.AssigneeOrSentinel()] = struct{}{}
            sc.Issues = append(sc.Issues, IssueCapacity{
                Key:               is.Key,
                Points:            is.Estimate,
                Status:            is.Status.Name,
                CompletedInSprint: completed,
                IsCarryover:       occurrences > 1,
                SprintCount:       occurrences,
            })
            if occurrences == 1 {
                w, ok := byAssignee[is.AssigneeOrSentinel()]
                if !ok {
                    w = &AssigneeWorkload{Assignee: is.AssigneeOrSentinel(), ByType: map[string]int{}}
                    byAssignee[is.AssigneeOrSentinel()] = w
                }
                w.CommittedPoints += is.Estimate
                w.TotalIssues++
                w.ByType[is.Type]++
                if completed {
                    w.CompletedPoints += is.Estimate
                    w.CompletedIssues++
                }
            }
        }
        sc.TeamSize = len(team)
        sc.Velocity = sc.Completed
        sc.Throughput = sc.CompletedIssues
        report.Sprints = append(report.Sprints, sc)
    }

    for _, w := range byAssignee { report.Workloads = append(report.Workloads, *w) }
    sort.Slice(report.Workloads, func(i, j int) bool { return report.Workloads[i].Assignee < report.Workloads[j].Assignee })
    report.Summary = summarize(report.Sprints)
    return report
}

func meanStdDev(vals []float64) (mean, sd float64) {
    if len(vals) == 0 { return 0, 0 }
    for _, v := range vals { mean += v }
    mean /= float64(len(vals))
    if len(vals) < 2 { return mean, 0 }
    var ss float64
    for _, v := range vals { ss += (v - mean) * (v - mean) }
    return mean, math.Sqrt(ss / float64(len(vals)-1))
}

// velocityTrend is recent-half mean minus older-half mean, one decimal.
// Velocities arrive most recent first; the middle sprint of an odd window
// counts toward the recent half.
func velocityTrend(velocities []float64) float64 {
    if len(velocities) < 2 { return 0 }
    h := (len(velocities) + 1) / 2
    recent, _ := meanStdDev(velocities[:h])
    older, _ := meanStdDev(velocities[h:])
    return math.Round((recent-older)*10) / 10
}

func summarize(sprints []SprintCapacity) CapacitySummary {
    var sum CapacitySummary
    if len(sprints) == 0 { return sum }
    velocities := make([]float64, 0, len(sprints))
    throughputs := make([]float64, 0, len(sprints))
    teamSizes := make([]float64, 0, len(sprints))
    var focusSum float64
    var focusN int
    for _, sc := range sprints {
        velocities = append(velocities, sc.Velocity)
        throughputs = append(throughputs, float64(sc.Throughput))
        teamSizes = append(teamSizes, float64(sc.TeamSize))
        if sc.Committed > 0 {
            focusSum += sc.Completed / sc.Committed * 100
            focusN++
        }
    }
    sum.VelocityAvg, sum.VelocityStdDev = meanStdDev(velocities)
    sum.ThroughputAvg, sum.ThroughputStdDev = meanStdDev(throughputs)
    sum.TeamSizeAvg, sum.TeamSizeStdDev = meanStdDev(teamSizes)
    if focusN > 0 { sum.FocusFactorAvg = focusSum / float64(focusN) }
    sum.VelocityTrend = velocityTrend(velocities)
    return sum
}
