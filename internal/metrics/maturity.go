/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package metrics

import (
    "fmt"
    "math"
)

// Classification thresholds. These define the externally visible behavior of
// the maturity levels; reports and alerting downstream depend on the exact
// values.
const (
    level1RolloverAbove  = 25.0
    level1GoalBelow      = 50.0
    level1BacklogBelow   = 50.0
    level1MidSprintAbove = 25.0

    level3RolloverBelow  = 15.0
    level3GoalAbove      = 70.0
    level3BacklogAbove   = 80.0
    level3MidSprintBelow = 10.0
)

// Blocker metric names as exposed to the dashboard.
const (
    MetricRollover   = "rolloverRate"
    MetricGoal       = "sprintGoalAttainment"
    MetricBacklog    = "backlogHealth"
    MetricMidSprint  = "midSprintAdditions"
)

// MaturityLevel is the 3-tier classification of a team's process discipline.
// Stateless: derived purely from the aggregated record, recomputed every run.
type MaturityLevel struct {
    Level           int      `json:"level"`
    Name            string   `json:"name"`
    Description     string   `json:"description"`
    Characteristics []string `json:"characteristics"`
    Blockers        []string `json:"blockers"`
    SupportModel    string   `json:"supportModel,omitempty"`
    Recommendations []string `json:"recommendations"`
}

// norm maps NaN/undefined inputs to 0 rather than letting them poison every
// comparison below.
func norm(v float64) float64 {
    if math.IsNaN(v) || math.IsInf(v, 0) { return 0 }
    return v
}

// ClassifyMaturity maps the four aggregated indicators to a maturity level.
// Ordered decision list, first match wins: any level-1 trigger forces level 1,
// all level-3 conditions together reach level 3, everything else is level 2
// with the unmet level-3 conditions as blockers.
func ClassifyMaturity(rollover, goal, backlogScore, midSprint float64) MaturityLevel {
    rollover, goal = norm(rollover), norm(goal)
    backlogScore, midSprint = norm(backlogScore), norm(midSprint)

    var l1 []string
    if rollover > level1RolloverAbove { l1 = append(l1, MetricRollover) }
    if goal < level1GoalBelow { l1 = append(l1, MetricGoal) }
    if backlogScore < level1BacklogBelow { l1 = append(l1, MetricBacklog) }
    if midSprint > level1MidSprintAbove { l1 = append(l1, MetricMidSprint) }
    if len(l1) > 0 {
        return MaturityLevel{
            Level:       1,
            Name:        "Assisted",
            Description: fmt.Sprintf("The team needs a dedicated Scrum Manager. Rollover %.1f%%, goal attainment %.1f%%, backlog health %.1f, mid-sprint additions %.1f%%.", rollover, goal, backlogScore, midSprint),
            Characteristics: []string{
                fmt.Sprintf("Rollover rate %.1f%% (healthy below %.0f%%)", rollover, level1RolloverAbove),
                fmt.Sprintf("Sprint goal attainment %.1f%% (healthy above %.0f%%)", goal, level1GoalBelow),
                fmt.Sprintf("Backlog health %.1f (healthy above %.0f)", backlogScore, level1BacklogBelow),
                fmt.Sprintf("Mid-sprint additions %.1f%% (healthy below %.0f%%)", midSprint, level1MidSprintAbove),
            },
            Blockers: l1,
            Recommendations: []string{
                "Assign a dedicated Scrum Manager to run ceremonies and shield the sprint",
                "Tag every rolled-over issue with a reason label and review them in retro",
                "Refine backlog items to the definition-of-ready before planning",
                "Route mid-sprint requests through the Scrum Manager instead of straight into the sprint",
            },
        }
    }

    var unmet []string
    if !(rollover < level3RolloverBelow) { unmet = append(unmet, MetricRollover) }
    if !(goal > level3GoalAbove) { unmet = append(unmet, MetricGoal) }
    if !(backlogScore > level3BacklogAbove) { unmet = append(unmet, MetricBacklog) }
    if !(midSprint < level3MidSprintBelow) { unmet = append(unmet, MetricMidSprint) }
    if len(unmet) == 0 {
        return MaturityLevel{
            Level:       3,
            Name:        "Self-Managed",
            Description: fmt.Sprintf("The team runs its own process; a Scrum Manager is optional. Rollover %.1f%%, goal attainment %.1f%%, backlog health %.1f, mid-sprint additions %.1f%%.", rollover, goal, backlogScore, midSprint),
            Characteristics: []string{
                fmt.Sprintf("Rollover rate %.1f%% (below %.0f%%)", rollover, level3RolloverBelow),
                fmt.Sprintf("Sprint goal attainment %.1f%% (above %.0f%%)", goal, level3GoalAbove),
                fmt.Sprintf("Backlog health %.1f (above %.0f)", backlogScore, level3BacklogAbove),
                fmt.Sprintf("Mid-sprint additions %.1f%% (below %.0f%%)", midSprint, level3MidSprintBelow),
            },
            Blockers: []string{},
            Recommendations: []string{
                "Keep the current cadence; review these indicators quarterly",
                "Let the team rotate facilitation of ceremonies",
            },
        }
    }
    return MaturityLevel{
        Level:       2,
        Name:        "Supported",
        Description: fmt.Sprintf("The team works with part-time Scrum support. Rollover %.1f%%, goal attainment %.1f%%, backlog health %.1f, mid-sprint additions %.1f%%.", rollover, goal, backlogScore, midSprint),
        Characteristics: []string{
            fmt.Sprintf("Rollover rate %.1f%% (target below %.0f%%)", rollover, level3RolloverBelow),
            fmt.Sprintf("Sprint goal attainment %.1f%% (target above %.0f%%)", goal, level3GoalAbove),
            fmt.Sprintf("Backlog health %.1f (target above %.0f)", backlogScore, level3BacklogAbove),
            fmt.Sprintf("Mid-sprint additions %.1f%% (target below %.0f%%)", midSprint, level3MidSprintBelow),
        },
        Blockers:     unmet,
        SupportModel: "A shared Scrum Manager supports the team part-time, focusing on the blocked indicators",
        Recommendations: []string{
            "Work the blocked indicators one at a time toward the self-managed thresholds",
            "Review the trend of each blocked indicator at the end of every sprint",
        },
    }
}
