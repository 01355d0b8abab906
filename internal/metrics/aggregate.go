package metrics

import "errors"

// ErrNoSprints signals aggregation over an empty sprint set. There is no
// meaningful average of zero sprints, and rendering zeros as if they were real
// results would mislead; callers must surface "no analyzable data" instead.
var ErrNoSprints = errors.New("metrics: no sprints to aggregate")

// Aggregated is the unweighted arithmetic mean of each per-sprint metric
// across the analyzed window.
type Aggregated struct {
    SprintCount    int     `json:"sprintCount"`
    RolloverRate   float64 `json:"rolloverRate"`
    GoalAttainment float64 `json:"sprintGoalAttainment"`
    HitRate        float64 `json:"sprintHitRate"`
    MidSprint      float64 `json:"midSprintAdditions"`
    CycleTimeDays  float64 `json:"cycleTimeDaysAvg"`
    LeadTimeDays   float64 `json:"leadTimeDaysAvg"`
}

// Aggregate averages the per-sprint records, unweighted by sprint size.
func Aggregate(records []SprintMetrics) (*Aggregated, error) {
    if len(records) == 0 { return nil, ErrNoSprints }
    agg := &Aggregated{SprintCount: len(records)}
    for _, r := range records {
        agg.RolloverRate += r.Rollover.Rate
        agg.GoalAttainment += r.GoalAttainment
        agg.HitRate += r.HitRate
        agg.MidSprint += r.MidSprint.Percent
        agg.CycleTimeDays += r.CycleTimeDays
        agg.LeadTimeDays += r.LeadTimeDays
    }
    n := float64(len(records))
    agg.RolloverRate /= n
    agg.GoalAttainment /= n
    agg.HitRate /= n
    agg.MidSprint /= n
    agg.CycleTimeDays /= n
    agg.LeadTimeDays /= n
    return agg, nil
}
