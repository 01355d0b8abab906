package metrics

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestAggregate_EmptyWindowIsAHardFailure(t *testing.T) {
    agg, err := Aggregate(nil)
    assert.Nil(t, agg)
    assert.ErrorIs(t, err, ErrNoSprints)
}

func TestAggregate_UnweightedMeans(t *testing.T) {
    records := []SprintMetrics{
        {GoalAttainment: 80, HitRate: 90, Rollover: RolloverResult{Rate: 10}, MidSprint: MidSprintResult{Percent: 4}, CycleTimeDays: 3, LeadTimeDays: 6},
        {GoalAttainment: 60, HitRate: 70, Rollover: RolloverResult{Rate: 30}, MidSprint: MidSprintResult{Percent: 8}, CycleTimeDays: 5, LeadTimeDays: 10},
    }
    agg, err := Aggregate(records)
    require.NoError(t, err)
    assert.Equal(t, 2, agg.SprintCount)
    assert.InDelta(t, 70.0, agg.GoalAttainment, 0.001)
    assert.InDelta(t, 80.0, agg.HitRate, 0.001)
    assert.InDelta(t, 20.0, agg.RolloverRate, 0.001)
    assert.InDelta(t, 6.0, agg.MidSprint, 0.001)
    assert.InDelta(t, 4.0, agg.CycleTimeDays, 0.001)
    assert.InDelta(t, 8.0, agg.LeadTimeDays, 0.001)
}
