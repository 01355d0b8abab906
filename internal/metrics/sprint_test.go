package metrics

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/HamedShams/sprint-lens/internal/domain"
)

func doneIssue(key string, points float64) domain.Issue {
    return domain.Issue{Key: key, Type: "Story", Estimate: points, Status: domain.Status{Name: "Done", Category: domain.CategoryDone}}
}

func openIssue(key string, points float64) domain.Issue {
    return domain.Issue{Key: key, Type: "Story", Estimate: points, Status: domain.Status{Name: "To Do", Category: domain.CategoryNew}}
}

func TestGoalAttainment_ZeroCommittedPoints(t *testing.T) {
    issues := []domain.Issue{
        {Key: "A-1", Type: "Story", Status: domain.Status{Name: "Done", Category: domain.CategoryDone}},
        {Key: "A-2", Type: "Task", Status: domain.Status{Name: "To Do", Category: domain.CategoryNew}},
    }
    assert.Zero(t, GoalAttainment(issues, nil, BuildStatusCategories(issues)))
    assert.Zero(t, GoalAttainment(nil, nil, StatusCategories{}))
}

func TestGoalAttainment_ExcludesSubtasks(t *testing.T) {
    issues := []domain.Issue{
        doneIssue("A-1", 5),
        openIssue("A-2", 5),
        {Key: "A-3", Type: "Sub-task", Subtask: true, Estimate: 100, Status: domain.Status{Name: "Done", Category: domain.CategoryDone}},
    }
    got := GoalAttainment(issues, nil, BuildStatusCategories(issues))
    assert.InDelta(t, 50.0, got, 0.001)
}

func TestHitRate(t *testing.T) {
    issues := []domain.Issue{doneIssue("A-1", 3), doneIssue("A-2", 2), openIssue("A-3", 1), openIssue("A-4", 1)}
    got := HitRate(issues, nil, BuildStatusCategories(issues))
    assert.InDelta(t, 50.0, got, 0.001)
    assert.Zero(t, HitRate(nil, nil, StatusCategories{}))
}

func TestRolloverRate(t *testing.T) {
    labeled := openIssue("A-1", 3)
    labeled.Labels = []string{ReasonExternalBlockers, ReasonDevQASpill}
    unlabeled := openIssue("A-2", 2)
    fresh := openIssue("A-3", 1)
    current := []domain.Issue{labeled, unlabeled, fresh}

    t.Run("no next sprint yields zero", func(t *testing.T) {
        res := RolloverRate(current, nil)
        assert.Zero(t, res.Rate)
        assert.Zero(t, res.Count)
        assert.Empty(t, res.Issues)
    })

    t.Run("unlabeled carryover does not count", func(t *testing.T) {
        res := RolloverRate(current, []domain.Issue{unlabeled})
        assert.Zero(t, res.Count)
    })

    t.Run("labeled carryover counts with reason histogram", func(t *testing.T) {
        res := RolloverRate(current, []domain.Issue{labeled, unlabeled})
        require.Equal(t, 1, res.Count)
        assert.InDelta(t, 100.0/3.0, res.Rate, 0.001)
        require.Len(t, res.Issues, 1)
        assert.Equal(t, "A-1", res.Issues[0].Key)
        // one issue with two reason labels increments both counters
        assert.Equal(t, 1, res.Reasons[ReasonExternalBlockers])
        assert.Equal(t, 1, res.Reasons[ReasonDevQASpill])
    })
}

func TestMidSprintAdditions(t *testing.T) {
    start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
    before := openIssue("A-1", 1)
    before.Created = tp(start.Add(-time.Hour))
    atStart := openIssue("A-2", 1)
    atStart.Created = tp(start)
    after := openIssue("A-3", 1)
    after.Created = tp(start.Add(time.Hour))

    res := MidSprintAdditions([]domain.Issue{before, atStart, after}, tp(start))
    assert.Equal(t, 1, res.Count)
    assert.Equal(t, []string{"A-3"}, res.Keys)
    assert.InDelta(t, 100.0/3.0, res.Percent, 0.001)
}

func TestDefectDistribution(t *testing.T) {
    bug := func(key string, labels ...string) domain.Issue {
        return domain.Issue{Key: key, Type: "Bug", Labels: labels, Status: domain.Status{Name: "Open"}}
    }
    issues := []domain.Issue{
        bug("B-1", "code-review"),
        bug("B-2", "qa"),
        bug("B-3", "testing"),
        bug("B-4"),
        bug("B-5", "customer-reported"),
        openIssue("A-1", 3), // not a bug
    }
    res := DefectDistribution(issues)
    assert.Equal(t, []string{"B-1"}, res.PreMerge)
    assert.Equal(t, []string{"B-2", "B-3"}, res.InQA)
    assert.Equal(t, []string{"B-4", "B-5"}, res.PostRelease)
}

func TestCycleTime(t *testing.T) {
    t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
    issue := domain.Issue{Changelog: &domain.Changelog{Histories: []domain.ChangeHistory{
        statusChange(t0, "To Do", "In Progress"),
        statusChange(t0.Add(12*time.Hour), "In Progress", "In Review"),
        statusChange(t0.Add(36*time.Hour), "In Review", "Done"),
    }}}
    got := CycleTime(issue)
    require.NotNil(t, got)
    assert.InDelta(t, 1.5, *got, 0.001)
}

func TestCycleTime_MissingBoundary(t *testing.T) {
    t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
    neverStarted := domain.Issue{Changelog: &domain.Changelog{Histories: []domain.ChangeHistory{
        statusChange(t0, "To Do", "Blocked"),
    }}}
    neverFinished := domain.Issue{Changelog: &domain.Changelog{Histories: []domain.ChangeHistory{
        statusChange(t0, "To Do", "In Progress"),
    }}}
    assert.Nil(t, CycleTime(neverStarted))
    assert.Nil(t, CycleTime(neverFinished))
    assert.Nil(t, CycleTime(domain.Issue{}))
}

func TestLeadTime(t *testing.T) {
    created := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
    issue := domain.Issue{Created: tp(created), ResolutionDate: tp(created.Add(60 * time.Hour))}
    got := LeadTime(issue)
    require.NotNil(t, got)
    assert.InDelta(t, 2.5, *got, 0.001)
    assert.Nil(t, LeadTime(domain.Issue{Created: tp(created)}))
}

func TestAnalyzeSprints_RolloverUsesChronologicallyNextSprint(t *testing.T) {
    carried := openIssue("A-1", 5)
    carried.Labels = []string{ReasonLateDiscovery}
    older := SprintIssues{
        Sprint: domain.Sprint{ID: 1, Name: "Sprint 1", StartDate: tp(time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC))},
        Issues: []domain.Issue{carried, openIssue("A-2", 3)},
    }
    newer := SprintIssues{
        Sprint: domain.Sprint{ID: 2, Name: "Sprint 2", StartDate: tp(time.Date(2025, 5, 19, 0, 0, 0, 0, time.UTC))},
        Issues: []domain.Issue{carried, openIssue("A-3", 2)},
    }

    // input deliberately oldest-first; output comes back newest-first
    records := AnalyzeSprints([]SprintIssues{older, newer})
    require.Len(t, records, 2)
    assert.Equal(t, int64(2), records[0].SprintID)
    assert.Zero(t, records[0].Rollover.Count, "newest sprint has no next sprint yet")
    assert.Equal(t, 1, records[1].Rollover.Count)
    assert.InDelta(t, 50.0, records[1].Rollover.Rate, 0.001)
}
