package services

import (
    "context"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/HamedShams/sprint-lens/internal/config"
    "github.com/HamedShams/sprint-lens/internal/domain"
    "github.com/HamedShams/sprint-lens/internal/metrics"
)

type fakeJira struct {
    sprints   []domain.Sprint
    issues    map[int64][]domain.Issue
    backlog   []domain.Issue
    changelog map[string]*domain.Changelog
}

func (f *fakeJira) Sprints(ctx context.Context, boardID int64) ([]domain.Sprint, error) {
    return f.sprints, nil
}

func (f *fakeJira) SprintIssues(ctx context.Context, sprintID int64) ([]domain.Issue, error) {
    return f.issues[sprintID], nil
}

func (f *fakeJira) BacklogIssues(ctx context.Context, boardID int64) ([]domain.Issue, error) {
    return f.backlog, nil
}

func (f *fakeJira) IssueChangelog(ctx context.Context, key string) (*domain.Changelog, error) {
    if cl, ok := f.changelog[key]; ok { return cl, nil }
    return &domain.Changelog{}, nil
}

func testSprint(id int64, start time.Time) domain.Sprint {
    end := start.Add(14 * 24 * time.Hour)
    complete := end.Add(2 * time.Hour)
    return domain.Sprint{ID: id, Name: "Sprint", State: "closed", StartDate: &start, EndDate: &end, CompleteDate: &complete}
}

func TestAnalyzeBoard_EndToEnd(t *testing.T) {
    s1Start := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)
    s2Start := time.Date(2025, 5, 19, 0, 0, 0, 0, time.UTC)
    doneAt := s1Start.Add(5 * 24 * time.Hour)

    done := domain.Issue{
        Key: "A-1", Type: "Story", Estimate: 5, Assignee: "dana",
        Status: domain.Status{Name: "Done", Category: domain.CategoryDone},
        Created: &s1Start,
    }
    open := domain.Issue{
        Key: "A-2", Type: "Story", Estimate: 3, Assignee: "omid",
        Status: domain.Status{Name: "To Do", Category: domain.CategoryNew},
        Created: &s1Start,
    }
    jc := &fakeJira{
        sprints: []domain.Sprint{testSprint(1, s1Start), testSprint(2, s2Start)},
        issues: map[int64][]domain.Issue{
            1: {done, open},
            2: {open},
        },
        backlog: []domain.Issue{{Key: "B-1", Type: "Story", Description: "AC: works", Estimate: 2, FixVersions: []string{"1.0"}}},
        changelog: map[string]*domain.Changelog{
            "A-1": {Histories: []domain.ChangeHistory{
                {Created: s1Start.Add(24 * time.Hour), Items: []domain.ChangeItem{{Field: "status", FromString: "To Do", ToString: "In Progress"}}},
                {Created: doneAt, Items: []domain.ChangeItem{{Field: "status", FromString: "In Progress", ToString: "Done"}}},
            }},
        },
    }

    svc := New(config.Config{SprintWindow: 5, WorkersJira: 2}, zerolog.Nop(), nil, nil, jc, nil, nil)
    result, err := svc.AnalyzeBoard(context.Background(), 7)
    require.NoError(t, err)
    require.NotNil(t, result.Aggregated)
    assert.Equal(t, int64(7), result.BoardID)
    require.Len(t, result.Sprints, 2)

    // newest first; sprint 2 leads
    assert.Equal(t, int64(2), result.Sprints[0].SprintID)
    // sprint 1: A-1 was done at close per changelog, A-2 was not: 5 of 8 points
    assert.InDelta(t, 62.5, result.Sprints[1].GoalAttainment, 0.001)
    assert.InDelta(t, 100.0, result.Backlog.OverallScore, 0.001)
    // A-2 carried into sprint 2 counts once for omid
    for _, w := range result.Capacity.Workloads {
        if w.Assignee == "omid" { assert.Equal(t, 1, w.TotalIssues) }
    }
    assert.NotZero(t, result.Maturity.Level)
}

func TestAnalyzeBoard_NoSprintsPropagatesSentinel(t *testing.T) {
    svc := New(config.Config{}, zerolog.Nop(), nil, nil, &fakeJira{}, nil, nil)
    _, err := svc.AnalyzeBoard(context.Background(), 7)
    assert.ErrorIs(t, err, metrics.ErrNoSprints)
}

func TestRenderDigest_EscapesMarkdown(t *testing.T) {
    svc := New(config.Config{}, zerolog.Nop(), nil, nil, nil, nil, nil)
    r := &AnalysisResult{
        BoardID:    1,
        Aggregated: &metrics.Aggregated{SprintCount: 3, GoalAttainment: 71.5, RolloverRate: 12.0, HitRate: 80.0, MidSprint: 5.0},
        Maturity:   metrics.MaturityLevel{Level: 2, Name: "Supported", Blockers: []string{"rolloverRate"}},
        Backlog:    metrics.BacklogHealth{OverallScore: 66.7},
    }
    digest := svc.renderDigest(r)
    assert.Contains(t, digest, "*Sprint Lens*")
    assert.Contains(t, digest, "71\\.5")
    assert.Contains(t, digest, "Level 2")
    assert.NotContains(t, digest, "71.5%", "raw dots must be escaped for MarkdownV2")
}
