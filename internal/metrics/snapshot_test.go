package metrics

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/HamedShams/sprint-lens/internal/domain"
)

func tp(t time.Time) *time.Time { return &t }

func statusChange(at time.Time, from, to string) domain.ChangeHistory {
    return domain.ChangeHistory{Created: at, Items: []domain.ChangeItem{{Field: "status", FromString: from, ToString: to}}}
}

func TestCompletedAt_ChangelogWalk(t *testing.T) {
    t1 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
    t2 := t1.Add(24 * time.Hour)
    t3 := t2.Add(48 * time.Hour)
    issue := domain.Issue{
        Key:    "PROJ-1",
        Status: domain.Status{Name: "Done", Category: domain.CategoryDone},
        Changelog: &domain.Changelog{Histories: []domain.ChangeHistory{
            statusChange(t1, "To Do", "In Progress"),
            statusChange(t3, "In Progress", "Done"),
        }},
    }
    cats := StatusCategories{"To Do": domain.CategoryNew, "In Progress": domain.CategoryIndeterminate, "Done": domain.CategoryDone}

    tests := []struct {
        name string
        at   time.Time
        want bool
    }{
        {"before any transition", t1.Add(-time.Hour), false},
        {"at first transition", t1, false},
        {"between transitions", t2, false},
        {"just before done", t3.Add(-time.Second), false},
        {"exactly at done", t3, true},
        {"after done", t3.Add(time.Hour), true},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            assert.Equal(t, tt.want, CompletedAt(issue, tp(tt.at), cats))
        })
    }
}

func TestCompletedAt_Idempotent(t *testing.T) {
    t1 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
    issue := domain.Issue{
        Status:    domain.Status{Name: "Done", Category: domain.CategoryDone},
        Changelog: &domain.Changelog{Histories: []domain.ChangeHistory{statusChange(t1, "To Do", "Done")}},
    }
    cats := StatusCategories{"Done": domain.CategoryDone}
    at := tp(t1.Add(time.Hour))
    first := CompletedAt(issue, at, cats)
    second := CompletedAt(issue, at, cats)
    assert.Equal(t, first, second)
    assert.True(t, first)
}

func TestCompletedAt_UnmappedStatusFallsBackToSubstring(t *testing.T) {
    t1 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
    issue := domain.Issue{
        Status:    domain.Status{Name: "Closed-Won", Category: domain.CategoryIndeterminate},
        Changelog: &domain.Changelog{Histories: []domain.ChangeHistory{statusChange(t1, "Open", "Closed-Won")}},
    }
    // empty map: "Closed-Won" must match the closed vocabulary
    assert.True(t, CompletedAt(issue, tp(t1.Add(time.Minute)), StatusCategories{}))
    // "Open" before the transition does not
    assert.False(t, CompletedAt(issue, tp(t1.Add(-time.Minute)), StatusCategories{}))
}

func TestCompletedAt_NoInstantUsesCurrentCategory(t *testing.T) {
    done := domain.Issue{Status: domain.Status{Name: "Done", Category: domain.CategoryDone}}
    open := domain.Issue{Status: domain.Status{Name: "To Do", Category: domain.CategoryNew}}
    assert.True(t, CompletedAt(done, nil, StatusCategories{}))
    assert.False(t, CompletedAt(open, nil, StatusCategories{}))
}

func TestCompletedAt_NoChangelogNeedsResolutionEvidence(t *testing.T) {
    at := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
    issue := domain.Issue{Status: domain.Status{Name: "Done", Category: domain.CategoryDone}}

    issue.ResolutionDate = tp(at.Add(48 * time.Hour))
    assert.False(t, CompletedAt(issue, tp(at), StatusCategories{}), "resolved after the instant")

    issue.ResolutionDate = tp(at.Add(-48 * time.Hour))
    assert.True(t, CompletedAt(issue, tp(at), StatusCategories{}), "resolved before the instant")

    issue.ResolutionDate = nil
    assert.True(t, CompletedAt(issue, tp(at), StatusCategories{}), "no resolution date, currently done")
}

func TestCompletedAt_ChangelogWithoutStatusItems(t *testing.T) {
    at := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
    issue := domain.Issue{
        Status: domain.Status{Name: "Done", Category: domain.CategoryDone},
        Changelog: &domain.Changelog{Histories: []domain.ChangeHistory{
            {Created: at.Add(-time.Hour), Items: []domain.ChangeItem{{Field: "assignee", FromString: "a", ToString: "b"}}},
        }},
    }
    assert.True(t, CompletedAt(issue, tp(at), StatusCategories{}))
}

func TestBuildStatusCategories_LastWriteWins(t *testing.T) {
    issues := []domain.Issue{
        {Status: domain.Status{Name: "Review", Category: domain.CategoryIndeterminate}},
        {Status: domain.Status{Name: "Review", Category: domain.CategoryDone}},
    }
    m := BuildStatusCategories(issues)
    require.Len(t, m, 1)
    assert.Equal(t, domain.CategoryDone, m["Review"])
}
