package metrics

import (
    "testing"

    "github.com/stretchr/testify/assert"

    "github.com/HamedShams/sprint-lens/internal/domain"
)

func TestAnalyzeBacklog_EmptyBacklog(t *testing.T) {
    res := AnalyzeBacklog(nil)
    assert.Zero(t, res.OverallScore)
    assert.Empty(t, res.MissingCriteria)
    assert.Empty(t, res.Unestimated)
    assert.Empty(t, res.NoFixVersion)
}

func TestAnalyzeBacklog_Scoring(t *testing.T) {
    ready := domain.Issue{
        Key:         "B-1",
        Type:        "Story",
        Description: "As a user...\nAcceptance Criteria:\n- works",
        Estimate:    5,
        FixVersions: []string{"1.4.0"},
    }
    raw := domain.Issue{Key: "B-2", Type: "Story", Description: "just an idea"}
    sub := domain.Issue{Key: "B-3", Subtask: true, Type: "Sub-task"}

    res := AnalyzeBacklog([]domain.Issue{ready, raw, sub})
    assert.Equal(t, 2, res.Total)
    assert.InDelta(t, 50.0, res.WithCriteria, 0.001)
    assert.InDelta(t, 50.0, res.Estimated, 0.001)
    assert.InDelta(t, 50.0, res.WithFixVersion, 0.001)
    assert.InDelta(t, 50.0, res.OverallScore, 0.001)
    assert.Equal(t, []string{"B-2"}, res.MissingCriteria)
    assert.Equal(t, []string{"B-2"}, res.Unestimated)
    assert.Equal(t, []string{"B-2"}, res.NoFixVersion)
}

func TestHasAcceptanceCriteria_Patterns(t *testing.T) {
    tests := []struct {
        name string
        text string
        want bool
    }{
        {"explicit heading", "Acceptance criteria\n- foo", true},
        {"ac shorthand", "AC: the button saves", true},
        {"gherkin", "Given a cart\nWhen I pay\nThen I get a receipt", true},
        {"definition of done", "Definition of Done: deployed to staging", true},
        {"expected result", "Expected result: HTTP 200", true},
        {"expected behavior", "expected behavior is a redirect", true},
        {"farsi variant", "معیارهای پذیرش:\n- تست شود", true},
        {"empty", "", false},
        {"plain prose", "refactor the login page", false},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            assert.Equal(t, tt.want, hasAcceptanceCriteria(tt.text))
        })
    }
}
