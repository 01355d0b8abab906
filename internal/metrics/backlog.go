package metrics

import (
    "regexp"
    "strings"

    "github.com/HamedShams/sprint-lens/internal/domain"
)

// Acceptance-criteria indicator patterns. Matches are case-insensitive against
// the issue description; the Persian variants cover boards that write criteria
// in Farsi.
var acPatterns = []*regexp.Regexp{
    regexp.MustCompile(`(?i)acceptance\s+criteria`),
    regexp.MustCompile(`(?i)\bAC\s*:`),
    regexp.MustCompile(`(?i)\bgiven\b[\s\S]*\bwhen\b[\s\S]*\bthen\b`),
    regexp.MustCompile(`(?i)definition\s+of\s+done`),
    regexp.MustCompile(`(?i)expected\s+(result|outcome|behavior)`),
    regexp.MustCompile(`معیار(های)?\s+پذیرش`),
    regexp.MustCompile(`شرط\s+پذیرش`),
}

// BacklogHealth scores backlog readiness: percentage of issues with acceptance
// criteria in the description, with a non-zero estimate, and with at least one
// linked fix version; overallScore is the mean of the three.
type BacklogHealth struct {
    WithCriteria    float64  `json:"withAcceptanceCriteria"`
    Estimated       float64  `json:"estimated"`
    WithFixVersion  float64  `json:"withFixVersion"`
    OverallScore    float64  `json:"overallScore"`
    MissingCriteria []string `json:"missingCriteria"`
    Unestimated     []string `json:"unestimated"`
    NoFixVersion    []string `json:"noFixVersion"`
    Total           int      `json:"total"`
}

func hasAcceptanceCriteria(description string) bool {
    if strings.TrimSpace(description) == "" { return false }
    for _, re := range acPatterns {
        if re.MatchString(description) { return true }
    }
    return false
}

// AnalyzeBacklog scores unsprinted non-subtask issues. An empty backlog yields
// score 0 with empty detail lists; it never divides by zero.
func AnalyzeBacklog(backlog []domain.Issue) BacklogHealth {
    res := BacklogHealth{MissingCriteria: []string{}, Unestimated: []string{}, NoFixVersion: []string{}}
    subjects := nonSubtasks(backlog)
    res.Total = len(subjects)
    if len(subjects) == 0 { return res }
    var withAC, withEst, withFix int
    for _, is := range subjects {
        if hasAcceptanceCriteria(is.Description) { withAC++ } else { res.MissingCriteria = append(res.MissingCriteria, is.Key) }
        if is.Estimate > 0 { withEst++ } else { res.Unestimated = append(res.Unestimated, is.Key) }
        if len(is.FixVersions) > 0 { withFix++ } else { res.NoFixVersion = append(res.NoFixVersion, is.Key) }
    }
    n := float64(len(subjects))
    res.WithCriteria = float64(withAC) / n * 100
    res.Estimated = float64(withEst) / n * 100
    res.WithFixVersion = float64(withFix) / n * 100
    res.OverallScore = (res.WithCriteria + res.Estimated + res.WithFixVersion) / 3
    return res
}
