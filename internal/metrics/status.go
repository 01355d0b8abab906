package metrics

import (
    "strings"

    "github.com/HamedShams/sprint-lens/internal/domain"
)

// StatusCategories maps Jira status names to their workflow category. Changelog
// entries only record status names, so the map is built from the current status
// of each issue in a batch.
type StatusCategories map[string]string

// BuildStatusCategories reads each issue's current status name and category.
// If two issues disagree about a name's category (workflow edits), the last one
// iterated wins; that is a rare tracker inconsistency, not an error.
func BuildStatusCategories(issues []domain.Issue) StatusCategories {
    m := StatusCategories{}
    for _, is := range issues {
        if is.Status.Name == "" { continue }
        m[is.Status.Name] = is.Status.Category
    }
    return m
}

// doneWords is the fallback vocabulary for status names the map has never seen.
var doneWords = []string{"done", "closed", "resolved", "complete", "completed"}

// Category resolves a status name to its category. Unmapped names fall back to
// a case-insensitive substring match against the done vocabulary.
func (sc StatusCategories) Category(name string) string {
    if c, ok := sc[name]; ok && c != "" { return c }
    ln := strings.ToLower(name)
    for _, w := range doneWords {
        if strings.Contains(ln, w) { return domain.CategoryDone }
    }
    return domain.CategoryIndeterminate
}

// IsDone reports whether a status name resolves to the done category.
func (sc StatusCategories) IsDone(name string) bool {
    return sc.Category(name) == domain.CategoryDone
}
