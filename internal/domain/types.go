package domain

import "time"

// Status categories as reported by Jira's statusCategory.key.
const (
    CategoryNew           = "new"
    CategoryIndeterminate = "indeterminate"
    CategoryDone          = "done"
)

// AssigneeUnassigned is the sentinel identity for issues without an assignee.
const AssigneeUnassigned = "unassigned"

type Status struct {
    Name     string `json:"name"`
    Category string `json:"category"`
}

type ChangeItem struct {
    Field      string `json:"field"`
    FromString string `json:"fromString"`
    ToString   string `json:"toString"`
}

type ChangeHistory struct {
    Created time.Time    `json:"created"`
    Items   []ChangeItem `json:"items"`
}

// Changelog is the ordered field-transition history of an issue. Histories are
// walkable in chronological order to reconstruct status at any past instant.
type Changelog struct {
    Histories []ChangeHistory `json:"histories"`
}

type Issue struct {
    Key            string     `json:"key"`
    Type           string     `json:"type"`
    Subtask        bool       `json:"subtask"`
    Status         Status     `json:"status"`
    Created        *time.Time `json:"created,omitempty"`
    ResolutionDate *time.Time `json:"resolutiondate,omitempty"`
    Estimate       float64    `json:"estimate"`
    Assignee       string     `json:"assignee,omitempty"`
    Labels         []string   `json:"labels,omitempty"`
    FixVersions    []string   `json:"fixVersions,omitempty"`
    Description    string     `json:"description,omitempty"`
    Changelog      *Changelog `json:"changelog,omitempty"`
}

// AssigneeOrSentinel returns the assignee identity, or the unassigned sentinel.
func (i Issue) AssigneeOrSentinel() string {
    if i.Assignee == "" { return AssigneeUnassigned }
    return i.Assignee
}

type Sprint struct {
    ID           int64      `json:"id"`
    Name         string     `json:"name"`
    StartDate    *time.Time `json:"startDate,omitempty"`
    EndDate      *time.Time `json:"endDate,omitempty"`
    CompleteDate *time.Time `json:"completeDate,omitempty"`
    State        string     `json:"state,omitempty"`
}

// CloseInstant is the authoritative close time of a sprint: completeDate when
// the sprint was actually closed, else the planned endDate.
func (s Sprint) CloseInstant() *time.Time {
    if s.CompleteDate != nil { return s.CompleteDate }
    return s.EndDate
}
