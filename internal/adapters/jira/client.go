/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/HamedShams/sprint-lens/internal/config"
    "github.com/HamedShams/sprint-lens/internal/domain"
    "github.com/rs/zerolog"
)

const pageSize = 50

type Client struct {
    baseURL     string
    token       string
    basic       string
    user        string
    pass        string
    http        *http.Client
    log         zerolog.Logger
    apiVer      string
    pointsField string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:     cfg.JiraBaseURL,
        token:       cfg.JiraPAT,
        basic:       getenvBasic(),
        user:        cfg.JiraUsername,
        pass:        cfg.JiraPassword,
        http:        &http.Client{ Timeout: cfg.HTTPTimeout },
        log:         log,
        apiVer:      cfg.JiraAPIVersion,
        pointsField: cfg.JiraPointsField,
    }
}

// getenvBasic reads JIRA_BASIC_AUTH from environment if present (format: user:pass base64), optional
func getenvBasic() string {
    v := ""
    if s := strings.TrimSpace(os.Getenv("JIRA_BASIC_AUTH")); s != "" { v = s }
    return v
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

func (c *Client) doJSON(ctx context.Context, method, u string, out any) error {
    if c.baseURL == "" { return errors.New("jira: empty baseURL") }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, method, u, nil)
        if err != nil { return err }
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        } else if c.basic != "" {
            req.Header.Set("Authorization", "Basic "+c.basic)
        }
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err } else {
            body, rerr := io.ReadAll(resp.Body)
            resp.Body.Close()
            if rerr != nil { return rerr }
            if resp.StatusCode >= 300 {
                // retry on 429/5xx
                if resp.StatusCode == 429 || resp.StatusCode >= 500 {
                    lastErr = fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
                } else {
                    return fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
                }
            } else {
                return json.Unmarshal(body, out)
            }
        }
        // backoff
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return lastErr
}

// ---- wire DTOs ----

type sprintDTO struct {
    ID           int64  `json:"id"`
    Name         string `json:"name"`
    State        string `json:"state"`
    StartDate    string `json:"startDate"`
    EndDate      string `json:"endDate"`
    CompleteDate string `json:"completeDate"`
}

type changelogDTO struct {
    Histories []struct {
        Created string `json:"created"`
        Items   []struct {
            Field      string `json:"field"`
            FromString string `json:"fromString"`
            ToString   string `json:"toString"`
        } `json:"items"`
    } `json:"histories"`
}

type issueDTO struct {
    Key       string          `json:"key"`
    Fields    json.RawMessage `json:"fields"`
    Changelog *changelogDTO   `json:"changelog"`
}

type issueFieldsDTO struct {
    IssueType struct {
        Name    string `json:"name"`
        Subtask bool   `json:"subtask"`
    } `json:"issuetype"`
    Status struct {
        Name           string `json:"name"`
        StatusCategory struct {
            Key string `json:"key"`
        } `json:"statusCategory"`
    } `json:"status"`
    Created        string `json:"created"`
    ResolutionDate string `json:"resolutiondate"`
    Assignee       *struct {
        DisplayName string `json:"displayName"`
    } `json:"assignee"`
    Labels      []string `json:"labels"`
    FixVersions []struct {
        Name string `json:"name"`
    } `json:"fixVersions"`
    Description any `json:"description"`
}

func parseTimeUTC(s string) *time.Time {
    if s == "" { return nil }
    layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02T15:04:05-0700"}
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil {
            tt := t.UTC(); return &tt
        }
    }
    return nil
}

// flattenText reduces a v2 string or v3 ADF description to plain text. The
// engine only treats the description as a text signal, so a lossy flatten is
// enough.
func flattenText(v any) string {
    switch t := v.(type) {
    case nil:
        return ""
    case string:
        return t
    case map[string]any:
        b := &strings.Builder{}
        if s, ok := t["text"].(string); ok { b.WriteString(s) }
        if content, ok := t["content"].([]any); ok {
            for _, c := range content {
                b.WriteString(flattenText(c))
                b.WriteString("\n")
            }
        }
        return b.String()
    default:
        return fmt.Sprintf("%v", v)
    }
}

func (c *Client) decodeIssue(dto issueDTO) (domain.Issue, error) {
    var f issueFieldsDTO
    if err := json.Unmarshal(dto.Fields, &f); err != nil {
        return domain.Issue{}, fmt.Errorf("jira: decode issue %s: %w", dto.Key, err)
    }
    is := domain.Issue{
        Key:     dto.Key,
        Type:    f.IssueType.Name,
        Subtask: f.IssueType.Subtask,
        Status: domain.Status{
            Name:     f.Status.Name,
            Category: f.Status.StatusCategory.Key,
        },
        Created:        parseTimeUTC(f.Created),
        ResolutionDate: parseTimeUTC(f.ResolutionDate),
        Labels:         f.Labels,
        Description:    flattenText(f.Description),
    }
    if f.Assignee != nil { is.Assignee = f.Assignee.DisplayName }
    for _, fv := range f.FixVersions { is.FixVersions = append(is.FixVersions, fv.Name) }
    // story points live in a board-specific custom field
    var raw map[string]any
    if err := json.Unmarshal(dto.Fields, &raw); err == nil {
        if v, ok := raw[c.pointsField].(float64); ok { is.Estimate = v }
    }
    if dto.Changelog != nil && len(dto.Changelog.Histories) > 0 {
        is.Changelog = convertChangelog(dto.Changelog)
    }
    return is, nil
}

func convertChangelog(dto *changelogDTO) *domain.Changelog {
    cl := &domain.Changelog{}
    if dto == nil { return cl }
    for _, h := range dto.Histories {
        at := parseTimeUTC(h.Created)
        if at == nil { continue }
        hist := domain.ChangeHistory{Created: *at}
        for _, it := range h.Items {
            hist.Items = append(hist.Items, domain.ChangeItem{Field: it.Field, FromString: it.FromString, ToString: it.ToString})
        }
        cl.Histories = append(cl.Histories, hist)
    }
    return cl
}

// Sprints lists a board's sprints, active and closed, oldest first as the
// agile API returns them.
func (c *Client) Sprints(ctx context.Context, boardID int64) ([]domain.Sprint, error) {
    var out []domain.Sprint
    startAt := 0
    for {
        q := url.Values{}
        q.Set("state", "active,closed")
        q.Set("startAt", strconv.Itoa(startAt))
        q.Set("maxResults", strconv.Itoa(pageSize))
        u := c.apiURL(fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID), q)
        var page struct {
            IsLast bool        `json:"isLast"`
            Values []sprintDTO `json:"values"`
        }
        if err := c.doJSON(ctx, http.MethodGet, u, &page); err != nil { return nil, err }
        for _, s := range page.Values {
            out = append(out, domain.Sprint{
                ID:           s.ID,
                Name:         s.Name,
                State:        s.State,
                StartDate:    parseTimeUTC(s.StartDate),
                EndDate:      parseTimeUTC(s.EndDate),
                CompleteDate: parseTimeUTC(s.CompleteDate),
            })
        }
        if page.IsLast || len(page.Values) < pageSize { break }
        startAt += pageSize
    }
    return out, nil
}

func (c *Client) pagedIssues(ctx context.Context, path string) ([]domain.Issue, error) {
    var out []domain.Issue
    startAt := 0
    for {
        q := url.Values{}
        q.Set("startAt", strconv.Itoa(startAt))
        q.Set("maxResults", strconv.Itoa(pageSize))
        q.Set("fields", "issuetype,status,created,resolutiondate,assignee,labels,fixVersions,description,"+c.pointsField)
        u := c.apiURL(path, q)
        var page struct {
            Total  int        `json:"total"`
            Issues []issueDTO `json:"issues"`
        }
        if err := c.doJSON(ctx, http.MethodGet, u, &page); err != nil { return nil, err }
        if len(page.Issues) == 0 { break }
        for _, dto := range page.Issues {
            is, err := c.decodeIssue(dto)
            if err != nil {
                c.log.Warn().Err(err).Str("key", dto.Key).Msg("jira: skipping undecodable issue")
                continue
            }
            out = append(out, is)
        }
        startAt += len(page.Issues)
        if startAt >= page.Total { break }
    }
    return out, nil
}

// SprintIssues fetches the full issue set of one sprint.
func (c *Client) SprintIssues(ctx context.Context, sprintID int64) ([]domain.Issue, error) {
    return c.pagedIssues(ctx, fmt.Sprintf("/rest/agile/1.0/sprint/%d/issue", sprintID))
}

// BacklogIssues fetches a board's unsprinted issues.
func (c *Client) BacklogIssues(ctx context.Context, boardID int64) ([]domain.Issue, error) {
    return c.pagedIssues(ctx, fmt.Sprintf("/rest/agile/1.0/board/%d/backlog", boardID))
}

type boardDTO struct {
    ID   int64  `json:"id"`
    Name string `json:"name"`
    Type string `json:"type"`
}

// ResolveBoardsByNames walks the board list and returns the IDs of boards whose
// name matches exactly (case-sensitive, as the Jira UI shows them). Stops as
// soon as every wanted name is found.
func (c *Client) ResolveBoardsByNames(ctx context.Context, names []string) ([]int64, error) {
    wanted := map[string]struct{}{}
    for _, n := range names {
        if n = strings.TrimSpace(n); n != "" { wanted[n] = struct{}{} }
    }
    if len(wanted) == 0 { return nil, nil }
    out := make([]int64, 0, len(wanted))
    startAt := 0
    for {
        q := url.Values{}
        q.Set("startAt", strconv.Itoa(startAt))
        q.Set("maxResults", strconv.Itoa(pageSize))
        u := c.apiURL("/rest/agile/1.0/board", q)
        var page struct {
            IsLast bool       `json:"isLast"`
            Values []boardDTO `json:"values"`
        }
        if err := c.doJSON(ctx, http.MethodGet, u, &page); err != nil { return nil, err }
        for _, b := range page.Values {
            if _, ok := wanted[b.Name]; ok && b.ID > 0 {
                out = append(out, b.ID)
                delete(wanted, b.Name)
            }
        }
        if len(wanted) == 0 || page.IsLast || len(page.Values) == 0 { break }
        startAt += len(page.Values)
    }
    return out, nil
}

// IssueChangelog fetches one issue's changelog via expand. Callers graft the
// result onto an already-fetched issue.
func (c *Client) IssueChangelog(ctx context.Context, key string) (*domain.Changelog, error) {
    if key == "" { return nil, errors.New("jira: empty issue key") }
    q := url.Values{}
    q.Set("fields", "status")
    q.Set("expand", "changelog")
    path := "/rest/api/3/issue/" + url.PathEscape(key)
    if c.apiVer == "2" { path = "/rest/api/2/issue/" + url.PathEscape(key) }
    var dto issueDTO
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), &dto); err != nil { return nil, err }
    return convertChangelog(dto.Changelog), nil
}
