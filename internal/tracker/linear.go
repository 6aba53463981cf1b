package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client implements the Linear GraphQL operations the bot needs.
type Client struct {
	client   *http.Client
	endpoint string
	apiKey   string
	pageSize int
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint sets a custom GraphQL endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithPageSize sets the page size used for paginated listings.
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = n }
}

// NewLinear creates a Linear API client authenticated with a personal API key.
func NewLinear(apiKey string, opts ...Option) *Client {
	c := &Client{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: "https://api.linear.app/graphql",
		apiKey:   apiKey,
		pageSize: 100,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const teamByKeyQuery = `query TeamByKey($key: String!) {
  teams(filter: { key: { eq: $key } }) {
    nodes { id key name }
  }
}`

// TeamByKey looks up a team by its short key (e.g. "KDE").
func (c *Client) TeamByKey(ctx context.Context, key string) (*Team, error) {
	var data struct {
		Teams struct {
			Nodes []Team `json:"nodes"`
		} `json:"teams"`
	}
	if err := c.do(ctx, teamByKeyQuery, map[string]any{"key": key}, &data); err != nil {
		return nil, fmt.Errorf("linear: team %q: %w", key, err)
	}
	for _, t := range data.Teams.Nodes {
		if strings.EqualFold(t.Key, key) {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrTeamNotFound, key)
}

const createIssueMutation = `mutation CreateIssue($input: IssueCreateInput!) {
  issueCreate(input: $input) {
    success
    issue { id identifier title url createdAt }
  }
}`

// CreateIssue files a new issue.
func (c *Client) CreateIssue(ctx context.Context, in IssueInput) (*Issue, error) {
	vars := map[string]any{
		"input": map[string]any{
			"teamId":      in.TeamID,
			"title":       in.Title,
			"description": in.Description,
		},
	}
	var data struct {
		IssueCreate struct {
			Success bool   `json:"success"`
			Issue   *Issue `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := c.do(ctx, createIssueMutation, vars, &data); err != nil {
		return nil, fmt.Errorf("linear: create issue: %w", err)
	}
	if !data.IssueCreate.Success || data.IssueCreate.Issue == nil {
		return nil, fmt.Errorf("linear: create issue: not successful")
	}
	return data.IssueCreate.Issue, nil
}

const triageIssuesQuery = `query TriageIssues($teamKey: String!, $first: Int!, $after: String) {
  issues(
    filter: { team: { key: { eq: $teamKey } }, state: { type: { eq: "triage" } } }
    first: $first
    after: $after
  ) {
    nodes { id identifier title url createdAt }
    pageInfo { hasNextPage endCursor }
  }
}`

// TriageIssues lists every issue in a triage workflow state for the team.
func (c *Client) TriageIssues(ctx context.Context, teamKey string) ([]Issue, error) {
	var all []Issue
	var after *string
	for {
		vars := map[string]any{
			"teamKey": teamKey,
			"first":   c.pageSize,
			"after":   after,
		}
		var data struct {
			Issues struct {
				Nodes    []Issue `json:"nodes"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"issues"`
		}
		if err := c.do(ctx, triageIssuesQuery, vars, &data); err != nil {
			return nil, fmt.Errorf("linear: triage issues: %w", err)
		}
		all = append(all, data.Issues.Nodes...)
		if !data.Issues.PageInfo.HasNextPage || data.Issues.PageInfo.EndCursor == "" {
			return all, nil
		}
		cursor := data.Issues.PageInfo.EndCursor
		after = &cursor
	}
}

// --- GraphQL transport ---

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Personal API keys go in the header as-is, without a Bearer prefix.
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var gr graphqlResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return fmt.Errorf("graphql: empty data")
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}
