package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/steveyegge/triage/internal/types"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is Linear's GraphQL API
const DefaultEndpoint = "https://api.linear.app/graphql"

const commentPageSize = 100

// Config holds Linear client configuration
type Config struct {
	APIKey            string
	Endpoint          string        // Default: DefaultEndpoint
	RequestsPerSecond float64       // Client-side rate limit (default: 5, <0 = unlimited)
	Burst             int           // Default: 5
	Timeout           time.Duration // Per-request timeout (default: 30s)
	HTTPClient        *http.Client  // Optional, for tests
	Logger            *slog.Logger
}

// LinearClient talks to Linear over GraphQL. It holds no per-request state.
type LinearClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	log      *slog.Logger
}

// NewLinearClient creates a Linear client
func NewLinearClient(cfg Config) (*LinearClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("linear API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond < 0 {
		limit = rate.Inf
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &LinearClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		log:      log,
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// do executes one GraphQL operation and decodes data into out
func (c *LinearClient) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	c.log.Debug("tracker call", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	var gr graphQLResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d: %s", op, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%s: graphql errors: %s", op, strings.Join(msgs, "; "))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", op, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w", op, err)
	}
	return nil
}

type idRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

const issueQuery = `query Issue($id: String!) {
  issue(id: $id) {
    id identifier title description
    team { id }
    creator { id }
    labels { nodes { id } }
  }
}`

// GetIssue fetches an issue with its current labels
func (c *LinearClient) GetIssue(ctx context.Context, issueID string) (*types.Issue, error) {
	var data struct {
		Issue *struct {
			ID          string `json:"id"`
			Identifier  string `json:"identifier"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Team        *idRef `json:"team"`
			Creator     *idRef `json:"creator"`
			Labels      struct {
				Nodes []idRef `json:"nodes"`
			} `json:"labels"`
		} `json:"issue"`
	}
	if err := c.do(ctx, "issue", issueQuery, map[string]any{"id": issueID}, &data); err != nil {
		return nil, err
	}
	if data.Issue == nil {
		return nil, fmt.Errorf("issue %s not found", issueID)
	}

	issue := &types.Issue{
		ID:          data.Issue.ID,
		Identifier:  data.Issue.Identifier,
		Title:       data.Issue.Title,
		Description: data.Issue.Description,
		LabelIDs:    make([]string, 0, len(data.Issue.Labels.Nodes)),
	}
	if data.Issue.Team != nil {
		issue.TeamID = data.Issue.Team.ID
	}
	if data.Issue.Creator != nil {
		issue.CreatorID = data.Issue.Creator.ID
	}
	for _, l := range data.Issue.Labels.Nodes {
		issue.LabelIDs = append(issue.LabelIDs, l.ID)
	}
	return issue, nil
}

const commentsQuery = `query IssueComments($id: String!, $first: Int!, $after: String) {
  issue(id: $id) {
    comments(first: $first, after: $after) {
      nodes { id body createdAt user { id name } }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

// ListComments pages through all comments and sorts them by creation time
func (c *LinearClient) ListComments(ctx context.Context, issueID string) ([]types.Comment, error) {
	var comments []types.Comment
	var after *string
	for {
		var data struct {
			Issue *struct {
				Comments struct {
					Nodes []struct {
						ID        string    `json:"id"`
						Body      string    `json:"body"`
						CreatedAt time.Time `json:"createdAt"`
						User      *idRef    `json:"user"`
					} `json:"nodes"`
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
				} `json:"comments"`
			} `json:"issue"`
		}
		vars := map[string]any{"id": issueID, "first": commentPageSize, "after": after}
		if err := c.do(ctx, "issue.comments", commentsQuery, vars, &data); err != nil {
			return nil, err
		}
		if data.Issue == nil {
			return nil, fmt.Errorf("issue %s not found", issueID)
		}

		for _, n := range data.Issue.Comments.Nodes {
			comment := types.Comment{ID: n.ID, Body: n.Body, IssueID: issueID, CreatedAt: n.CreatedAt}
			if n.User != nil {
				comment.UserID = n.User.ID
				comment.UserName = n.User.Name
			}
			comments = append(comments, comment)
		}

		page := data.Issue.Comments.PageInfo
		if !page.HasNextPage || page.EndCursor == "" {
			break
		}
		cursor := page.EndCursor
		after = &cursor
	}

	slices.SortStableFunc(comments, func(a, b types.Comment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return comments, nil
}

// mutationPayload is the common shape of Linear mutation results
type mutationPayload struct {
	Success bool   `json:"success"`
	Issue   *idRef `json:"issue,omitempty"`
	Comment *idRef `json:"comment,omitempty"`
}

// mutate runs a mutation whose payload sits under field and checks success
func (c *LinearClient) mutate(ctx context.Context, field, query string, vars map[string]any) (*mutationPayload, error) {
	var data map[string]*mutationPayload
	if err := c.do(ctx, field, query, vars, &data); err != nil {
		return nil, err
	}
	payload := data[field]
	if payload == nil || !payload.Success {
		return nil, fmt.Errorf("%s: %w", field, ErrUnsuccessful)
	}
	return payload, nil
}

const issueUpdateMutation = `mutation IssueUpdate($id: String!, $input: IssueUpdateInput!) {
  issueUpdate(id: $id, input: $input) { success }
}`

// UpdateIssue applies a partial update. A non-nil empty LabelIDs clears all labels.
func (c *LinearClient) UpdateIssue(ctx context.Context, issueID string, update IssueUpdate) error {
	_, err := c.mutate(ctx, "issueUpdate", issueUpdateMutation, map[string]any{"id": issueID, "input": updateInput(update)})
	return err
}

func updateInput(u IssueUpdate) map[string]any {
	input := make(map[string]any)
	if u.Title != nil {
		input["title"] = *u.Title
	}
	if u.Description != nil {
		input["description"] = *u.Description
	}
	if u.TeamID != nil {
		input["teamId"] = *u.TeamID
	}
	if u.LabelIDs != nil {
		input["labelIds"] = u.LabelIDs
	}
	if u.Estimate != nil {
		input["estimate"] = *u.Estimate
	}
	if u.Priority != nil {
		input["priority"] = *u.Priority
	}
	if u.AssigneeID != nil {
		input["assigneeId"] = *u.AssigneeID
	}
	return input
}

const issueCreateMutation = `mutation IssueCreate($input: IssueCreateInput!) {
  issueCreate(input: $input) { success issue { id } }
}`

// CreateSubtask creates a child issue under parentID
func (c *LinearClient) CreateSubtask(ctx context.Context, parentID, teamID, title string) (string, error) {
	input := map[string]any{"title": title, "parentId": parentID}
	if teamID != "" {
		input["teamId"] = teamID
	}
	payload, err := c.mutate(ctx, "issueCreate", issueCreateMutation, map[string]any{"input": input})
	if err != nil {
		return "", err
	}
	if payload.Issue == nil {
		return "", nil
	}
	return payload.Issue.ID, nil
}

const commentCreateMutation = `mutation CommentCreate($input: CommentCreateInput!) {
  commentCreate(input: $input) { success comment { id } }
}`

// CreateComment posts a comment on an issue
func (c *LinearClient) CreateComment(ctx context.Context, issueID, body string) (string, error) {
	input := map[string]any{"issueId": issueID, "body": body}
	payload, err := c.mutate(ctx, "commentCreate", commentCreateMutation, map[string]any{"input": input})
	if err != nil {
		return "", err
	}
	if payload.Comment == nil {
		return "", nil
	}
	return payload.Comment.ID, nil
}

const addLabelMutation = `mutation IssueAddLabel($id: String!, $labelId: String!) {
  issueAddLabel(id: $id, labelId: $labelId) { success }
}`

// AddLabel attaches a label without touching the rest of the label set
func (c *LinearClient) AddLabel(ctx context.Context, issueID, labelID string) error {
	_, err := c.mutate(ctx, "issueAddLabel", addLabelMutation, map[string]any{"id": issueID, "labelId": labelID})
	return err
}

const subscribeMutation = `mutation IssueSubscribe($id: String!, $userId: String) {
  issueSubscribe(id: $id, userId: $userId) { success }
}`

// Subscribe subscribes a user to issue notifications
func (c *LinearClient) Subscribe(ctx context.Context, issueID, userID string) error {
	_, err := c.mutate(ctx, "issueSubscribe", subscribeMutation, map[string]any{"id": issueID, "userId": userID})
	return err
}

const reactionMutation = `mutation ReactionCreate($input: ReactionCreateInput!) {
  reactionCreate(input: $input) { success }
}`

// AddReaction reacts to the issue with an emoji
func (c *LinearClient) AddReaction(ctx context.Context, issueID, emoji string) error {
	input := map[string]any{"issueId": issueID, "emoji": emoji}
	_, err := c.mutate(ctx, "reactionCreate", reactionMutation, map[string]any{"input": input})
	return err
}

var _ Tracker = (*LinearClient)(nil)
