// Package asana lists Asana tasks and their comment stories over the v1 REST API.
package asana

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"github.com/pysugar/workspace-mirror/internal/version"
)

const (
	DefaultBaseURL = "https://app.asana.com/api/1.0"

	// MaxPageSize is Asana's upper bound for limit.
	MaxPageSize = 100

	taskFields  = "gid,name,created_at,modified_at,resource_subtype,permalink_url"
	storyFields = "gid,text,created_at,resource_subtype,created_by.gid,created_by.name"

	storyComment = "comment_added"
)

// KindBySubtype maps task subtypes to resource kinds.
var KindBySubtype = map[string]models.ResourceKind{
	"default_task": models.KindTask,
	"milestone":    models.KindTask,
	"approval":     models.KindTask,
}

// Client talks to Asana with an authenticated *http.Client. The workspace
// defaults to the first workspace of the authenticated user.
type Client struct {
	baseURL    string
	workspace  string
	httpClient *http.Client

	mu sync.Mutex
	me *user
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL, workspace string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		workspace:  strings.TrimSpace(workspace),
		httpClient: httpClient,
	}
}

type compact struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

type user struct {
	GID        string    `json:"gid"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Workspaces []compact `json:"workspaces"`
}

type task struct {
	GID             string    `json:"gid"`
	Name            string    `json:"name"`
	ResourceSubtype string    `json:"resource_subtype"`
	PermalinkURL    string    `json:"permalink_url"`
	CreatedAt       time.Time `json:"created_at"`
	ModifiedAt      time.Time `json:"modified_at"`
}

type story struct {
	GID             string    `json:"gid"`
	Text            string    `json:"text"`
	ResourceSubtype string    `json:"resource_subtype"`
	CreatedAt       time.Time `json:"created_at"`
	CreatedBy       *compact  `json:"created_by"`
}

type nextPage struct {
	Offset string `json:"offset"`
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	NextPage *nextPage       `json:"next_page"`
}

// ListResources lists tasks assigned to the authenticated user.
func (c *Client) ListResources(ctx context.Context, filter remote.Filter, cursor string, pageSize int) (*remote.Page, error) {
	workspace, err := c.resolveWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"assignee":   {"me"},
		"workspace":  {workspace},
		"limit":      {strconv.Itoa(clampPageSize(pageSize))},
		"opt_fields": {taskFields},
	}
	if filter.ModifiedSince != nil {
		params.Set("modified_since", filter.ModifiedSince.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		params.Set("offset", cursor)
	}

	var tasks []task
	next, err := c.get(ctx, "tasks.list", "/tasks", params, &tasks)
	if err != nil {
		return nil, err
	}

	page := &remote.Page{NextCursor: next}
	for _, t := range tasks {
		kind, ok := KindBySubtype[t.ResourceSubtype]
		if !ok {
			continue
		}
		page.Records = append(page.Records, remote.Record{
			ExternalID: t.GID,
			Name:       t.Name,
			Kind:       kind,
			MimeType:   t.ResourceSubtype,
			Link:       t.PermalinkURL,
			CreatedAt:  t.CreatedAt,
			ModifiedAt: t.ModifiedAt,
		})
	}
	return page, nil
}

// ListThreadItems lists comment stories of a task. Asana comments have no
// replies and no resolved state.
func (c *Client) ListThreadItems(ctx context.Context, externalID string, cursor string, pageSize int) (*remote.ItemPage, error) {
	me, err := c.whoAmI(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"limit":      {strconv.Itoa(clampPageSize(pageSize))},
		"opt_fields": {storyFields},
	}
	if cursor != "" {
		params.Set("offset", cursor)
	}

	var stories []story
	next, err := c.get(ctx, "stories.list", "/tasks/"+url.PathEscape(externalID)+"/stories", params, &stories)
	if err != nil {
		return nil, err
	}

	page := &remote.ItemPage{NextCursor: next}
	for _, s := range stories {
		if s.ResourceSubtype != storyComment {
			continue
		}
		item := remote.Item{
			ExternalID: s.GID,
			Content:    s.Text,
			CreatedAt:  s.CreatedAt,
			ModifiedAt: s.CreatedAt,
		}
		if s.CreatedBy != nil {
			item.Author = &remote.Author{Me: s.CreatedBy.GID == me.GID, DisplayName: s.CreatedBy.Name}
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// WhoAmI returns the Asana user behind the token.
func (c *Client) WhoAmI(ctx context.Context) (*remote.Identity, error) {
	me, err := c.whoAmI(ctx)
	if err != nil {
		return nil, err
	}
	return &remote.Identity{ID: me.GID, Email: me.Email, Name: me.Name}, nil
}

func (c *Client) whoAmI(ctx context.Context) (*user, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.me != nil {
		return c.me, nil
	}
	params := url.Values{"opt_fields": {"gid,email,name,workspaces.gid,workspaces.name"}}
	var me user
	if _, err := c.get(ctx, "users.me", "/users/me", params, &me); err != nil {
		return nil, err
	}
	c.me = &me
	return c.me, nil
}

func (c *Client) resolveWorkspace(ctx context.Context) (string, error) {
	if c.workspace != "" {
		return c.workspace, nil
	}
	me, err := c.whoAmI(ctx)
	if err != nil {
		return "", err
	}
	if len(me.Workspaces) == 0 {
		return "", fmt.Errorf("asana user %s has no workspaces", me.GID)
	}
	return me.Workspaces[0].GID, nil
}

func clampPageSize(pageSize int) int {
	if pageSize <= 0 || pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}

// get decodes the data envelope into out and returns the next offset, if any.
func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out interface{}) (string, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	const maxResponseSize = 50 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", remote.NewAPIError(remote.ProviderAsana, operation, resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("failed to parse %s response: %w", operation, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return "", fmt.Errorf("failed to parse %s data: %w", operation, err)
	}
	if env.NextPage != nil {
		return env.NextPage.Offset, nil
	}
	return "", nil
}
