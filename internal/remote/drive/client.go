// Package drive lists Google Drive files and comments over the Drive v3 REST API.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"github.com/pysugar/workspace-mirror/internal/version"
)

const (
	DefaultBaseURL = "https://www.googleapis.com"

	// MaxPageSize is the Drive limit for files.list.
	MaxPageSize = 1000
	// MaxThreadPageSize is the Drive limit for comments.list.
	MaxThreadPageSize = 100

	filesFields    = "nextPageToken, files(id, name, createdTime, modifiedTime, mimeType, webViewLink)"
	commentsFields = "nextPageToken, comments(id, content, createdTime, modifiedTime, resolved, deleted, " +
		"author(displayName, me), replies(id, content, createdTime, modifiedTime, deleted, author(displayName, me)))"
)

// KindByMimeType is the closed set of Drive types that are mirrored.
var KindByMimeType = map[string]models.ResourceKind{
	"application/vnd.google-apps.document":     models.KindDocument,
	"application/vnd.google-apps.spreadsheet":  models.KindSpreadsheet,
	"application/vnd.google-apps.presentation": models.KindPresentation,
}

// Client talks to Drive using an already-authenticated *http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type driveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	WebViewLink  string    `json:"webViewLink"`
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

type fileList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

type driveUser struct {
	DisplayName string `json:"displayName"`
	Me          bool   `json:"me"`
}

type driveReply struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	Deleted      bool       `json:"deleted"`
	CreatedTime  time.Time  `json:"createdTime"`
	ModifiedTime time.Time  `json:"modifiedTime"`
	Author       *driveUser `json:"author"`
}

type driveComment struct {
	driveReply
	Resolved bool         `json:"resolved"`
	Replies  []driveReply `json:"replies"`
}

type commentList struct {
	NextPageToken string         `json:"nextPageToken"`
	Comments      []driveComment `json:"comments"`
}

// ListResources lists Docs, Sheets and Slides, optionally modified since a time.
func (c *Client) ListResources(ctx context.Context, filter remote.Filter, cursor string, pageSize int) (*remote.Page, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	params := url.Values{
		"q":        {BuildQuery(filter)},
		"pageSize": {strconv.Itoa(pageSize)},
		"fields":   {filesFields},
	}
	if cursor != "" {
		params.Set("pageToken", cursor)
	}

	var list fileList
	if err := c.get(ctx, "files.list", "/drive/v3/files", params, &list); err != nil {
		return nil, err
	}

	page := &remote.Page{NextCursor: list.NextPageToken}
	for _, f := range list.Files {
		kind, ok := KindByMimeType[f.MimeType]
		if !ok {
			continue
		}
		page.Records = append(page.Records, remote.Record{
			ExternalID: f.ID,
			Name:       f.Name,
			Kind:       kind,
			MimeType:   f.MimeType,
			Link:       f.WebViewLink,
			CreatedAt:  f.CreatedTime,
			ModifiedAt: f.ModifiedTime,
		})
	}
	return page, nil
}

// ListThreadItems lists comments of a file with their replies.
func (c *Client) ListThreadItems(ctx context.Context, externalID string, cursor string, pageSize int) (*remote.ItemPage, error) {
	if pageSize <= 0 || pageSize > MaxThreadPageSize {
		pageSize = MaxThreadPageSize
	}
	params := url.Values{
		"pageSize": {strconv.Itoa(pageSize)},
		"fields":   {commentsFields},
	}
	if cursor != "" {
		params.Set("pageToken", cursor)
	}

	var list commentList
	path := "/drive/v3/files/" + url.PathEscape(externalID) + "/comments"
	if err := c.get(ctx, "comments.list", path, params, &list); err != nil {
		return nil, err
	}

	page := &remote.ItemPage{NextCursor: list.NextPageToken}
	for _, cm := range list.Comments {
		item := toItem(cm.driveReply)
		item.Resolved = cm.Resolved
		for _, r := range cm.Replies {
			item.Replies = append(item.Replies, toItem(r))
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// WhoAmI returns the Google account behind the token.
func (c *Client) WhoAmI(ctx context.Context) (*remote.Identity, error) {
	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := c.get(ctx, "userinfo.get", "/oauth2/v2/userinfo", nil, &info); err != nil {
		return nil, err
	}
	return &remote.Identity{ID: info.ID, Email: info.Email, Name: info.Name}, nil
}

// BuildQuery renders the files.list q parameter for a filter.
func BuildQuery(filter remote.Filter) string {
	mimeTypes := make([]string, 0, len(KindByMimeType))
	for mt := range KindByMimeType {
		mimeTypes = append(mimeTypes, mt)
	}
	sort.Strings(mimeTypes)

	clauses := make([]string, len(mimeTypes))
	for i, mt := range mimeTypes {
		clauses[i] = fmt.Sprintf("mimeType=%q", mt)
	}
	q := "(" + strings.Join(clauses, " or ") + ")"
	if filter.ModifiedSince != nil {
		q += fmt.Sprintf(" and modifiedTime >= %q", filter.ModifiedSince.UTC().Format(time.RFC3339))
	}
	return q
}

func toItem(r driveReply) remote.Item {
	item := remote.Item{
		ExternalID: r.ID,
		Content:    r.Content,
		Deleted:    r.Deleted,
		CreatedAt:  r.CreatedTime,
		ModifiedAt: r.ModifiedTime,
	}
	if r.Author != nil {
		item.Author = &remote.Author{Me: r.Author.Me, DisplayName: r.Author.DisplayName}
	}
	return item
}

func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	const maxResponseSize = 50 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remote.NewAPIError(remote.ProviderGoogle, operation, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", operation, err)
	}
	return nil
}
