// Package remote defines the provider-agnostic listing protocol the sync
// engine drives, and the error shapes remote clients report.
package remote

import (
	"context"
	"time"

	"github.com/pysugar/workspace-mirror/internal/db/models"
)

// Provider IDs.
const (
	ProviderGoogle = "google"
	ProviderAsana  = "asana"
)

// Record is one remote document or task as returned by a listing call.
type Record struct {
	ExternalID string
	Name       string
	Kind       models.ResourceKind
	MimeType   string
	Link       string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Author describes who wrote a thread item. Me is set when the remote API says
// the authenticated identity wrote it.
type Author struct {
	Me          bool
	DisplayName string
}

// Item is a comment or reply. Replies are only populated on top-level items.
type Item struct {
	ExternalID string
	Content    string
	Resolved   bool
	Deleted    bool
	CreatedAt  time.Time
	ModifiedAt time.Time
	Author     *Author
	Replies    []Item
}

// Filter narrows a listing. A nil ModifiedSince lists everything.
type Filter struct {
	ModifiedSince *time.Time
}

// Page is one listing response. An empty NextCursor means the listing is exhausted.
type Page struct {
	Records    []Record
	NextCursor string
}

// ItemPage is one page of thread items.
type ItemPage struct {
	Items      []Item
	NextCursor string
}

// Identity is the remote account behind a credential.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Client is implemented per provider on top of an authenticated *http.Client.
type Client interface {
	ListResources(ctx context.Context, filter Filter, cursor string, pageSize int) (*Page, error)
	ListThreadItems(ctx context.Context, externalID string, cursor string, pageSize int) (*ItemPage, error)
	WhoAmI(ctx context.Context) (*Identity, error)
}

// Session is an authenticated handle for one user and provider. Do runs fn
// with a client bound to the current token, refreshing and retrying once when
// the call fails in an auth-shaped way.
type Session interface {
	UserID() string
	Provider() string
	Do(ctx context.Context, operation string, fn func(ctx context.Context, c Client) error) error
}

// Opener builds sessions from stored credentials.
type Opener interface {
	Open(ctx context.Context, userID, provider string) (Session, error)
}
