package sync

import (
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	mirrordb "github.com/pysugar/workspace-mirror/internal/db"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"gorm.io/gorm"
)

// fakeClient serves scripted pages keyed by cursor and records every call.
type fakeClient struct {
	mu        gosync.Mutex
	pages     map[string]*remote.Page
	threads   map[string]*remote.ItemPage
	errs      map[string]error
	calls     []string
	filters   []remote.Filter
	onList    func(cursor string)
	pageSizes []int
}

func (c *fakeClient) ListResources(ctx context.Context, filter remote.Filter, cursor string, pageSize int) (*remote.Page, error) {
	c.mu.Lock()
	c.calls = append(c.calls, cursor)
	c.filters = append(c.filters, filter)
	c.pageSizes = append(c.pageSizes, pageSize)
	onList := c.onList
	c.mu.Unlock()
	if onList != nil {
		onList(cursor)
	}
	if err := c.errs[cursor]; err != nil {
		return nil, err
	}
	page, ok := c.pages[cursor]
	if !ok {
		return nil, fmt.Errorf("unexpected cursor %q", cursor)
	}
	return page, nil
}

func (c *fakeClient) ListThreadItems(ctx context.Context, externalID, cursor string, pageSize int) (*remote.ItemPage, error) {
	c.mu.Lock()
	c.calls = append(c.calls, externalID+"@"+cursor)
	c.pageSizes = append(c.pageSizes, pageSize)
	onList := c.onList
	c.mu.Unlock()
	if onList != nil {
		onList(cursor)
	}
	if err := c.errs[cursor]; err != nil {
		return nil, err
	}
	page, ok := c.threads[cursor]
	if !ok {
		return nil, fmt.Errorf("unexpected cursor %q", cursor)
	}
	return page, nil
}

func (c *fakeClient) WhoAmI(ctx context.Context) (*remote.Identity, error) {
	return &remote.Identity{ID: "me", Email: "me@example.com"}, nil
}

func (c *fakeClient) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeSession struct {
	userID   string
	provider string
	client   remote.Client
}

func (s *fakeSession) UserID() string   { return s.userID }
func (s *fakeSession) Provider() string { return s.provider }
func (s *fakeSession) Do(ctx context.Context, operation string, fn func(ctx context.Context, c remote.Client) error) error {
	return fn(ctx, s.client)
}

// fakeOpener hands out sessions per user; users in errs fail to open.
type fakeOpener struct {
	mu     gosync.Mutex
	client remote.Client
	errs   map[string]error
	opened []string
}

func (o *fakeOpener) Open(ctx context.Context, userID, provider string) (remote.Session, error) {
	o.mu.Lock()
	o.opened = append(o.opened, userID)
	o.mu.Unlock()
	if err := o.errs[userID]; err != nil {
		return nil, err
	}
	return &fakeSession{userID: userID, provider: provider, client: o.client}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := mirrordb.InitDB(filepath.Join(t.TempDir(), "sync.db"), "info")
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user, err := mirrordb.CreateUser(db, email, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// day returns 09:00 UTC on 2024-03-(10+offset).
func day(offset int) time.Time {
	return time.Date(2024, 3, 10+offset, 9, 0, 0, 0, time.UTC)
}

func doc(id string, modified time.Time) remote.Record {
	return remote.Record{
		ExternalID: id,
		Name:       "Doc " + id,
		Kind:       models.KindDocument,
		MimeType:   "application/vnd.google-apps.document",
		Link:       "https://docs.example.com/" + id,
		CreatedAt:  day(-30),
		ModifiedAt: modified,
	}
}

// writeCounter counts create and update statements per table.
type writeCounter struct {
	mu     gosync.Mutex
	tables map[string]int
}

func countWrites(t *testing.T, db *gorm.DB) *writeCounter {
	t.Helper()
	c := &writeCounter{tables: make(map[string]int)}
	record := func(tx *gorm.DB) {
		if tx.Error != nil || tx.RowsAffected == 0 {
			return
		}
		c.mu.Lock()
		c.tables[tx.Statement.Table]++
		c.mu.Unlock()
	}
	if err := db.Callback().Create().After("gorm:create").Register("test:count_create", record); err != nil {
		t.Fatalf("register create callback: %v", err)
	}
	if err := db.Callback().Update().After("gorm:update").Register("test:count_update", record); err != nil {
		t.Fatalf("register update callback: %v", err)
	}
	return c
}

func (c *writeCounter) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = make(map[string]int)
}

func (c *writeCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.tables {
		n += v
	}
	return n
}

func (c *writeCounter) table(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tables[name]
}
