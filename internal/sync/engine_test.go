package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pysugar/workspace-mirror/internal/auth/token"
	"github.com/pysugar/workspace-mirror/internal/db/models"
	"github.com/pysugar/workspace-mirror/internal/remote"
	"gorm.io/gorm"
)

func newEngine(db *gorm.DB, client *fakeClient, now time.Time) (*Engine, *fakeOpener) {
	opener := &fakeOpener{client: client}
	engine := NewEngine(db, opener, Options{Now: func() time.Time { return now }})
	return engine, opener
}

func singlePage(records ...remote.Record) *fakeClient {
	return &fakeClient{pages: map[string]*remote.Page{"": {Records: records}}}
}

func loadResource(t *testing.T, db *gorm.DB, externalID string) models.Resource {
	t.Helper()
	var res models.Resource
	if err := db.Preload("Record").Preload("Users").Where("external_id = ?", externalID).First(&res).Error; err != nil {
		t.Fatalf("load resource %s: %v", externalID, err)
	}
	return res
}

func TestSyncFiles_CreateThenSameDayThenNextDay(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	writes := countWrites(t, db)
	req := FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle}

	// First sight creates f1 with its provider record and access grant.
	engine, _ := newEngine(db, singlePage(doc("f1", day(0))), day(0))
	res, err := engine.SyncFiles(context.Background(), req)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if res.Created != 1 || res.Updated != 0 || res.Pages != 1 {
		t.Fatalf("unexpected first result %+v", res)
	}
	f1 := loadResource(t, db, "f1")
	if f1.Name != "Doc f1" || f1.Kind != models.KindDocument || !f1.UpdatedAt.Equal(day(0)) || !f1.CreatedAt.Equal(day(-30)) {
		t.Fatalf("unexpected resource %+v", f1)
	}
	if f1.Record.MimeType != "application/vnd.google-apps.document" || len(f1.Users) != 1 || f1.Users[0].ID != user.ID {
		t.Fatalf("unexpected record/grant %+v / %+v", f1.Record, f1.Users)
	}

	// Same calendar day, different minute: nothing is written.
	writes.reset()
	sameDay := doc("f1", day(0).Add(5*time.Hour+17*time.Minute))
	sameDay.Name = "Renamed same day"
	engine, _ = newEngine(db, singlePage(sameDay), day(0))
	res, err = engine.SyncFiles(context.Background(), req)
	if err != nil {
		t.Fatalf("same-day sync: %v", err)
	}
	if res.Created != 0 || res.Updated != 0 || res.Granted != 0 || writes.total() != 0 {
		t.Fatalf("expected no mutation, got %+v and %v", res, writes.tables)
	}

	// Next day: exactly one resource update, provider record untouched.
	writes.reset()
	nextDay := doc("f1", day(1))
	nextDay.Name = "Renamed next day"
	engine, _ = newEngine(db, singlePage(nextDay), day(1))
	res, err = engine.SyncFiles(context.Background(), req)
	if err != nil {
		t.Fatalf("next-day sync: %v", err)
	}
	if res.Updated != 1 || res.Created != 0 {
		t.Fatalf("expected one update, got %+v", res)
	}
	if writes.table("resources") != 1 || writes.table("provider_records") != 0 || writes.total() != 1 {
		t.Fatalf("expected a single resources write, got %v", writes.tables)
	}
	f1 = loadResource(t, db, "f1")
	if f1.Name != "Renamed next day" || !f1.UpdatedAt.Equal(day(1)) {
		t.Fatalf("update not applied: %+v", f1)
	}
}

func TestSyncFiles_IdempotentRerun(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	client := singlePage(doc("f1", day(0)), doc("f2", day(0)))
	engine, _ := newEngine(db, client, day(0))
	req := FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle}

	if _, err := engine.SyncFiles(context.Background(), req); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	writes := countWrites(t, db)
	res, err := engine.SyncFiles(context.Background(), req)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Created+res.Updated+res.Granted != 0 || writes.total() != 0 {
		t.Fatalf("second run mutated: %+v %v", res, writes.tables)
	}
	if res.Skipped != 2 {
		t.Fatalf("expected 2 unchanged records, got %+v", res)
	}
}

func TestSyncFiles_ProviderRecordUpdatedWhenFieldsDiffer(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	req := FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle}

	engine, _ := newEngine(db, singlePage(doc("f1", day(0))), day(0))
	if _, err := engine.SyncFiles(context.Background(), req); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	moved := doc("f1", day(2))
	moved.Link = "https://docs.example.com/moved"
	engine, _ = newEngine(db, singlePage(moved), day(2))
	if _, err := engine.SyncFiles(context.Background(), req); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if got := loadResource(t, db, "f1").Record.Link; got != "https://docs.example.com/moved" {
		t.Fatalf("provider record not updated: %q", got)
	}
}

func TestSyncFiles_ExactTimestampPolicy(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	req := FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle}
	opts := Options{Policy: ExactTimestamp{}, Now: func() time.Time { return day(0) }}

	engine := NewEngine(db, &fakeOpener{client: singlePage(doc("f1", day(0)))}, opts)
	if _, err := engine.SyncFiles(context.Background(), req); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	engine = NewEngine(db, &fakeOpener{client: singlePage(doc("f1", day(0).Add(time.Minute)))}, opts)
	res, err := engine.SyncFiles(context.Background(), req)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("exact policy should update on a minute change, got %+v", res)
	}
}

func TestSyncFiles_DrainsAllPagesInOrder(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	client := &fakeClient{pages: map[string]*remote.Page{
		"":   {Records: []remote.Record{doc("f1", day(0))}, NextCursor: "c1"},
		"c1": {Records: []remote.Record{doc("f2", day(0))}, NextCursor: "c2"},
		"c2": {Records: []remote.Record{doc("f3", day(0))}},
	}}
	engine, _ := newEngine(db, client, day(0))

	res, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := strings.Join(client.recorded(), ","); got != ",c1,c2" {
		t.Fatalf("expected calls [\"\" c1 c2], got %q", got)
	}
	if res.Pages != 3 || res.Created != 3 || res.LastCursor != "c2" {
		t.Fatalf("unexpected result %+v", res)
	}
	for _, size := range client.pageSizes {
		if size != DefaultPageSize {
			t.Fatalf("expected page size %d, got %d", DefaultPageSize, size)
		}
	}
}

func TestSyncFiles_ResumesFromCursor(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	client := &fakeClient{pages: map[string]*remote.Page{
		"c1": {Records: []remote.Record{doc("f2", day(0))}, NextCursor: "c2"},
		"c2": {Records: []remote.Record{doc("f3", day(0))}},
	}}
	engine, _ := newEngine(db, client, day(0))

	res, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle, Cursor: "c1"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := strings.Join(client.recorded(), ","); got != "c1,c2" || res.Created != 2 {
		t.Fatalf("unexpected calls %q / result %+v", got, res)
	}
}

func TestSyncFiles_RecentOnlySetsWindow(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	client := singlePage()
	engine, _ := newEngine(db, client, day(0))

	if _, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.Email, Provider: remote.ProviderGoogle, RecentOnly: true}); err != nil {
		t.Fatalf("recent sync: %v", err)
	}
	if _, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle}); err != nil {
		t.Fatalf("full sync: %v", err)
	}
	if len(client.filters) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(client.filters))
	}
	since := client.filters[0].ModifiedSince
	if since == nil || !since.Equal(day(0).Add(-14*24*time.Hour)) {
		t.Fatalf("expected 14-day window, got %v", since)
	}
	if client.filters[1].ModifiedSince != nil {
		t.Fatal("full sync must not bound modification time")
	}
}

func TestSyncFiles_CancelledBetweenPages(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{pages: map[string]*remote.Page{
		"":   {Records: []remote.Record{doc("f1", day(0))}, NextCursor: "c1"},
		"c1": {Records: []remote.Record{doc("f2", day(0))}},
	}}
	// Cancel while the first listing call is in flight.
	client.onList = func(string) { cancel() }
	engine, _ := newEngine(db, client, day(0))

	res, err := engine.SyncFiles(ctx, FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(client.recorded()) != 1 || res.Pages != 1 || res.LastCursor != "c1" {
		t.Fatalf("expected to stop before page 2, got calls %v result %+v", client.recorded(), res)
	}
	var count int64
	db.Model(&models.Resource{}).Count(&count)
	if count != 1 {
		t.Fatalf("in-flight page should still be applied, got %d resources", count)
	}
}

func TestSyncFiles_CredentialsExpiredLeavesNoPartialPage(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	client := &fakeClient{
		pages: map[string]*remote.Page{
			"": {Records: []remote.Record{doc("f1", day(0))}, NextCursor: "c1"},
		},
		errs: map[string]error{"c1": fmt.Errorf("%w: google files.list: refresh failed", token.ErrCredentialsExpired)},
	}
	engine, _ := newEngine(db, client, day(0))

	res, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle})
	if !errors.Is(err, token.ErrCredentialsExpired) {
		t.Fatalf("expected ErrCredentialsExpired, got %v", err)
	}
	var remoteErr *RemoteFailureError
	if errors.As(err, &remoteErr) {
		t.Fatal("expired credentials must not be reported as a remote failure")
	}
	if res.Pages != 1 || res.LastCursor != "c1" {
		t.Fatalf("expected failure at c1 after one page, got %+v", res)
	}
	var count int64
	db.Model(&models.Resource{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected only page 1 committed, got %d resources", count)
	}
}

func TestSyncFiles_RemoteFailureCarriesCursor(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	client := &fakeClient{errs: map[string]error{"": remote.NewAPIError(remote.ProviderGoogle, "files.list", 503, []byte("unavailable"))}}
	engine, _ := newEngine(db, client, day(0))

	_, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle})
	var remoteErr *RemoteFailureError
	if !errors.As(err, &remoteErr) || remoteErr.Operation != "files.list" || remoteErr.Cursor != "" {
		t.Fatalf("expected RemoteFailureError for files.list, got %v", err)
	}
}

func TestSyncFiles_BatchFailureRollsBackPage(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	if err := db.Exec(`CREATE TRIGGER reject_boom BEFORE INSERT ON resources
		WHEN NEW.external_id = 'boom'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END;`).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	client := &fakeClient{pages: map[string]*remote.Page{
		"":   {Records: []remote.Record{doc("ok-1", day(0))}, NextCursor: "c1"},
		"c1": {Records: []remote.Record{doc("ok-2", day(0)), doc("ok-3", day(0)), doc("boom", day(0))}, NextCursor: "c2"},
	}}
	engine, _ := newEngine(db, client, day(0))

	res, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle})
	var failed *ReconciliationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected ReconciliationFailedError, got %v", err)
	}
	if failed.Page != 2 || failed.Cursor != "c1" || failed.Index != 2 || failed.ExternalID != "boom" {
		t.Fatalf("unexpected failure position %+v", failed)
	}
	if res.LastCursor != "c1" || res.Created != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	var ids []string
	db.Model(&models.Resource{}).Order("external_id").Pluck("external_id", &ids)
	if strings.Join(ids, ",") != "ok-1" {
		t.Fatalf("expected only page 1 committed, got %v", ids)
	}
	var grants int64
	db.Model(&models.ResourceAccess{}).Count(&grants)
	if grants != 1 {
		t.Fatalf("expected 1 grant, got %d", grants)
	}
}

func TestSyncFiles_GrantsAccessToSecondUser(t *testing.T) {
	db := newTestDB(t)
	ada := createUser(t, db, "ada@example.com")
	bob := createUser(t, db, "bob@example.com")
	engine, _ := newEngine(db, singlePage(doc("shared", day(0))), day(0))

	if _, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: ada.ID, Provider: remote.ProviderGoogle}); err != nil {
		t.Fatalf("ada sync: %v", err)
	}
	res, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: bob.ID, Provider: remote.ProviderGoogle})
	if err != nil {
		t.Fatalf("bob sync: %v", err)
	}
	if res.Created != 0 || res.Granted != 1 {
		t.Fatalf("expected a grant for bob, got %+v", res)
	}
	res, _ = engine.SyncFiles(context.Background(), FileSyncRequest{UserID: bob.ID, Provider: remote.ProviderGoogle})
	if res.Granted != 0 {
		t.Fatalf("grant must not repeat, got %+v", res)
	}
	if users := loadResource(t, db, "shared").Users; len(users) != 2 {
		t.Fatalf("expected 2 users on shared resource, got %d", len(users))
	}
}

func TestSyncFiles_SkipsUnmappedAndDuplicateRecords(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	unmapped := doc("pdf", day(0))
	unmapped.Kind = ""
	engine, _ := newEngine(db, singlePage(doc("f1", day(0)), doc("f1", day(0)), unmapped), day(0))

	res, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Created != 1 || res.Skipped != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSyncFiles_OpenFailurePropagates(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada@example.com")
	engine := NewEngine(db, &fakeOpener{errs: map[string]error{user.ID: token.ErrNoCredential}}, Options{})

	_, err := engine.SyncFiles(context.Background(), FileSyncRequest{UserID: user.ID, Provider: remote.ProviderGoogle})
	if !errors.Is(err, token.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

func TestSyncAllFiles_IsolatesFailures(t *testing.T) {
	db := newTestDB(t)
	ada := createUser(t, db, "ada@example.com")
	bob := createUser(t, db, "bob@example.com")
	for _, u := range []*models.User{ada, bob} {
		cred := models.Credential{ID: "cred-" + u.ID, UserID: u.ID, Provider: remote.ProviderGoogle, AccessToken: "t"}
		if err := db.Create(&cred).Error; err != nil {
			t.Fatalf("create credential: %v", err)
		}
	}
	opener := &fakeOpener{
		client: singlePage(doc("f1", day(0))),
		errs:   map[string]error{bob.ID: token.ErrCredentialsExpired},
	}
	engine := NewEngine(db, opener, Options{Now: func() time.Time { return day(0) }})

	reports, err := engine.SyncAllFiles(context.Background(), true)
	if !errors.Is(err, token.ErrCredentialsExpired) {
		t.Fatalf("expected joined ErrCredentialsExpired, got %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	for _, r := range reports {
		switch r.UserID {
		case ada.ID:
			if r.Err != nil || r.Files.Created != 1 {
				t.Fatalf("ada task should succeed: %+v", r)
			}
		case bob.ID:
			if r.Err == nil {
				t.Fatal("bob task should fail")
			}
		}
	}
}
