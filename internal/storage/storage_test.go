package storage

import (
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the expected indexes are created by the migrations.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_sessions_user", "idx_sessions_expires", "idx_items_user", "idx_requests_user_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// --- Users ---

func TestCreateAndGetUser(t *testing.T) {
	s := openTestStore(t)

	want := User{
		ID:           "u-001",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$stub",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := s.CreateUser(want); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUser("u-001")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != want.Email {
		t.Errorf("Email = %q, want %q", got.Email, want.Email)
	}
	if got.PasswordHash != want.PasswordHash {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, want.PasswordHash)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

// TestGetUserByEmail_CaseInsensitive verifies the NOCASE collation on email lookup.
func TestGetUserByEmail_CaseInsensitive(t *testing.T) {
	s := openTestStore(t)

	u := User{ID: "u-ci", Email: "Bob@Example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := s.GetUserByEmail("bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != "u-ci" {
		t.Errorf("ID = %q, want %q", got.ID, "u-ci")
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := openTestStore(t)

	u := User{ID: "u-dup-1", Email: "carol@example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	dup := User{ID: "u-dup-2", Email: "CAROL@example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}
	if err := s.CreateUser(dup); err != ErrExists {
		t.Errorf("error = %v, want ErrExists", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetUser("nope"); err != ErrNotFound {
		t.Errorf("GetUser error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetUserByEmail("nope@example.com"); err != ErrNotFound {
		t.Errorf("GetUserByEmail error = %v, want ErrNotFound", err)
	}
}

// --- Sessions ---

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	sess := Session{
		Token:     "tok-1",
		UserID:    "u-1",
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSession("tok-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != "u-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "u-1")
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, sess.ExpiresAt)
	}

	if err := s.DeleteSession("tok-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession("tok-1"); err != ErrNotFound {
		t.Errorf("GetSession after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteSessionNotFound(t *testing.T) {
	s := openTestStore(t)

	if err := s.DeleteSession("missing"); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	expired := Session{Token: "tok-old", UserID: "u-1", CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	live := Session{Token: "tok-live", UserID: "u-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := s.CreateSession(expired); err != nil {
		t.Fatalf("CreateSession expired: %v", err)
	}
	if err := s.CreateSession(live); err != nil {
		t.Fatalf("CreateSession live: %v", err)
	}

	n, err := s.DeleteExpiredSessions(now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d sessions, want 1", n)
	}

	if _, err := s.GetSession("tok-live"); err != nil {
		t.Errorf("live session should survive: %v", err)
	}
	if _, err := s.GetSession("tok-old"); err != ErrNotFound {
		t.Errorf("expired session should be gone, got %v", err)
	}
}

// --- Items ---

func TestListItemsEmpty(t *testing.T) {
	s := openTestStore(t)

	items, err := s.ListItems("u-empty")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestInsertAndListItems(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	defer tx.Rollback()

	contents := []string{"Buy Milk", "Call the dentist", "Fix bike tire"}
	for _, c := range contents {
		if _, err := tx.InsertItem("u-1", c); err != nil {
			t.Fatalf("InsertItem(%q): %v", c, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	items, err := s.ListItems("u-1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	for i, c := range contents {
		if items[i].Content != c {
			t.Errorf("items[%d].Content = %q, want %q", i, items[i].Content, c)
		}
	}
	// IDs assigned in insertion order.
	for i := 1; i < len(items); i++ {
		if items[i].ID <= items[i-1].ID {
			t.Errorf("IDs not ascending: %d then %d", items[i-1].ID, items[i].ID)
		}
	}
}

// TestListTxRollback verifies that a rolled-back insert leaves the list untouched.
func TestListTxRollback(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	if _, err := tx.InsertItem("u-rb", "ephemeral"); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	items, err := s.ListItems("u-rb")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items after rollback, want 0", len(items))
	}
}

// TestListTxRollbackAfterCommit verifies the deferred-rollback pattern is safe.
func TestListTxRollbackAfterCommit(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	if _, err := tx.InsertItem("u-1", "kept"); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback after Commit = %v, want nil", err)
	}

	items, err := s.ListItems("u-1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items, want 1", len(items))
	}
}

func TestUpdateItemContent(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	item, err := tx.InsertItem("u-1", "draft")
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	defer tx2.Rollback()
	if err := tx2.UpdateItemContent("u-1", item.ID, "final"); err != nil {
		t.Fatalf("UpdateItemContent: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	items, err := s.ListItems("u-1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 || items[0].Content != "final" {
		t.Errorf("items = %+v, want single item %q", items, "final")
	}
}

// TestUpdateItemContent_WrongOwner verifies owner scoping on updates.
func TestUpdateItemContent_WrongOwner(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	item, err := tx.InsertItem("u-owner", "private")
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	defer tx2.Rollback()
	if err := tx2.UpdateItemContent("u-other", item.ID, "hijacked"); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteItem(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	item, err := tx.InsertItem("u-1", "gone soon")
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	defer tx2.Rollback()
	if err := tx2.DeleteItem("u-1", item.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	items, err := s.ListItems("u-1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items after delete, want 0", len(items))
	}
}

func TestDeleteItem_WrongOwner(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	item, err := tx.InsertItem("u-owner", "private")
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	defer tx2.Rollback()
	if err := tx2.DeleteItem("u-other", item.ID); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// --- Requests ---

func TestLogRequestInTransaction(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginList()
	if err != nil {
		t.Fatalf("BeginList: %v", err)
	}
	if _, err := tx.InsertItem("u-1", "Buy Milk"); err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	rec := RequestRecord{
		ID:        "req-1",
		UserID:    "u-1",
		Input:     "add buy milk",
		Outcome:   "created",
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.LogRequest(rec); err != nil {
		t.Fatalf("LogRequest: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := s.GetRecentRequests("u-1", 10)
	if err != nil {
		t.Fatalf("GetRecentRequests: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d requests, want 1", len(got))
	}
	if got[0].Outcome != "created" {
		t.Errorf("Outcome = %q, want %q", got[0].Outcome, "created")
	}
}

// TestGetRecentRequests saves 10 requests and verifies limit and descending order.
func TestGetRecentRequests(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 10; j++ {
		r := RequestRecord{
			ID:        fmt.Sprintf("req-%02d", j),
			UserID:    "u-1",
			Input:     fmt.Sprintf("request %d", j),
			Outcome:   "query",
			CreatedAt: base.Add(time.Duration(j) * time.Hour),
		}
		if err := s.SaveRequest(r); err != nil {
			t.Fatalf("SaveRequest %d: %v", j, err)
		}
	}

	got, err := s.GetRecentRequests("u-1", 5)
	if err != nil {
		t.Fatalf("GetRecentRequests: %v", err)
	}

	if len(got) != 5 {
		t.Fatalf("got %d requests, want 5", len(got))
	}

	for k := 1; k < len(got); k++ {
		if got[k].CreatedAt.After(got[k-1].CreatedAt) {
			t.Errorf("not in descending order: [%d]=%v > [%d]=%v", k, got[k].CreatedAt, k-1, got[k-1].CreatedAt)
		}
	}

	if got[0].ID != "req-09" {
		t.Errorf("first result ID = %q, want %q", got[0].ID, "req-09")
	}
}

// TestGetRecentRequests_OwnerScoped verifies one user's history never leaks into another's.
func TestGetRecentRequests_OwnerScoped(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	if err := s.SaveRequest(RequestRecord{ID: "req-a", UserID: "u-a", Input: "a", Outcome: "query", CreatedAt: now}); err != nil {
		t.Fatalf("SaveRequest a: %v", err)
	}
	if err := s.SaveRequest(RequestRecord{ID: "req-b", UserID: "u-b", Input: "b", Outcome: "query", CreatedAt: now}); err != nil {
		t.Fatalf("SaveRequest b: %v", err)
	}

	got, err := s.GetRecentRequests("u-a", 10)
	if err != nil {
		t.Fatalf("GetRecentRequests: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d requests, want 1", len(got))
	}
	if got[0].ID != "req-a" {
		t.Errorf("ID = %q, want %q", got[0].ID, "req-a")
	}
}
