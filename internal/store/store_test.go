package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "signalrelay.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st, path
}

func TestOpenAndMigrate(t *testing.T) {
	st, path := openTestStore(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}

	var version string
	if err := st.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "1" {
		t.Fatalf("unexpected schema version: %s", version)
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	st, path := openTestStore(t)
	if _, err := st.db.Exec("UPDATE metadata SET value = '99' WHERE key = 'schema_version'"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = st.Close()

	if _, err := Open(path); err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("err = %v, want newer schema error", err)
	}
}

func TestMigrateFromEmptyMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)"); err != nil {
		t.Fatalf("create metadata: %v", err)
	}
	_ = db.Close()

	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()

	var version string
	if err := st.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != strconv.Itoa(latestVersion()) {
		t.Errorf("version = %s, want %d", version, latestVersion())
	}
	if err := st.Save(context.Background(), "sent_posts", []string{"a"}); err != nil {
		t.Errorf("id_sets missing after migration: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	st, path := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, "known_posts", []string{"a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = st.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()

	ids, err := again.Load(ctx, "known_posts")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !slices.Equal(ids, []string{"a"}) {
		t.Fatalf("ids = %v, want [a]", ids)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestIDSetRoundTrip(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, "known_posts", []string{"a", "b", "c"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Save(ctx, "sent_posts", []string{"b"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	known, err := st.Load(ctx, "known_posts")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := []string{"a", "b", "c"}; !slices.Equal(known, want) {
		t.Fatalf("known = %v, want %v", known, want)
	}

	sent, err := st.Load(ctx, "sent_posts")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := []string{"b"}; !slices.Equal(sent, want) {
		t.Fatalf("sent = %v, want %v", sent, want)
	}
}

func TestIDSetSaveReplaces(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, "known_posts", []string{"c", "a", "b"}); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(ctx, "known_posts", []string{"z", "c"}); err != nil {
		t.Fatal(err)
	}

	ids, err := st.Load(ctx, "known_posts")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"z", "c"}; !slices.Equal(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestIDSetNeverSaved(t *testing.T) {
	st, _ := openTestStore(t)
	ids, err := st.Load(context.Background(), "known_posts")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ids != nil {
		t.Fatalf("ids = %v, want nil", ids)
	}
}

func TestNilStore(t *testing.T) {
	var st *Store
	ctx := context.Background()

	if err := st.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
	if _, err := st.Load(ctx, "x"); err == nil {
		t.Fatal("expected error from nil store Load")
	}
	if err := st.Save(ctx, "x", nil); err == nil {
		t.Fatal("expected error from nil store Save")
	}
	if err := st.RecordDelivery(ctx, Delivery{PostID: "p", Part: "text"}); err == nil {
		t.Fatal("expected error from nil store RecordDelivery")
	}
}
