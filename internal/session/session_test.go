package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func sampleSession() *Session {
	return &Session{
		Server:    "https://sync.example.com",
		Email:     "ann@example.com",
		Token:     "jwt-1",
		Version:   "004",
		MasterKey: "mk",
		UpdatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func roundTrip(t *testing.T, store Store) {
	t.Helper()
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("initial load failed: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected no session before save, got %+v", loaded)
	}
	if err := store.Save(sampleSession()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	next := sampleSession()
	next.Token = "jwt-2"
	if err := store.Save(next); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	loaded, err = store.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded == nil || loaded.Token != "jwt-2" || loaded.Email != "ann@example.com" || !loaded.UpdatedAt.Equal(next.UpdatedAt) {
		t.Fatalf("unexpected loaded session %+v", loaded)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	loaded, err = store.Load()
	if err != nil {
		t.Fatalf("load after clear failed: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected cleared session, got %+v", loaded)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
}

func TestOpenMemory(t *testing.T) {
	store, err := Open("memory://")
	if err != nil {
		t.Fatalf("open memory store failed: %v", err)
	}
	roundTrip(t, store)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	saved := sampleSession()
	if err := store.Save(saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	saved.Token = "mutated"
	loaded, _ := store.Load()
	if loaded.Token != "jwt-1" {
		t.Fatalf("expected stored copy to be isolated, got %q", loaded.Token)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store, err := Open("file://" + path)
	if err != nil {
		t.Fatalf("open file store failed: %v", err)
	}
	if got := store.(*FileStore).Path; got != path {
		t.Fatalf("expected path %q, got %q", path, got)
	}
	roundTrip(t, store)
}

func TestFileStoreWritesPrivateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open bare path failed: %v", err)
	}
	if err := store.Save(sampleSession()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat session file failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 session file, got %v", info.Mode().Perm())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, got %d entries", len(entries))
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file failed: %v", err)
	}
	if _, err := NewFileStore(path).Load(); err == nil {
		t.Fatalf("expected corrupt session file to fail")
	}
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := Open("sqlite://" + path)
	if err != nil {
		t.Fatalf("open sqlite store failed: %v", err)
	}
	t.Cleanup(func() { _ = Close(store) })
	roundTrip(t, store)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected sqlite database file: %v", err)
	}
}

func TestOpenRedis(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := Open("redis://" + server.Addr() + "/0?key=work")
	if err != nil {
		t.Fatalf("open redis store failed: %v", err)
	}
	t.Cleanup(func() { _ = Close(store) })
	if err := store.Save(sampleSession()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !server.Exists("notefs:session:work") {
		t.Fatalf("expected session under prefixed key, have %v", server.Keys())
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	roundTrip(t, store)
}

func TestOpenPostgresIsLazy(t *testing.T) {
	store, err := Open("postgres://localhost/notefs?sslmode=disable")
	if err != nil {
		t.Fatalf("expected postgres store to build without connecting, got %v", err)
	}
	sqlStore, ok := store.(*SQLStore)
	if !ok || sqlStore.dialect.driver != "postgres" || sqlStore.tableName != sessionTableName {
		t.Fatalf("unexpected postgres store %#v", store)
	}
}

func TestPostgresIntegrationRoundTrip(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("NOTEFS_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set NOTEFS_TEST_POSTGRES_DSN to run Postgres integration tests")
	}
	store, err := NewPostgresStore(dsn)
	if err != nil {
		t.Fatalf("new postgres store failed: %v", err)
	}
	store.sessionKey = "it-" + time.Now().Format("150405.000000000")
	t.Cleanup(func() {
		_ = store.Clear()
		_ = store.Close()
	})
	roundTrip(t, store)
}

func TestOpenRejectsBadDSNs(t *testing.T) {
	if _, err := Open(""); !errors.Is(err, ErrInvalidDSN) {
		t.Fatalf("expected ErrInvalidDSN for empty dsn, got %v", err)
	}
	if _, err := Open("mysql://localhost/notefs"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
	if _, err := Open("file://"); !errors.Is(err, ErrInvalidDSN) {
		t.Fatalf("expected ErrInvalidDSN for file dsn without path, got %v", err)
	}
}

func TestRegisterFactoryOverridesScheme(t *testing.T) {
	shared := NewMemoryStore()
	RegisterFactory("  Vault ", func(dsn string) (Store, error) {
		if !strings.HasPrefix(dsn, "vault://") {
			t.Errorf("unexpected dsn %q", dsn)
		}
		return shared, nil
	})
	RegisterFactory("", func(string) (Store, error) { return nil, nil })

	store, err := Open("vault://secret/notefs")
	if err != nil {
		t.Fatalf("open registered scheme failed: %v", err)
	}
	if store != Store(shared) {
		t.Fatalf("expected registered factory's store")
	}
}

func TestFilePath(t *testing.T) {
	if path, ok := FilePath("file:///var/lib/notefs/session.json"); !ok || path != "/var/lib/notefs/session.json" {
		t.Fatalf("unexpected file path %q %v", path, ok)
	}
	if path, ok := FilePath("/tmp/session.json"); !ok || path != "/tmp/session.json" {
		t.Fatalf("unexpected bare path %q %v", path, ok)
	}
	if _, ok := FilePath("redis://localhost:6379"); ok {
		t.Fatalf("redis dsn has no file path")
	}
}

func TestSessionValid(t *testing.T) {
	var missing *Session
	if missing.Valid() || (&Session{Token: "  "}).Valid() {
		t.Fatalf("expected sessions without token to be invalid")
	}
	if !sampleSession().Valid() {
		t.Fatalf("expected sample session to be valid")
	}
}

func TestWatchFileFiresOnReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	store := NewFileStore(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls int32
	changed := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- WatchFile(ctx, path, zerolog.Nop(), func() {
			atomic.AddInt32(&calls, 1)
			changed <- struct{}{}
		})
	}()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("write unrelated file failed: %v", err)
	}
	if err := store.Save(sampleSession()); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected change notification")
	}
	time.Sleep(3 * watchDebounce)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single debounced call, got %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watcher returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}
