package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"uah-rates-bot/internal/config"
	"uah-rates-bot/internal/model"
)

func newSQLiteStore(t *testing.T, opts ...Option) Store {
	t.Helper()
	store, err := OpenSQLite(context.Background(), ":memory:", opts...)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, newSQLiteStore)
}

func TestSQLiteHistoryDefaultCap(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	for i := 0; i < DefaultHistoryLimit+25; i++ {
		if _, err := store.AppendQuote(ctx, monoQuote("40.00", "40.50")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := store.QueryHistory(ctx, model.USD, model.SourceMonobank, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != DefaultHistoryLimit {
		t.Fatalf("history length = %d, want %d", len(got), DefaultHistoryLimit)
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ratebot.db")

	store, err := Open(ctx, config.StorageConfig{Driver: config.DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.AppendQuote(ctx, monoQuote("40.00", "40.50")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.SetLanguage(ctx, 1, model.LangRU); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, config.StorageConfig{Driver: config.DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.QueryHistory(ctx, model.USD, model.SourceMonobank, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("history lost across reopen: %d entries", len(got))
	}
	if _, found, err := reopened.GetSettings(ctx, 1); err != nil || !found {
		t.Fatalf("settings lost across reopen: found=%v err=%v", found, err)
	}
}

func TestSQLiteAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	unlock, ok, err := store.TryAdvisoryLock(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := store.TryAdvisoryLock(ctx, 7); ok {
		t.Fatal("second lock on the same key must fail")
	}
	if _, ok, _ := store.TryAdvisoryLock(ctx, 8); !ok {
		t.Fatal("other keys are independent")
	}
	unlock()
	if _, ok, _ := store.TryAdvisoryLock(ctx, 7); !ok {
		t.Fatal("lock should be free after unlock")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.StorageConfig{Driver: "mysql"}); err == nil {
		t.Fatal("unknown driver should fail")
	}
}

func TestMigrateStatusAndDown(t *testing.T) {
	ctx := context.Background()
	cfg := config.StorageConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "m.db")}

	v, err := Migrate(ctx, cfg, "up", zerolog.Nop())
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if v != 2 {
		t.Fatalf("version after up = %d, want 2", v)
	}
	if v, err = Migrate(ctx, cfg, "down", zerolog.Nop()); err != nil {
		t.Fatalf("down: %v", err)
	}
	if v != 1 {
		t.Errorf("version after down = %d, want 1", v)
	}
	if _, err := Migrate(ctx, cfg, "sideways", zerolog.Nop()); err == nil {
		t.Fatal("unknown command should fail")
	}
}
