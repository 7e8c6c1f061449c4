package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/qiaofuyo/video-slice/internal/db"
	"github.com/qiaofuyo/video-slice/internal/window"
)

func openRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	return openRepoAt(t, filepath.Join(t.TempDir(), "state.db"))
}

func openRepoAt(t *testing.T, path string) *SQLiteRepository {
	t.Helper()
	database, err := db.Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.SQL())
}

func TestConfig_GetSet(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	if v, err := repo.GetConfig(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", v, err)
	}
	if err := repo.SetConfig(ctx, "k", "one"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, "k", "two"); err != nil {
		t.Fatalf("SetConfig() overwrite error = %v", err)
	}
	if v, _ := repo.GetConfig(ctx, "k"); v != "two" {
		t.Errorf("GetConfig(k) = %q, want two", v)
	}
}

func TestEnsureAuthToken_Stable(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)

	first, err := EnsureAuthToken(ctx, repo)
	if err != nil {
		t.Fatalf("EnsureAuthToken() error = %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}
	second, _ := EnsureAuthToken(ctx, repo)
	if first != second {
		t.Error("token changed between calls")
	}
}

func TestGeometryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewGeometryStore(openRepo(t))

	if _, ok, err := store.LoadGeometry(ctx); ok || err != nil {
		t.Fatalf("LoadGeometry() on empty store = %v, %v", ok, err)
	}

	g := window.Geometry{Width: "640px", Height: "360px", Left: "10px", Top: "20px"}
	if err := store.SaveGeometry(ctx, g); err != nil {
		t.Fatalf("SaveGeometry() error = %v", err)
	}
	got, ok, err := store.LoadGeometry(ctx)
	if err != nil || !ok || got != g {
		t.Fatalf("LoadGeometry() = %+v, %v, %v", got, ok, err)
	}
}

func TestGeometryStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	g := window.Geometry{Width: "800px", Height: "450px", Left: "40px", Top: "30px"}
	if err := NewGeometryStore(openRepoAt(t, path)).SaveGeometry(ctx, g); err != nil {
		t.Fatalf("SaveGeometry() error = %v", err)
	}

	got, ok, err := NewGeometryStore(openRepoAt(t, path)).LoadGeometry(ctx)
	if err != nil || !ok || got != g {
		t.Fatalf("LoadGeometry() after reopen = %+v, %v, %v", got, ok, err)
	}
}

func TestGeometryStore_CorruptValue(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	repo.SetConfig(ctx, window.StorageKey, "{not json")

	if _, _, err := NewGeometryStore(repo).LoadGeometry(ctx); err == nil {
		t.Fatal("LoadGeometry() accepted corrupt value")
	}
}
