package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades_cache.json")
	store := NewFileStore(path, zap.NewNop())
	ctx := context.Background()

	snap := domain.Snapshot{
		{CourseCode: "BLM207", CourseName: "Veri Yapıları", Grade: "AA"},
		{CourseCode: "FIZ102", CourseName: "Fizik II", Grade: ""},
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Errorf("loaded %+v, want %+v", got, snap)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"), zap.NewNop())
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("missing cache must not error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("missing cache = %+v, want empty snapshot", got)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades_cache.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path, zap.NewNop())
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("corrupt cache must not error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("corrupt cache = %+v, want empty snapshot", got)
	}
}

func TestFileStoreSaveReplacesWholeSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades_cache.json")
	store := NewFileStore(path, zap.NewNop())
	ctx := context.Background()

	if err := store.Save(ctx, domain.Snapshot{{CourseCode: "OLD100", Grade: "FF"}}); err != nil {
		t.Fatal(err)
	}
	next := domain.Snapshot{{CourseCode: "BLM207", Grade: "AA"}}
	if err := store.Save(ctx, next); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, next) {
		t.Errorf("loaded %+v, want only the latest snapshot %+v", got, next)
	}
}
