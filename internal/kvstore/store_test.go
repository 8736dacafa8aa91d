package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "settings.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestGetMissingKey(t *testing.T) {
	store := openTestStore(t)
	value, found, err := store.Get(context.Background(), "appSettings")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found || value != nil {
		t.Fatalf("Get() = (%q, %v), want missing", value, found)
	}
}

func TestPutGetOverwrite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "appSettings", []byte(`{"closeBehavior":"exit"}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "appSettings", []byte(`{"closeBehavior":"tray"}`)); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	value, found, err := store.Get(ctx, "appSettings")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || string(value) != `{"closeBehavior":"tray"}` {
		t.Fatalf("Get() = (%q, %v), want overwritten value", value, found)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := first.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close()
	value, found, err := second.Get(ctx, "k")
	if err != nil || !found || string(value) != "v" {
		t.Fatalf("Get() after reopen = (%q, %v, %v)", value, found, err)
	}
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() of missing key error = %v", err)
	}
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Fatal("Get() found deleted key")
	}
}

func TestClosedStore(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := store.Put(context.Background(), "k", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Put() on closed store error = %v, want ErrClosed", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("Open() expected error for empty path")
	}
}

func TestConcurrentPuts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			if err := store.Put(ctx, "shared", []byte{byte('a' + i)}); err != nil {
				t.Errorf("Put() error = %v", err)
			}
		})
	}
	wg.Wait()
	value, found, err := store.Get(ctx, "shared")
	if err != nil || !found || len(value) != 1 {
		t.Fatalf("Get() = (%q, %v, %v), want one byte", value, found, err)
	}
}

func TestCloseDuringConcurrentAccess(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for range 20 {
				if err := store.Put(ctx, "shared", []byte{byte('a' + i)}); err != nil && !errors.Is(err, ErrClosed) {
					t.Errorf("Put() error = %v, want nil or ErrClosed", err)
				}
				if _, _, err := store.Get(ctx, "shared"); err != nil && !errors.Is(err, ErrClosed) {
					t.Errorf("Get() error = %v, want nil or ErrClosed", err)
				}
			}
		})
	}
	wg.Go(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	wg.Wait()
	if _, _, err := store.Get(ctx, "shared"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get() after Close error = %v, want ErrClosed", err)
	}
}
