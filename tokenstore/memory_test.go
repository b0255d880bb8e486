package tokenstore

import (
	"context"
	"sync"
	"testing"
)

func TestMemorySaveGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := store.Save(ctx, "ecom-1", "token-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, ok, err := store.Get(ctx, "ecom-1")
	if err != nil || !ok || token != "token-1" {
		t.Fatalf("Get = %q ok=%v err=%v, want token-1", token, ok, err)
	}

	// Save overwrites an existing entry.
	if err := store.Save(ctx, "ecom-1", "token-2"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, _, _ = store.Get(ctx, "ecom-1")
	if token != "token-2" {
		t.Fatalf("Get after overwrite = %q, want token-2", token)
	}

	if err := store.Delete(ctx, "ecom-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "ecom-1"); ok {
		t.Fatal("token still present after Delete")
	}

	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, "ecom-1"); err != nil {
		t.Fatalf("Delete(absent): %v", err)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.Save(ctx, "shared", "token")
				_, _, _ = store.Get(ctx, "shared")
				_ = store.Delete(ctx, "shared")
			}
		}()
	}
	wg.Wait()
}
