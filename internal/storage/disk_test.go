package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestDiskStore_PutGetExists(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ok, err := store.Exists(ctx, "indices/a.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected key to be absent")
	}
	if _, err := store.Get(ctx, "indices/a.jsonl"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.Put(ctx, "indices/a.jsonl", []byte("{\"id\":\"x\"}\n")); err != nil {
		t.Fatal(err)
	}
	ok, _ = store.Exists(ctx, "indices/a.jsonl")
	if !ok {
		t.Error("expected key to exist after Put")
	}
	if err := store.Put(ctx, "indices/a.jsonl", []byte("{\"id\":\"y\"}\n")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "indices/a.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "{\"id\":\"y\"}\n" {
		t.Errorf("Put should overwrite, got %q", got)
	}
}

func TestDiskStore_AppendAndRecords(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir())
	ctx := context.Background()
	for _, line := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		if err := store.Append(ctx, "logs/c1.jsonl", []byte(line+"\n")); err != nil {
			t.Fatal(err)
		}
	}
	records, err := store.GetRecords(ctx, "logs/c1.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if string(records[2]) != `{"n":3}` {
		t.Errorf("records out of order: %s", records[2])
	}
}

func TestDiskStore_ConcurrentAppend(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Append(ctx, "log.jsonl", []byte(`{"ok":true}`+"\n"))
		}()
	}
	wg.Wait()
	records, err := store.GetRecords(ctx, "log.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 50 {
		t.Errorf("expected 50 records, got %d", len(records))
	}
}

func TestDiskStore_GetObject(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir())
	ctx := context.Background()
	if err := store.Put(ctx, "meta.json", []byte(`{"dimensions":3}`)); err != nil {
		t.Fatal(err)
	}
	var meta struct {
		Dimensions int `json:"dimensions"`
	}
	if err := store.GetObject(ctx, "meta.json", &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Dimensions != 3 {
		t.Errorf("got %+v", meta)
	}
}

func TestDiskStore_InvalidKey(t *testing.T) {
	store, _ := NewDiskStore(t.TempDir())
	ctx := context.Background()
	for _, key := range []string{"", "../escape.jsonl", "/abs.jsonl"} {
		if err := store.Put(ctx, key, []byte("x")); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestSplitRecords(t *testing.T) {
	records, err := SplitRecords([]byte("{\"a\":1}\n\n  \n{\"a\":2}"))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("expected blank lines skipped, got %d records", len(records))
	}
	if _, err := SplitRecords([]byte("{\"a\":1}\nnot json\n")); err == nil {
		t.Error("expected error for malformed line")
	}
	empty, err := SplitRecords(nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %v %v", empty, err)
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := DiskUsageBytes(f1, filepath.Join(dir, "missing"), "", sub)
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Errorf("got %d bytes, want 7", got)
	}
}
