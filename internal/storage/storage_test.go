package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
)

// newTestStore creates a temporary store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t)

	key := []byte("proof-key")
	value := []byte("proof-value")

	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get returned %q, want nil", got)
	}
}

func TestHas(t *testing.T) {
	s := newTestStore(t)

	key := []byte("artifact")

	ok, err := s.Has(key)
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if ok {
		t.Error("Has returned true for missing key")
	}

	if err := s.SetSync(key, []byte{1}); err != nil {
		t.Fatalf("SetSync failed: %v", err)
	}

	ok, err = s.Has(key)
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if !ok {
		t.Error("Has returned false for existing key")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	key := []byte("to-delete")

	if err := s.Set(key, []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get after Delete returned %q, want nil", got)
	}
}

func TestSetBatch(t *testing.T) {
	s := newTestStore(t)

	pairs := []KeyValue{
		{Key: []byte("b-1"), Value: []byte("v-1")},
		{Key: []byte("b-2"), Value: []byte("v-2")},
		{Key: []byte("b-3"), Value: []byte("v-3")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatalf("SetBatch failed: %v", err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatalf("Get failed for %q: %v", kv.Key, err)
		}

		if !bytes.Equal(got, kv.Value) {
			t.Errorf("Get(%q) = %q, want %q", kv.Key, got, kv.Value)
		}
	}
}

func TestIteratePrefix(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("a:%d", i)
		if err := s.Set([]byte(key), []byte{byte(i)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	// Keys outside the prefix must not be visited
	if err := s.Set([]byte("b:0"), []byte{9}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var visited []string
	err := s.IteratePrefix([]byte("a:"), func(key, value []byte) error {
		visited = append(visited, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if len(visited) != 5 {
		t.Errorf("visited %d keys, want 5: %v", len(visited), visited)
	}

	for i, key := range visited {
		want := fmt.Sprintf("a:%d", i)
		if key != want {
			t.Errorf("visited[%d] = %q, want %q", i, key, want)
		}
	}
}

func TestReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := s.SetSync([]byte("durable"), []byte("yes")); err != nil {
		t.Fatalf("SetSync failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get([]byte("durable"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, []byte("yes")) {
		t.Errorf("Get after reopen returned %q, want %q", got, "yes")
	}
}
