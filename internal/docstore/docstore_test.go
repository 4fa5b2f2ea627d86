package docstore

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestLoadMissing(t *testing.T) {
	doc := New(filepath.Join(t.TempDir(), "config.json"))
	var v map[string]any
	exists, err := doc.Load(&v)
	if err != nil || exists {
		t.Fatalf("expected missing document, got exists=%v err=%v", exists, err)
	}
}

func TestModifyCreatesAndLoads(t *testing.T) {
	doc := New(filepath.Join(t.TempDir(), "nested", "history.json"))
	var list []string
	err := doc.Modify(&list, func(exists bool) error {
		if exists {
			t.Errorf("expected a new document")
		}
		list = []string{"a", "b"}
		return nil
	})
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}
	var got []string
	exists, err := doc.Load(&got)
	if err != nil || !exists {
		t.Fatalf("Load: exists=%v err=%v", exists, err)
	}
	if len(got) != 2 || got[1] != "b" {
		t.Fatalf("unexpected document %v", got)
	}
}

func TestModifySerialisesWriters(t *testing.T) {
	doc := New(filepath.Join(t.TempDir(), "counter.json"))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var n int
			if err := doc.Modify(&n, func(bool) error { n++; return nil }); err != nil {
				t.Errorf("Modify: %v", err)
			}
		}()
	}
	wg.Wait()

	var n int
	if _, err := doc.Load(&n); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 20 {
		t.Fatalf("expected 20 increments, got %d", n)
	}
}

func TestModifyAbortsOnError(t *testing.T) {
	doc := New(filepath.Join(t.TempDir(), "x.json"))
	var seed int
	if err := doc.Modify(&seed, func(bool) error { seed = 1; return nil }); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	boom := errors.New("boom")
	var n int
	if err := doc.Modify(&n, func(bool) error { n = 99; return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	var got int
	_, _ = doc.Load(&got)
	if got != 1 {
		t.Fatalf("document must be unchanged after aborted modify, got %d", got)
	}
}
