package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"intentflow/internal/extract"
)

func sampleContext() Context {
	return Context{
		ExtractedContent:   "The quarterly report shows growth.",
		ExtractionMetadata: extract.Metadata{"type": "pdf", "method": "text_extraction", "pages": 3, "confidence": 91.25},
		CreatedAt:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func newRedisStore(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWithClient(client, "test:session", ttl), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newRedisStore(t, time.Minute)
	return map[string]Store{
		"memory": NewMemory(16, time.Minute),
		"redis":  rs,
	}
}

func TestTakeRemovesContext(t *testing.T) {
	for name, s := range stores(t) {
		ctx := context.Background()
		if err := s.Put(ctx, "abc", sampleContext()); err != nil {
			t.Fatalf("%s put: %v", name, err)
		}
		if _, err := s.Get(ctx, "abc"); err != nil {
			t.Fatalf("%s get: %v", name, err)
		}
		got, err := s.Take(ctx, "abc")
		if err != nil {
			t.Fatalf("%s take: %v", name, err)
		}
		if got.ExtractedContent != sampleContext().ExtractedContent {
			t.Fatalf("%s: unexpected content %q", name, got.ExtractedContent)
		}
		if _, err := s.Take(ctx, "abc"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected second take to miss, got %v", name, err)
		}
	}
}

func TestMetadataRoundTripsExactly(t *testing.T) {
	want, _ := json.Marshal(sampleContext().ExtractionMetadata)
	for name, s := range stores(t) {
		ctx := context.Background()
		if err := s.Put(ctx, "", sampleContext()); err != nil {
			t.Fatalf("%s put: %v", name, err)
		}
		got, err := s.Take(ctx, DefaultID)
		if err != nil {
			t.Fatalf("%s take default id: %v", name, err)
		}
		gotJSON, _ := json.Marshal(got.ExtractionMetadata)
		if string(gotJSON) != string(want) {
			t.Fatalf("%s: metadata changed: %s != %s", name, gotJSON, want)
		}
	}
}

func TestConcurrentTakeExactlyOnce(t *testing.T) {
	for name, s := range stores(t) {
		ctx := context.Background()
		for round := 0; round < 20; round++ {
			if err := s.Put(ctx, "race", sampleContext()); err != nil {
				t.Fatalf("%s put: %v", name, err)
			}
			var wins int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.Take(ctx, "race"); err == nil {
						atomic.AddInt32(&wins, 1)
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("%s: expected exactly one take to win, got %d", name, wins)
			}
		}
	}
}

func TestRedisTTLExpires(t *testing.T) {
	s, mr := newRedisStore(t, 30*time.Second)
	ctx := context.Background()
	if err := s.Put(ctx, "ttl", sampleContext()); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(31 * time.Second)
	if _, err := s.Get(ctx, "ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryEvictsOldest(t *testing.T) {
	m := NewMemory(2, time.Minute)
	ctx := context.Background()
	_ = m.Put(ctx, "a", sampleContext())
	_ = m.Put(ctx, "b", sampleContext())
	_ = m.Put(ctx, "c", sampleContext())
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a evicted, got %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
}

func TestDelete(t *testing.T) {
	for name, s := range stores(t) {
		ctx := context.Background()
		_ = s.Put(ctx, "gone", sampleContext())
		if err := s.Delete(ctx, "gone"); err != nil {
			t.Fatalf("%s delete: %v", name, err)
		}
		if _, err := s.Get(ctx, "gone"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected not found after delete", name)
		}
	}
}
