package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, logger)
}

func TestCache_GetMiss(t *testing.T) {
	c := newTestCache(t)
	entry, err := c.Get(context.Background(), "rd-1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected cache miss, got %+v", entry)
	}
}

// TestCache_PutThenGet is property P7: put followed by get with an
// identical (report_id, params, range) returns the stored bytes
// byte-for-byte within the TTL.
func TestCache_PutThenGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	params := map[string]any{"region": "us-east"}
	dateRange := map[string]any{"start": "2026-01-01", "end": "2026-01-31"}
	payload := []byte("%PDF-1.4 fake report bytes")

	if err := c.Put(ctx, "rd-1", params, dateRange, payload, time.Minute, map[string]any{"execution_id": "ex-1"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, err := c.Get(ctx, "rd-1", params, dateRange)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil {
		t.Fatal("expected cache hit")
	}
	if string(entry.Bytes) != string(payload) {
		t.Fatalf("bytes mismatch: got %q want %q", entry.Bytes, payload)
	}
	if entry.Metadata.ReportDefinitionID != "rd-1" {
		t.Fatalf("metadata report id = %q", entry.Metadata.ReportDefinitionID)
	}
}

func TestCache_DifferentParametersMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "rd-1", map[string]any{"region": "us-east"}, nil, []byte("a"), time.Minute, nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, err := c.Get(ctx, "rd-1", map[string]any{"region": "us-west"}, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry != nil {
		t.Fatal("expected miss for different query parameters")
	}
}

func TestCache_InvalidateAll(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "rd-1", map[string]any{"a": 1}, nil, []byte("a"), time.Minute, nil); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	if err := c.Put(ctx, "rd-1", map[string]any{"a": 2}, nil, []byte("b"), time.Minute, nil); err != nil {
		t.Fatalf("put 2: %v", err)
	}

	deleted, err := c.InvalidateAll(ctx, "rd-1")
	if err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d, want 2", deleted)
	}

	entry, _ := c.Get(ctx, "rd-1", map[string]any{"a": 1}, nil)
	if entry != nil {
		t.Fatal("expected entry to be gone after invalidate_all")
	}
}

func TestCache_LastWriterWins(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, "rd-1", nil, nil, []byte("first"), time.Minute, nil); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := c.Put(ctx, "rd-1", nil, nil, []byte("second"), time.Minute, nil); err != nil {
		t.Fatalf("put second: %v", err)
	}

	entry, err := c.Get(ctx, "rd-1", nil, nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(entry.Bytes) != "second" {
		t.Fatalf("expected last writer to win, got %q", entry.Bytes)
	}
}
