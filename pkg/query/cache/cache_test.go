package cache

import (
	"context"
	"testing"
	"time"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New(8, time.Minute, "")
	ctx := context.Background()
	key := Key([]byte(`{"WHERE":{}}`), "sections", 3)

	if _, ok := c.Get(ctx, key); ok {
		t.Fatalf("Get before Put = hit, want miss")
	}

	want := []map[string]interface{}{{"sections_avg": 90.0}}
	c.Put(ctx, key, want)

	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatalf("Get after Put = miss, want hit")
	}
	if len(got) != 1 || got[0]["sections_avg"] != 90.0 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestKeyChangesWithRowCount(t *testing.T) {
	a := Key([]byte(`{"WHERE":{}}`), "sections", 3)
	b := Key([]byte(`{"WHERE":{}}`), "sections", 4)
	if a == b {
		t.Fatalf("Key ignored row count, same key for different counts")
	}
}

func TestEvictsOldestAtCapacity(t *testing.T) {
	c := New(2, time.Minute, "")
	ctx := context.Background()
	c.Put(ctx, "a", []map[string]interface{}{{"x": 1.0}})
	time.Sleep(time.Millisecond)
	c.Put(ctx, "b", []map[string]interface{}{{"x": 2.0}})
	time.Sleep(time.Millisecond)
	c.Put(ctx, "c", []map[string]interface{}{{"x": 3.0}})

	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatalf("oldest entry %q should have been evicted", "a")
	}
	if _, ok := c.Get(ctx, "c"); !ok {
		t.Fatalf("newest entry %q should still be cached", "c")
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := New(8, time.Millisecond, "")
	ctx := context.Background()
	c.Put(ctx, "k", []map[string]interface{}{{"x": 1.0}})
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expired entry still hit")
	}
}
