package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New(30 * time.Second)
	c.Set("k", "books", "value", map[string]any{"total": 3})

	v, meta, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if v != "value" {
		t.Errorf("value = %v", v)
	}
	if meta["total"] != 3 {
		t.Errorf("metadata total = %v", meta["total"])
	}
}

func TestExpiryEvictsOnLookup(t *testing.T) {
	c := New(30 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("k", "books", 1, nil)

	c.now = func() time.Time { return base.Add(29 * time.Second) }
	if _, _, ok := c.Get("k"); !ok {
		t.Error("entry inside TTL should hit")
	}

	c.now = func() time.Time { return base.Add(30 * time.Second) }
	if _, _, ok := c.Get("k"); ok {
		t.Error("expired entry must never be served")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted, len = %d", c.Len())
	}
}

func TestSetOverwrites(t *testing.T) {
	c := New(time.Minute)
	c.Set("k", "books", 1, nil)
	c.Set("k", "books", 2, nil)
	v, _, _ := c.Get("k")
	if v != 2 {
		t.Errorf("value = %v, want 2", v)
	}
}

func TestInvalidateFamily(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", "books", 1, nil)
	c.Set("b", "books", 2, nil)
	c.Set("c", "pages", 3, nil)

	c.Invalidate("books")

	if _, _, ok := c.Get("a"); ok {
		t.Error("books entry a should be gone")
	}
	if _, _, ok := c.Get("b"); ok {
		t.Error("books entry b should be gone")
	}
	if _, _, ok := c.Get("c"); !ok {
		t.Error("pages entry should survive")
	}
}

func TestInvalidateAll(t *testing.T) {
	c := New(time.Minute)
	c.Set("a", "books", 1, nil)
	c.Set("b", "pages", 2, nil)
	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("len = %d, want 0", c.Len())
	}
}

func TestDisabledCacheNeverStores(t *testing.T) {
	c := New(0)
	c.Set("k", "books", 1, nil)
	if _, _, ok := c.Get("k"); ok {
		t.Error("disabled cache must always miss")
	}
	if c.Len() != 0 {
		t.Errorf("disabled cache stored an entry")
	}
}

func TestKeyFilterOrderStable(t *testing.T) {
	a := Key("books", 0, 100, "+name", map[string]string{"name": "go", "created_by": "1"})
	b := Key("books", 0, 100, "+name", map[string]string{"created_by": "1", "name": "go"})
	if a != b {
		t.Errorf("equivalent queries produced different keys:\n%s\n%s", a, b)
	}

	c := Key("books", 0, 100, "+name", map[string]string{"name": "rust"})
	if a == c {
		t.Error("different filters must produce different keys")
	}
}
