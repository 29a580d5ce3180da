package json

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/panda3d/panda3d-sub012/lock/flock"
)

type counters struct {
	Values map[string]int `json:"values"`
}

func (c *counters) Init() {
	if c.Values == nil {
		c.Values = make(map[string]int)
	}
}

func newTestStore(t *testing.T) *Store[counters] {
	t.Helper()
	dir := t.TempDir()
	return New[counters](filepath.Join(dir, "db.json"), flock.New(filepath.Join(dir, "db.lock")))
}

func TestUpdatePersists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Init runs on an empty store, so the map is writable.
	for i := 0; i < 3; i++ {
		if err := s.Update(ctx, func(c *counters) error {
			c.Values["runs"]++
			return nil
		}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}
	var got int
	if err := s.With(ctx, func(c *counters) error {
		got = c.Values["runs"]
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("runs = %d, want 3", got)
	}
}

func TestUpdateErrorDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.Update(ctx, func(c *counters) error {
		c.Values["x"] = 1
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}
	_ = s.With(ctx, func(c *counters) error {
		if _, ok := c.Values["x"]; ok {
			t.Error("failed update was persisted")
		}
		return nil
	})
}

func TestReadWriteUnderTryLock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	if err := s.Write(func(c *counters) error {
		c.Values["gc"] = 7
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Read(func(c *counters) error {
		if c.Values["gc"] != 7 {
			t.Errorf("gc = %d, want 7", c.Values["gc"])
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Unlock(ctx); err != nil {
		t.Fatal(err)
	}
}
