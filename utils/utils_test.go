package utils

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestAtomicWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	if err := AtomicWriteJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("AtomicWriteJSON() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil || got["a"] != 1 {
		t.Fatalf("content = %s, err = %v", raw, err)
	}
}

func TestAtomicWriteKeepsOldContentOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	err := AtomicWrite(path, 0o600, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("AtomicWrite() succeeded, want error")
	}
	if raw, _ := os.ReadFile(path); string(raw) != "old" {
		t.Errorf("content = %q, want old", raw)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %v", entries)
	}
}

func TestValidDirAndDirSize(t *testing.T) {
	dir := t.TempDir()
	if ValidDir(dir) {
		t.Error("empty dir reported valid")
	}
	if ValidDir(filepath.Join(dir, "missing")) {
		t.Error("missing dir reported valid")
	}
	if err := EnsureDirs(filepath.Join(dir, "a", "b")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a", "b", "f"), make([]byte, 10), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "g"), make([]byte, 5), 0o600); err != nil {
		t.Fatal(err)
	}
	if !ValidDir(dir) {
		t.Error("populated dir reported invalid")
	}
	if got := DirSize(dir); got != 15 {
		t.Errorf("DirSize() = %d, want 15", got)
	}
}

func TestScanAndFilter(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"keep", "drop"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o750); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "file"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	subdirs := ScanSubdirs(dir)
	slices.Sort(subdirs)
	if !slices.Equal(subdirs, []string{"drop", "keep"}) {
		t.Fatalf("ScanSubdirs() = %v", subdirs)
	}
	got := FilterUnreferenced(subdirs, map[string]struct{}{"keep": {}})
	if !slices.Equal(got, []string{"drop"}) {
		t.Errorf("FilterUnreferenced() = %v, want [drop]", got)
	}
}

func TestRemoveMatching(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old")
	fresh := filepath.Join(dir, "fresh")
	for _, p := range []string{old, fresh} {
		if err := os.Mkdir(p, 0o750); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-2 * StaleTempAge)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	if errs := RemoveMatching(context.Background(), dir, OlderThan(StaleTempAge)); len(errs) != 0 {
		t.Fatalf("RemoveMatching() errors = %v", errs)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale entry not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh entry removed")
	}
	if errs := RemoveMatching(context.Background(), filepath.Join(dir, "nope"), OlderThan(0)); errs != nil {
		t.Errorf("missing dir errors = %v", errs)
	}
}

func TestWaitFor(t *testing.T) {
	var n int
	err := WaitFor(context.Background(), time.Second, time.Millisecond, func() (bool, error) {
		n++
		return n == 3, nil
	})
	if err != nil || n != 3 {
		t.Errorf("WaitFor() = %v after %d checks", err, n)
	}

	err = WaitFor(context.Background(), 10*time.Millisecond, time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if err == nil {
		t.Error("WaitFor() succeeded, want timeout")
	}

	want := errors.New("broken")
	err = WaitFor(context.Background(), time.Second, time.Millisecond, func() (bool, error) {
		return false, want
	})
	if !errors.Is(err, want) {
		t.Errorf("WaitFor() error = %v, want %v", err, want)
	}
}
