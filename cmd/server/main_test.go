package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"factorycraft.ai/internal/sim/factory"
)

func TestLatestSavePicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	saves := filepath.Join(dir, "saves")
	if err := os.MkdirAll(saves, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"9.save.zst", "120.save.zst", "30.save.zst", "junk.save.zst", "200.snap.zst"} {
		if err := os.WriteFile(filepath.Join(saves, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got, want := latestSave(dir), filepath.Join(saves, "120.save.zst"); got != want {
		t.Fatalf("latestSave=%q, want %q", got, want)
	}
	if got := latestSave(t.TempDir()); got != "" {
		t.Fatalf("latestSave on empty dir=%q", got)
	}
}

func TestResolveCatalogPath(t *testing.T) {
	dir := t.TempDir()
	if got := resolveCatalogPath(dir, ""); got != "" {
		t.Fatalf("no buildings.json: got %q", got)
	}
	p := filepath.Join(dir, "buildings.json")
	if err := os.WriteFile(p, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := resolveCatalogPath(dir, ""); got != p {
		t.Fatalf("got %q, want %q", got, p)
	}
	if got := resolveCatalogPath(dir, " /x/b.json "); got != "/x/b.json" {
		t.Fatalf("flag path not preferred: %q", got)
	}
}

func TestOpenRuntimeIndexBackends(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	dir := t.TempDir()

	idx, err := openRuntimeIndex(dir, "f1", true, logger)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("FC_INDEX_BACKEND", "none")
	if idx, err := openRuntimeIndex(dir, "f1", false, logger); err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}

	t.Setenv("FC_INDEX_BACKEND", "")
	idx, err = openRuntimeIndex(dir, "f1", false, logger)
	if err != nil || idx == nil {
		t.Fatalf("sqlite default: idx=%v err=%v", idx, err)
	}
	_ = idx.Close()
	if _, err := os.Stat(filepath.Join(dir, "index", "factory.sqlite")); err != nil {
		t.Fatalf("sqlite file: %v", err)
	}

	t.Setenv("FC_INDEX_BACKEND", "http")
	t.Setenv("FC_INDEX_INGEST_URL", "")
	if _, err := openRuntimeIndex(dir, "f1", false, logger); err == nil {
		t.Fatalf("expected error for http backend without url")
	}

	t.Setenv("FC_INDEX_BACKEND", "kafka")
	if _, err := openRuntimeIndex(dir, "f1", false, logger); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

type countingTickLogger struct{ n int }

func (c *countingTickLogger) WriteTick(factory.TickLogEntry) error { c.n++; return nil }

func TestMultiTickLoggerToleratesNilIndex(t *testing.T) {
	a := &countingTickLogger{}
	m := multiTickLogger{a: a}
	_ = m.WriteTick(factory.TickLogEntry{Tick: 1})
	b := &countingTickLogger{}
	m = multiTickLogger{a: a, b: b}
	_ = m.WriteTick(factory.TickLogEntry{Tick: 2})
	if a.n != 2 || b.n != 1 {
		t.Fatalf("a=%d b=%d, want 2 and 1", a.n, b.n)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("FC_TEST_BOOL", "false")
	if envBool("FC_TEST_BOOL", true) {
		t.Fatalf("envBool ignored value")
	}
	t.Setenv("FC_TEST_BOOL", "nope")
	if !envBool("FC_TEST_BOOL", true) {
		t.Fatalf("envBool should fall back on parse error")
	}
	t.Setenv("FC_TEST_INT", "42")
	if envInt("FC_TEST_INT", 1) != 42 || envInt("FC_TEST_MISSING", 7) != 7 {
		t.Fatalf("envInt mismatch")
	}
}
