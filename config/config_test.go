package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileMissing(t *testing.T) {
	fo, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	if err != nil {
		t.Fatalf("LoadFile on a missing path should not error, got %v", err)
	}
	if fo.Transport != nil {
		t.Errorf("expected nil Transport for a missing file, got %v", *fo.Transport)
	}
}

func TestLoadFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	contents := "[server]\n" +
		"transport = streamable-http\n" +
		"listen_addr = :9090\n" +
		"event_store_capacity = 512\n" +
		"debug = true\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	fo, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if fo.Transport == nil || *fo.Transport != "streamable-http" {
		t.Errorf("expected transport streamable-http, got %v", fo.Transport)
	}
	if fo.ListenAddr == nil || *fo.ListenAddr != ":9090" {
		t.Errorf("expected listen_addr :9090, got %v", fo.ListenAddr)
	}
	if fo.EventStoreCapacity == nil || *fo.EventStoreCapacity != 512 {
		t.Errorf("expected event_store_capacity 512, got %v", fo.EventStoreCapacity)
	}
	if fo.Debug == nil || !*fo.Debug {
		t.Errorf("expected debug true, got %v", fo.Debug)
	}
}

func TestApplyFileDoesNotClobberExplicitValues(t *testing.T) {
	explicit := "sse"
	opts := &Options{Transport: explicit, RequestTimeout: 30 * time.Second}
	fo := &FileOptions{Transport: strPtr("stdio")}

	ApplyFile(opts, fo)

	if opts.Transport != explicit {
		t.Errorf("ApplyFile overwrote an explicitly set field: got %q, want %q", opts.Transport, explicit)
	}
	if opts.RequestTimeout != 30*time.Second {
		t.Errorf("ApplyFile overwrote an explicitly set duration: got %v", opts.RequestTimeout)
	}
}

func TestApplyFileFillsZeroValues(t *testing.T) {
	opts := &Options{}
	fo := &FileOptions{
		Transport:      strPtr("streamable-http"),
		RequestTimeout: strPtr("15s"),
	}

	ApplyFile(opts, fo)

	if opts.Transport != "streamable-http" {
		t.Errorf("expected transport filled from file, got %q", opts.Transport)
	}
	if opts.RequestTimeout != 15*time.Second {
		t.Errorf("expected request timeout filled from file, got %v", opts.RequestTimeout)
	}
}

func strPtr(s string) *string { return &s }
