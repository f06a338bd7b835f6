package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newConfigInitCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if !strings.Contains(string(data), "input_repo") {
		t.Fatal("sample config missing repository section")
	}
	if !strings.Contains(out.String(), target) {
		t.Fatalf("output should mention the target path: %s", out.String())
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("# existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newConfigInitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate(short) = %q", got)
	}
	if got := truncate("a long message that keeps going", 10); got != "a long ..." {
		t.Fatalf("truncate = %q", got)
	}
}
