package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	in := sample{Name: "queue", Items: []string{"a/b.mp4", "c/d.mkv"}}

	if err := WriteDocument(path, in); err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}

	var out sample
	found, err := ReadDocument(path, &out)
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	if !found {
		t.Fatal("expected document to exist")
	}
	if out.Name != in.Name || len(out.Items) != 2 || out.Items[0] != "a/b.mp4" {
		t.Fatalf("round trip mismatch: %#v", out)
	}
}

func TestReadMissingDocument(t *testing.T) {
	var out sample
	found, err := ReadDocument(filepath.Join(t.TempDir(), "missing.json"), &out)
	if err != nil {
		t.Fatalf("missing document should not error: %v", err)
	}
	if found {
		t.Fatal("expected found=false for missing document")
	}
}

func TestReadCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out sample
	_, err := ReadDocument(path, &out)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestWriteCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "doc.json")
	if err := WriteDocument(path, sample{Name: "x"}); err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected document written: %v", err)
	}
}
