package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrCorrupt marks a persisted document that exists but cannot be decoded.
// Callers treat it as "no prior state" and start cold.
var ErrCorrupt = errors.New("corrupt state document")

// WriteDocument serializes v to path with an atomic, durable replace: the
// document is written to a temp file, fsynced, then renamed over the target,
// so readers never observe a partial write.
func WriteDocument(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending state file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	encoder := json.NewEncoder(pending)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace state document %s: %w", path, err)
	}
	return nil
}

// ReadDocument decodes the JSON document at path into v. A missing file
// returns (false, nil); an unreadable or undecodable file returns
// (false, ErrCorrupt) so callers can log and fall back to a cold start.
func ReadDocument(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return true, nil
}
