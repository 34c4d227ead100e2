package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteStateFile atomically writes v as JSON to path: it writes to a
// sibling temp file then renames over the target, so a crash mid-write
// never leaves a half-written orchestrator_state.json, halt_state.json, or
// drawdown_peak.json for the next boot to read.
func WriteStateFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename state file into place: %w", err)
	}
	return nil
}

// ReadStateFile loads a JSON state file previously written by
// WriteStateFile. A missing file is not an error — callers treat it as
// "no prior state" on first boot.
func ReadStateFile(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read state file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal state file %s: %w", path, err)
	}
	return true, nil
}
