package wal

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
)

// IndexEntry is the per-segment metadata line in wal_index.json.
type IndexEntry struct {
	File      string `json:"file"`
	FirstSeq  uint64 `json:"first_seq"`
	LastSeq   uint64 `json:"last_seq"`
	Timestamp string `json:"timestamp"`
}

// AppendIndexEntry adds a sealed segment to wal_index.json.
func AppendIndexEntry(dir string, entry IndexEntry) error {
	path := filepath.Join(dir, "wal_index.json")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// LoadAllIndex reads every segment entry, oldest first. A missing
// index file is an empty log, not an error.
func LoadAllIndex(dir string) ([]IndexEntry, error) {
	b, err := os.ReadFile(filepath.Join(dir, "wal_index.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []IndexEntry
	for _, line := range bytes.Split(b, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var e IndexEntry
		if err := json.Unmarshal(line, &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// LoadLastIndex returns the newest sealed segment entry, if any.
func LoadLastIndex(dir string) (*IndexEntry, error) {
	index, err := LoadAllIndex(dir)
	if err != nil || len(index) == 0 {
		return nil, err
	}
	return &index[len(index)-1], nil
}

// PruneSegments deletes sealed segments whose records are all at or
// below seq and rewrites the index to match. A snapshot at seq makes
// those segments dead weight.
func PruneSegments(dir string, seq uint64) error {
	index, err := LoadAllIndex(dir)
	if err != nil {
		return err
	}
	kept := index[:0]
	for _, e := range index {
		if e.LastSeq <= seq {
			if err := os.Remove(filepath.Join(dir, e.File)); err != nil && !os.IsNotExist(err) {
				return err
			}
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == len(index) {
		return nil
	}

	tmp := filepath.Join(dir, "wal_index.tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	for _, e := range kept {
		data, err := json.Marshal(e)
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, "wal_index.json"))
}
