package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore keeps the position book as a JSON array on disk.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore stores positions at path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store. A missing file is an empty book.
func (s *FileStore) Load(context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(records))
	for _, r := range records {
		p, err := r.position()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Upsert implements Store.
func (s *FileStore) Upsert(_ context.Context, p Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return err
	}
	rec := toRecord(p)
	replaced := false
	for i := range records {
		if records[i].Ticker == rec.Ticker && records[i].EntryDate == rec.EntryDate {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].EntryDate != records[j].EntryDate {
			return records[i].EntryDate < records[j].EntryDate
		}
		return records[i].Ticker < records[j].Ticker
	})
	return s.write(records)
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() ([]record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	var records []record
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return records, nil
}

func (s *FileStore) write(records []record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create positions dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace positions: %w", err)
	}
	return nil
}
