// Package store holds the assistant's durable state: free-text memory
// notes on an append-only JSONL file and the task list in SQLite.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Note is one remembered item.
type Note struct {
	ID   string    `json:"id"`
	TS   time.Time `json:"ts"`
	Text string    `json:"text"`
}

// MemoryStore appends notes to a JSONL file, one note per line. Writes
// are serialized per store; the file is opened with O_APPEND so
// concurrent processes never interleave partial lines.
type MemoryStore struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	logger zerolog.Logger
}

// OpenMemory opens (creating if needed) the notes file.
func OpenMemory(path string, logger zerolog.Logger) (*MemoryStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve notes path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create notes directory: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open notes file: %w", err)
	}
	return &MemoryStore{path: abs, file: f, logger: logger}, nil
}

// Append stores a note and returns it with its assigned ID.
func (s *MemoryStore) Append(text string) (Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Note{}, fmt.Errorf("note text cannot be empty")
	}

	note := Note{
		ID:   uuid.NewString(),
		TS:   time.Now().UTC(),
		Text: text,
	}

	line, err := json.Marshal(note)
	if err != nil {
		return Note{}, fmt.Errorf("failed to encode note: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return Note{}, fmt.Errorf("failed to append note: %w", err)
	}
	return note, nil
}

// Search returns notes whose text contains the query, case-insensitive,
// newest first. An empty query returns everything.
func (s *MemoryStore) Search(query string, limit int) ([]Note, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read notes file: %w", err)
	}
	defer f.Close()

	needle := strings.ToLower(strings.TrimSpace(query))
	var notes []Note
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var note Note
		if err := json.Unmarshal(raw, &note); err != nil {
			// A torn or corrupt line is skipped, not fatal.
			s.logger.Warn().Err(err).Msg("Skipping unreadable note line")
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(note.Text), needle) {
			notes = append(notes, note)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan notes file: %w", err)
	}

	sort.SliceStable(notes, func(i, j int) bool { return notes[i].TS.After(notes[j].TS) })
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return notes, nil
}

// Compact rewrites the file keeping only the given notes. It writes to
// a temp file in the same directory and renames it over the original,
// so readers never observe a half-written file.
func (s *MemoryStore) Compact(keep []Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".notes-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create compaction temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, note := range keep {
		line, err := json.Marshal(note)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode note during compaction: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write compacted notes: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush compacted notes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close compaction temp file: %w", err)
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close notes file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to swap compacted notes: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to reopen notes file: %w", err)
	}
	s.file = f
	return nil
}

// Path returns the notes file location.
func (s *MemoryStore) Path() string {
	return s.path
}

// Close releases the underlying file handle.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
