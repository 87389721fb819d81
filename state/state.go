package state

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one produced summary.
type Entry struct {
	ThreadID  string    `json:"thread_id"`
	Hash      string    `json:"hash"`
	Summary   string    `json:"summary"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	Lookup(threadID, hash string) (Entry, bool)
	Save(entry Entry) error
	Snapshot() Snapshot
}

type Snapshot struct {
	Stored int
}

// ContentHash fingerprints the assembled thread text so a changed thread is
// summarized again.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func key(threadID, hash string) string {
	return threadID + "\x00" + hash
}

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Lookup(threadID, hash string) (Entry, bool) {
	if threadID == "" || hash == "" {
		return Entry{}, false
	}

	m.mu.RLock()
	entry, ok := m.entries[key(threadID, hash)]
	m.mu.RUnlock()
	return entry, ok
}

func (m *MemoryStore) Save(entry Entry) error {
	if entry.ThreadID == "" || entry.Hash == "" {
		return nil
	}

	m.mu.Lock()
	m.entries[key(entry.ThreadID, entry.Hash)] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Snapshot() Snapshot {
	m.mu.RLock()
	count := len(m.entries)
	m.mu.RUnlock()
	return Snapshot{Stored: count}
}

// Entries returns all stored summaries ordered by thread id.
func (m *MemoryStore) Entries() []Entry {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ThreadID != out[j].ThreadID {
			return out[i].ThreadID < out[j].ThreadID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FileStore persists produced summaries so future runs can skip them.
type FileStore struct {
	*MemoryStore
	path    string
	persist bool
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

const fileName = "summaries.jsonl"

func NewFileStore(stateDir string, persist bool) (*FileStore, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	store := &FileStore{
		MemoryStore: NewMemoryStore(),
		path:        filepath.Join(stateDir, fileName),
		persist:     persist,
	}

	if err := store.load(); err != nil {
		return nil, err
	}

	if persist {
		file, err := os.OpenFile(store.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open state file for append: %w", err)
		}
		store.file = file
		store.writer = bufio.NewWriterSize(file, 64*1024)
	}

	return store, nil
}

// Path returns the JSONL file backing the store.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(text, &entry); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		if entry.ThreadID == "" || entry.Hash == "" {
			continue
		}

		// later lines win
		f.mu.Lock()
		f.entries[key(entry.ThreadID, entry.Hash)] = entry
		f.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	return nil
}

func (f *FileStore) Save(entry Entry) error {
	if entry.ThreadID == "" || entry.Hash == "" {
		return nil
	}

	f.mu.Lock()
	if existing, ok := f.entries[key(entry.ThreadID, entry.Hash)]; ok && existing.Summary == entry.Summary && existing.Status == entry.Status {
		f.mu.Unlock()
		return nil
	}
	f.entries[key(entry.ThreadID, entry.Hash)] = entry
	f.mu.Unlock()

	if !f.persist {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	return nil
}

// Flush writes any buffered data to the underlying file.
func (f *FileStore) Flush() error {
	if !f.persist || f.writer == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("sync state file: %w", err)
	}
	return nil
}

// Close flushes and closes the state file.
func (f *FileStore) Close() error {
	if !f.persist || f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if f.writer != nil {
		if err := f.writer.Flush(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush state file: %w", err)
		}
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync state file: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close state file: %w", err)
	}
	f.file = nil

	return firstErr
}
