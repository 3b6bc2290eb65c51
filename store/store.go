package store

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/bisacoding/bisacoding/internal/llm"
)

// storageKey is the fixed key of the single record holding the serialized
// project collection. It matches the localStorage key of the original web app
// so an exported blob can be imported as-is.
const storageKey = "bisacoding_projects"

// schemaVersion of the persisted envelope. The original format was a bare
// array with no version field; those blobs still load (see Load).
const schemaVersion = 1

// PlaceholderTitle is given to a freshly created project. It is replaced
// exactly once, by a prefix of the project's first user message.
const PlaceholderTitle = "New discussion"

// SeedGreeting opens every new project.
const SeedGreeting = "Hello! I am the Bisa Coding senior architect. I am tuned for " +
	"analyzing large codebases and very long code files. Paste your code or attach " +
	"the file you want audited."

// titleMaxRunes caps derived project titles.
const titleMaxRunes = 48

// Message is one turn in a conversation.
type Message struct {
	// user or model.
	Role    string `json:"role"`
	Content string `json:"content"`
	// Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// Grounding citations, present only on model turns that used retrieval.
	Sources []*llm.Source `json:"sources,omitempty"`
}

// Project is one persisted conversation.
type Project struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Messages []*Message `json:"messages"`
	// Unix milliseconds, refreshed on every message mutation. Display only.
	UpdatedAt int64 `json:"updatedAt"`
}

// envelope wraps the persisted collection with a schema version.
type envelope struct {
	Version  int        `json:"version"`
	Projects []*Project `json:"projects"`
}

// Store owns the durable project collection. It is the single writer: all
// mutation goes through its operations, serialized behind one mutex so
// concurrent callers (the web server) cannot interleave partial writes.
//
// Persistence is fail-soft throughout: a read or write failure is logged and
// the in-memory collection keeps working. Storage trouble never blocks a chat.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	projects []*Project
}

// New opens the store and loads the project collection.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, errors.Wrap(err, "creating records table")
	}

	s := &Store{db: db}
	// Load before accepting any mutation, so a write cannot clobber the
	// record with an empty default before the initial read happened.
	s.projects = s.Load()
	return s, nil
}

// Load reads the persisted collection. A missing, unparsable or non-array
// record yields an empty collection, never an error. Ordering is creation
// order, newest first; projects do not move when they receive new messages.
func (s *Store) Load() []*Project {
	var value string
	err := s.db.QueryRow(`SELECT value FROM records WHERE key = ?`, storageKey).Scan(&value)
	if err == sql.ErrNoRows {
		return []*Project{}
	}
	if err != nil {
		slog.Warn("reading project record", "error", err)
		return []*Project{}
	}
	return decode(value)
}

// decode parses a persisted blob, accepting both the versioned envelope and
// the legacy bare array.
func decode(value string) []*Project {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "[") {
		var projects []*Project
		if err := json.Unmarshal([]byte(trimmed), &projects); err != nil {
			slog.Warn("parsing legacy project record", "error", err)
			return []*Project{}
		}
		return projects
	}

	var record envelope
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		slog.Warn("parsing project record", "error", err)
		return []*Project{}
	}
	if record.Projects == nil {
		return []*Project{}
	}
	return record.Projects
}

// Persist writes the full collection to the record. Safe to call redundantly;
// a failure is logged, never raised.
func (s *Store) Persist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistLocked()
}

func (s *Store) persistLocked() {
	record := envelope{Version: schemaVersion, Projects: s.projects}
	value, err := json.Marshal(record)
	if err != nil {
		slog.Warn("marshaling project record", "error", err)
		return
	}
	_, err = s.db.Exec(`
		REPLACE INTO records (key, value)
		VALUES (?, ?)
	`, storageKey, string(value))
	if err != nil {
		slog.Warn("writing project record", "error", err)
	}
}

// Projects returns a snapshot of the collection, newest-created first. Each
// entry is a copy; reading it never races with a concurrent mutation.
func (s *Store) Projects() []*Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	projects := make([]*Project, len(s.projects))
	for i, project := range s.projects {
		projects[i] = project.clone()
	}
	return projects
}

// Get returns a snapshot of the project with the given id, or nil.
func (s *Store) Get(projectID string) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, project := range s.projects {
		if project.ID == projectID {
			return project.clone()
		}
	}
	return nil
}

// clone returns a copy safe to read outside the store lock. Message values
// are immutable once stored (UpdateMessages swaps the whole slice), so the
// message pointers are shared; the slice header and the project fields are
// the mutable parts and get copied.
func (p *Project) clone() *Project {
	messages := make([]*Message, len(p.Messages))
	copy(messages, p.Messages)
	snapshot := *p
	snapshot.Messages = messages
	return &snapshot
}

// CreateProject allocates a new project with a placeholder title and the seed
// greeting, inserts it at the head of the collection and persists.
func (s *Store) CreateProject() *Project {
	now := time.Now().UnixMilli()
	project := &Project{
		ID:    uuid.New().String()[:8],
		Title: PlaceholderTitle,
		Messages: []*Message{{
			Role:      llm.ModelRole,
			Content:   SeedGreeting,
			Timestamp: now,
		}},
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append([]*Project{project}, s.projects...)
	s.persistLocked()
	return project.clone()
}

// UpdateMessages replaces the message sequence of the named project and
// refreshes its update time. The first time the project acquires a user
// message, the title is derived from it; it is never recomputed afterwards.
// Unknown ids are a silent no-op.
func (s *Store) UpdateMessages(projectID string, messages []*Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, project := range s.projects {
		if project.ID != projectID {
			continue
		}
		project.Messages = messages
		project.UpdatedAt = time.Now().UnixMilli()
		if project.Title == "" || project.Title == PlaceholderTitle {
			if title := deriveTitle(messages); title != "" {
				project.Title = title
			}
		}
		s.persistLocked()
		return
	}
}

// DeleteProject removes the project from the collection. Unknown ids are a
// silent no-op.
func (s *Store) DeleteProject(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, project := range s.projects {
		if project.ID != projectID {
			continue
		}
		s.projects = append(s.projects[:i], s.projects[i+1:]...)
		s.persistLocked()
		return
	}
}

// DeleteAll clears the collection and removes the persisted record.
func (s *Store) DeleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = []*Project{}
	if _, err := s.db.Exec(`DELETE FROM records WHERE key = ?`, storageKey); err != nil {
		slog.Warn("deleting project record", "error", err)
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// deriveTitle builds a title from the first user message: its first line,
// capped at titleMaxRunes with an ellipsis when truncated.
func deriveTitle(messages []*Message) string {
	for _, message := range messages {
		if message.Role != llm.UserRole {
			continue
		}
		content := strings.TrimSpace(message.Content)
		line, rest, multiline := strings.Cut(content, "\n")
		line = strings.TrimSpace(line)
		runes := []rune(line)
		truncated := multiline && strings.TrimSpace(rest) != ""
		if len(runes) > titleMaxRunes {
			runes = runes[:titleMaxRunes]
			truncated = true
		}
		title := string(runes)
		if truncated {
			title += "..."
		}
		return title
	}
	return ""
}
