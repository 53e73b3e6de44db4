// Package session records the messages exchanged with the LLM while one
// query is answered.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishpuri/FRED/config"
)

type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Session is the transcript of one query. It is safe for concurrent use.
type Session struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`

	mu sync.Mutex
}

// New starts a transcript for query with a fresh id.
func New(query string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Query:     query,
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	}
}

// Load reads a saved transcript from dir.
func Load(dir, id string) (*Session, error) {
	path := sessionPath(dir, id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the transcript under dir/sessions. An empty dir means the
// project config directory.
func (s *Session) Save(dir string) error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	path := sessionPath(dir, s.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create session directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// AddMessage appends a message to the transcript.
func (s *Session) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
}

// History returns a copy of the messages so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.Messages...)
}

func sessionPath(dir, id string) string {
	if dir == "" {
		dir = config.ConfigDir
	}
	return filepath.Join(dir, "sessions", id+".json")
}
