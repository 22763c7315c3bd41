package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ncleton-petitmaker/post-veille-ia/internal/models"
)

// document is the on-disk shape of the scheduled posts file. Records stay as
// raw bytes so a rewrite only touches the record being changed.
type document struct {
	Posts     []json.RawMessage `json:"posts"`
	UpdatedAt string            `json:"updated_at,omitempty"`

	decoded []models.Post
}

// FileStore keeps the scheduled posts in a single JSON document that is read
// and rewritten wholesale.
type FileStore struct {
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// List returns every post in file order. A missing or unreadable file yields
// an empty list.
func (s *FileStore) List(ctx context.Context) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load().decoded, nil
}

// UpdateStatus merges update into the post and rewrites the file. It returns
// the post before and after the merge.
func (s *FileStore) UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) (before, after *models.Post, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	i := indexOf(doc.decoded, id)
	if i < 0 {
		return nil, nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}

	prev := doc.decoded[i]
	if !models.CanTransition(prev.Status, update.Status) {
		return nil, nil, fmt.Errorf("post %s: %s -> %s: %w", id, prev.Status, update.Status, models.ErrInvalidTransition)
	}

	fields := []field{{key: "status", value: update.Status}}
	if update.Error != "" {
		fields = append(fields, field{key: "error", value: update.Error})
	}
	if update.PublishedAt != "" {
		fields = append(fields, field{key: "published_at", value: update.PublishedAt})
	}

	patched, err := patchRecord(doc.Posts[i], fields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to patch post %s: %w", id, err)
	}
	var next models.Post
	if err := json.Unmarshal(patched, &next); err != nil {
		return nil, nil, fmt.Errorf("failed to decode patched post %s: %w", id, err)
	}
	doc.Posts[i] = patched

	if err := s.write(doc); err != nil {
		return nil, nil, err
	}
	return &prev, &next, nil
}

// Delete removes the post, keeping the others in order.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	i := indexOf(doc.decoded, id)
	if i < 0 {
		return fmt.Errorf("post %s: %w", id, models.ErrNotFound)
	}

	doc.Posts = append(doc.Posts[:i:i], doc.Posts[i+1:]...)
	return s.write(doc)
}

// load reads the document. An unreadable file reads as an empty one, so
// updates and deletes against it report the post as not found and leave the
// file alone.
func (s *FileStore) load() *document {
	doc, err := s.read()
	if err != nil {
		s.logger.Error("Failed to read scheduled posts", zap.String("path", s.path), zap.Error(err))
		return &document{Posts: []json.RawMessage{}, decoded: []models.Post{}}
	}
	return doc
}

func (s *FileStore) read() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{Posts: []json.RawMessage{}, decoded: []models.Post{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	doc.decoded = make([]models.Post, 0, len(doc.Posts))
	for i, raw := range doc.Posts {
		var p models.Post
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to parse post %d of %s: %w", i, s.path, err)
		}
		doc.decoded = append(doc.decoded, p)
	}
	return &doc, nil
}

// encode lays the document out with two-space indentation. Record bytes are
// copied as read.
func (s *FileStore) encode(doc *document) ([]byte, error) {
	updatedAt, err := encodeValue(doc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("{\n  \"posts\": [")
	for i, raw := range doc.Posts {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n    ")
		buf.Write(raw)
	}
	if len(doc.Posts) > 0 {
		buf.WriteString("\n  ")
	}
	buf.WriteString("],\n  \"updated_at\": ")
	buf.Write(updatedAt)
	buf.WriteString("\n}")
	return buf.Bytes(), nil
}

func (s *FileStore) write(doc *document) error {
	doc.UpdatedAt = s.now().UTC().Format(time.RFC3339Nano)

	data, err := s.encode(doc)
	if err != nil {
		return fmt.Errorf("failed to encode posts: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

func indexOf(posts []models.Post, id string) int {
	for i, p := range posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}
