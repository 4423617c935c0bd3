package conversation

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/corebridge/platform-core/internal/apperr"
)

// FileStore persists one JSON file per conversation under dir, optionally
// AEAD-encrypted. A single mutex serializes all mutating operations —
// grounded on the teacher's sessions.MemoryStore pattern of one coarse
// lock, since the conversation workload (a handful of writes per tool
// invocation) doesn't justify per-file locking.
type FileStore struct {
	mu  sync.Mutex
	dir string
	box *cryptoBox
}

// NewFileStore builds a FileStore rooted at dir, creating it if absent. A
// non-nil key enables encryption; a wrong-sized key is rejected rather than
// silently falling back to plaintext.
func NewFileStore(dir string, key []byte) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperr.Misconfigured("create conversation store dir: " + err.Error())
	}
	var box *cryptoBox
	if key != nil {
		b, err := newCryptoBox(key)
		if err != nil {
			return nil, err
		}
		box = b
	}
	return &FileStore{dir: dir, box: box}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) Save(ctx context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		return apperr.Misconfigured("conversation ID must not be empty")
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	return s.writeLocked(c)
}

func (s *FileStore) writeLocked(c *Conversation) error {
	encoded, err := s.box.encode(c)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(c.ID), []byte(encoded), 0o600)
}

func (s *FileStore) readLocked(id string) (*Conversation, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.TaskNotFound(id)
		}
		return nil, apperr.BackendUnavailable("conversation file store", err)
	}
	c, err := s.box.decode(string(raw))
	if err != nil {
		// A tampered or undecryptable record is purged rather than left
		// behind to fail every subsequent read the same way.
		os.Remove(s.path(id))
		return nil, apperr.Unavailable()
	}
	return c, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(id)
}

func (s *FileStore) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.readLocked(id)
	if err != nil {
		return err
	}
	applyPatch(c, patch)
	c.UpdatedAt = time.Now()
	return s.writeLocked(c)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return apperr.TaskNotFound(id)
		}
		return apperr.BackendUnavailable("conversation file store", err)
	}
	return nil
}

func (s *FileStore) listLocked() ([]*Conversation, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperr.BackendUnavailable("conversation file store", err)
	}
	out := make([]*Conversation, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		c, err := s.readLocked(id)
		if err != nil {
			continue // already purged if tampered; skip on any other read error
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *FileStore) List(ctx context.Context, filter Filter) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listLocked()
	if err != nil {
		return nil, err
	}
	var matched []*Conversation
	for _, c := range all {
		if matches(c, filter) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	return paginate(matched, filter.Limit, filter.Offset), nil
}

func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listLocked()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalConversations: len(all)}
	for _, c := range all {
		st.TotalMessages += len(c.Messages)
	}
	return st, nil
}

func (s *FileStore) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listLocked()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	evicted := 0
	for _, c := range all {
		if expired(c, now, retentionDays) {
			if err := os.Remove(s.path(c.ID)); err == nil {
				evicted++
			}
		}
	}
	return evicted, nil
}

func applyPatch(c *Conversation, patch Patch) {
	if len(patch.AppendMessages) > 0 {
		c.Messages = append(c.Messages, patch.AppendMessages...)
	}
	if patch.Metadata != nil {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			c.Metadata[k] = v
		}
	}
	if patch.ExpiresAt != nil {
		c.ExpiresAt = *patch.ExpiresAt
	}
}
