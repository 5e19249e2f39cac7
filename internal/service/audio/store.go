package audio

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// clipTTL is how long a synthesized clip stays fetchable. Clients download
// right after the reply arrives, so this only needs to cover slow links
// and a retry or two.
const clipTTL = 10 * time.Minute

type clip struct {
	data      []byte
	mimeType  string
	expiresAt time.Time
}

// ClipStore holds synthesized audio for HTTP delivery. Clips are keyed by
// opaque IDs and expire after clipTTL.
type ClipStore struct {
	mu    sync.Mutex
	clips map[string]clip
}

func NewClipStore() *ClipStore {
	return &ClipStore{clips: make(map[string]clip)}
}

// Put stores the clip and returns its ID.
func (s *ClipStore) Put(data []byte, mimeType string) string {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.clips[id] = clip{data: data, mimeType: mimeType, expiresAt: time.Now().Add(clipTTL)}
	return id
}

// Get returns the clip bytes and MIME type, or false if expired or unknown.
func (s *ClipStore) Get(id string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clips[id]
	if !ok || time.Now().After(c.expiresAt) {
		delete(s.clips, id)
		return nil, "", false
	}
	return c.data, c.mimeType, true
}

// sweep drops expired clips; called with the lock held.
func (s *ClipStore) sweep() {
	now := time.Now()
	for id, c := range s.clips {
		if now.After(c.expiresAt) {
			delete(s.clips, id)
		}
	}
}
