package hosted

import (
	"crypto/sha1"
	"encoding/hex"
	"sync/atomic"
)

// Clip is an immutable hosted audio payload.
type Clip struct {
	Hash     string
	MimeType string
	Data     []byte
}

// Store holds at most one clip, addressed by the SHA-1 of its bytes.
// Replacing the clip is a single pointer swap; readers never observe a
// partially written entry.
type Store struct {
	current atomic.Pointer[Clip]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Put replaces the hosted clip and returns it.
func (s *Store) Put(data []byte, mimeType string) *Clip {
	sum := sha1.Sum(data)
	clip := &Clip{
		Hash:     hex.EncodeToString(sum[:]),
		MimeType: mimeType,
		Data:     append([]byte(nil), data...),
	}
	s.current.Store(clip)
	return clip
}

// Get returns the hosted clip when hash matches it.
func (s *Store) Get(hash string) (*Clip, bool) {
	clip := s.current.Load()
	if clip == nil || hash == "" || clip.Hash != hash {
		return nil, false
	}
	return clip, true
}

// Current returns the hosted clip, if any.
func (s *Store) Current() *Clip {
	return s.current.Load()
}
