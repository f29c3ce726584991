package natal

import (
	"sync/atomic"
	"time"
)

// Store provides concurrent access to the active natal frame.
type Store struct {
	frame atomic.Pointer[Frame]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current frame, or nil if none has been loaded.
func (s *Store) Get() *Frame {
	return s.frame.Load()
}

// Set atomically replaces the current frame.
func (s *Store) Set(f *Frame) {
	s.frame.Store(f)
}

// AgeSeconds returns the seconds since the current frame was loaded,
// or -1 if no frame is loaded.
func (s *Store) AgeSeconds() float64 {
	f := s.frame.Load()
	if f == nil {
		return -1
	}
	return time.Since(f.LoadedAt).Seconds()
}
