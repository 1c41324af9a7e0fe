package system

import (
	"fmt"
	"sync"
)

// Stack holds acquired resources and releases them in reverse order
// (LIFO), mimicking bash trap cleanup behavior. Every acquisition pushes
// a release action before the resource becomes visible to callers, so no
// resource can outlive a session without a scheduled release.
type Stack struct {
	handles  []handle
	released bool
	mu       sync.Mutex
}

type handle struct {
	name    string
	release func() error
}

// NewStack creates an empty resource stack
func NewStack() *Stack {
	return &Stack{}
}

// Push schedules a release action for a resource acquired under name.
// The name only appears in release error messages.
func (s *Stack) Push(name string, release func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = append(s.handles, handle{name: name, release: release})
}

// Len returns the number of resources currently held
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Release releases every pushed resource in reverse acquisition order.
// Each handle is released at most once, even if Release is called again.
// A failing release never stops the remaining releases from being
// attempted; only the first error is returned.
func (s *Stack) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true

	var first error
	for i := len(s.handles) - 1; i >= 0; i-- {
		if err := s.handles[i].release(); err != nil && first == nil {
			first = fmt.Errorf("release %s: %w", s.handles[i].name, err)
		}
	}
	s.handles = nil
	return first
}
