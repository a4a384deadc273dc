package objectstore

import (
	"context"
	"sync"

	"storecred/pkg/platform/sentinel"
	"storecred/pkg/requestcontext"
)

// InMemory keeps objects in a map and emits a finalize event after every
// completed Put. The emitter runs outside the lock: handlers may write
// derivatives back into the store.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string]Object
	emitter Emitter
}

// NewInMemory constructs an empty store. A nil emitter disables events.
func NewInMemory(emitter Emitter) *InMemory {
	return &InMemory{objects: make(map[string]Object), emitter: emitter}
}

// Put stores the object, overwriting any previous version, then finalizes.
func (s *InMemory) Put(ctx context.Context, obj Object) error {
	s.mu.Lock()
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	obj.Data = data
	s.objects[obj.Path] = obj
	s.mu.Unlock()

	if s.emitter == nil {
		return nil
	}
	return s.emitter.Finalize(ctx, FinalizeEvent{
		Name:        obj.Path,
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Data)),
		FinalizedAt: requestcontext.Now(ctx),
	})
}

// Get returns a copy of the stored object.
func (s *InMemory) Get(_ context.Context, path string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return Object{}, sentinel.ErrNotFound
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	obj.Data = data
	return obj, nil
}

// Stat describes a stored object without copying its payload.
func (s *InMemory) Stat(_ context.Context, path string) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return Info{}, sentinel.ErrNotFound
	}
	return Info{
		Path:        obj.Path,
		ContentType: obj.ContentType,
		Size:        int64(len(obj.Data)),
		AccessToken: obj.AccessToken,
	}, nil
}

// Delete removes the object.
func (s *InMemory) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.objects, path)
	return nil
}

// Len reports the number of stored objects. Test helper.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
