package workflow

import (
	"sync"

	"moflow/internal/workflow/models"
)

// Store owns the draft of one entity kind. Commands mutate the draft under
// a lock; subscribers receive their own snapshot after every change.
type Store struct {
	kind models.EntityKind

	mu      sync.Mutex
	draft   *models.Draft
	version uint64

	subMu   sync.Mutex
	subs    map[int]func(models.Draft)
	nextSub int
}

func NewStore(kind models.EntityKind) *Store {
	return &Store{
		kind:  kind,
		draft: models.NewDraft(kind),
		subs:  map[int]func(models.Draft){},
	}
}

func (s *Store) Kind() models.EntityKind { return s.kind }

// Stage inserts or replaces a detail record. No validation happens here.
func (s *Store) Stage(kind models.DetailKind, rec models.DetailRecord) {
	s.mutate(func(d *models.Draft) { d.Stage(kind, rec) })
}

// StageAll replaces every record staged under kind.
func (s *Store) StageAll(kind models.DetailKind, recs []models.DetailRecord) {
	s.mutate(func(d *models.Draft) { d.StageAll(kind, recs) })
}

func (s *Store) SetIdentity(id models.Identity) {
	s.mutate(func(d *models.Draft) { d.Identity = id })
}

// ResetFields clears identity and all staged details. Idempotent.
func (s *Store) ResetFields() {
	s.mutate(func(d *models.Draft) { d.Reset() })
}

// ResetFieldsIf clears the draft only when nothing changed it since version
// was read, and reports whether it did.
func (s *Store) ResetFieldsIf(version uint64) bool {
	return s.mutateIf(version, func(d *models.Draft) { d.Reset() })
}

// Snapshot returns a copy of the draft that shares nothing with the store.
func (s *Store) Snapshot() models.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Version counts the changes made to the draft.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers fn for draft-changed notifications and returns a
// function that removes it. fn runs on the goroutine that made the change.
func (s *Store) Subscribe(fn func(models.Draft)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) mutate(fn func(*models.Draft)) {
	s.mu.Lock()
	fn(s.draft)
	s.version++
	snap := s.draft.Clone()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) mutateIf(version uint64, fn func(*models.Draft)) bool {
	s.mu.Lock()
	if s.version != version {
		s.mu.Unlock()
		return false
	}
	fn(s.draft)
	s.version++
	snap := s.draft.Clone()
	s.mu.Unlock()
	s.publish(snap)
	return true
}

func (s *Store) publish(snap models.Draft) {
	s.subMu.Lock()
	subs := make([]func(models.Draft), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	s.subMu.Unlock()

	for i, f := range subs {
		if i < len(subs)-1 {
			f(snap.Clone())
			continue
		}
		f(snap)
	}
}
