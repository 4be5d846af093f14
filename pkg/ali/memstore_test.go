package ali

import (
	"context"
	"sync"
	"time"

	"github.com/lgessler/ali/pkg/models"
	"github.com/lgessler/ali/pkg/store"
)

// memStore is an in-memory store.Store used by the handler tests. It
// mirrors the persistence contract: mutations against missing ids are
// silent no-ops, and readable ids come from a counter.
type memStore struct {
	mu        sync.Mutex
	sentences map[models.SentenceID]*models.Sentence
	users     map[models.UserID]*models.User
	counter   int64
	changes   chan store.Change
	closed    bool
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		sentences: make(map[models.SentenceID]*models.Sentence),
		users:     make(map[models.UserID]*models.User),
		changes:   make(chan store.Change, 64),
	}
}

func (m *memStore) emit(action store.ChangeAction, record map[string]any) {
	select {
	case m.changes <- store.Change{Action: action, Record: record}:
	default:
	}
}

func (m *memStore) CreateSentence(ctx context.Context, s *models.Sentence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	s.ID = models.NewSentenceID()
	s.ReadableID = m.counter
	s.CreatedAt = time.Now()

	copied := *s
	m.sentences[s.ID] = &copied
	m.emit(store.ChangeCreate, map[string]any{"id": s.ID.String(), "sentence": s.Sentence})
	return nil
}

func (m *memStore) GetSentence(ctx context.Context, id models.SentenceID) (*models.Sentence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sentences[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) ListSentences(ctx context.Context) ([]*models.Sentence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Sentence, 0, len(m.sentences))
	for _, s := range m.sentences {
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memStore) DeleteSentence(ctx context.Context, id models.SentenceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sentences[id]; !ok {
		return nil
	}
	delete(m.sentences, id)
	m.emit(store.ChangeDelete, map[string]any{"id": id.String()})
	return nil
}

func (m *memStore) AddAnnotation(ctx context.Context, id models.SentenceID, a models.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sentences[id]
	if !ok {
		return nil
	}
	s.Annotations = append(s.Annotations, a)
	m.emit(store.ChangeUpdate, map[string]any{"id": id.String()})
	return nil
}

func (m *memStore) RemoveAnnotation(ctx context.Context, id models.SentenceID, a models.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sentences[id]
	if !ok {
		return nil
	}
	kept := s.Annotations[:0]
	for _, existing := range s.Annotations {
		if existing != a {
			kept = append(kept, existing)
		}
	}
	s.Annotations = kept
	m.emit(store.ChangeUpdate, map[string]any{"id": id.String()})
	return nil
}

func (m *memStore) AddSpanAnnotation(ctx context.Context, id models.SentenceID, a models.SpanAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sentences[id]
	if !ok {
		return nil
	}
	s.SpanAnnotations = append(s.SpanAnnotations, a)
	m.emit(store.ChangeUpdate, map[string]any{"id": id.String()})
	return nil
}

func (m *memStore) RemoveSpanAnnotation(ctx context.Context, id models.SentenceID, a models.SpanAnnotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sentences[id]
	if !ok {
		return nil
	}
	kept := s.SpanAnnotations[:0]
	for _, existing := range s.SpanAnnotations {
		if existing != a {
			kept = append(kept, existing)
		}
	}
	s.SpanAnnotations = kept
	m.emit(store.ChangeUpdate, map[string]any{"id": id.String()})
	return nil
}

func (m *memStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return store.ErrDuplicateEmail
		}
	}
	u.ID = models.NewUserID()
	u.CreatedAt = time.Now()
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) SubscribeSentences(ctx context.Context) (<-chan store.Change, func(), error) {
	return m.changes, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.closed {
			m.closed = true
			close(m.changes)
		}
	}, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) sentenceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sentences)
}
