package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/psbkit/pkg/psb"
)

// documentRecord guards its Document, which is not safe for concurrent use.
type documentRecord struct {
	mu sync.Mutex

	ID        string
	Name      string
	Document  *psb.Document
	CreatedAt time.Time
}

// DocumentStore keeps uploaded documents in memory. When full, the oldest
// entry is evicted.
type DocumentStore struct {
	mu    sync.Mutex
	max   int
	docs  map[string]*documentRecord
	order []string
}

func NewDocumentStore(max int) *DocumentStore {
	if max <= 0 {
		max = 64
	}
	return &DocumentStore{max: max, docs: make(map[string]*documentRecord)}
}

func (s *DocumentStore) Create(name string, doc *psb.Document, now time.Time) *documentRecord {
	rec := &documentRecord{ID: "doc_" + uuid.NewString(), Name: name, Document: doc, CreatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.order) >= s.max {
		delete(s.docs, s.order[0])
		s.order = s.order[1:]
	}
	s.docs[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return rec
}

func (s *DocumentStore) Get(id string) (*documentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	return rec, ok
}

func (s *DocumentStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return false
	}
	delete(s.docs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *DocumentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
