package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. It backs local development
// when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records []MedicalRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) CreateRecord(_ context.Context, rec MedicalRecord) (*MedicalRecord, error) {
	rec, err := Prepare(rec, s.now())
	if err != nil {
		return nil, err
	}
	rec.ID = uuid.NewString()
	rec.ConversationHistory = slices.Clone(rec.ConversationHistory)

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	out := rec
	out.ConversationHistory = slices.Clone(rec.ConversationHistory)
	return &out, nil
}

func (s *MemoryStore) ListRecords(_ context.Context) ([]MedicalRecord, error) {
	return s.filter(func(MedicalRecord) bool { return true }), nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id string) (*MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.ID == id {
			r.ConversationHistory = slices.Clone(r.ConversationHistory)
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindRecordsByPatientName(_ context.Context, name string) ([]MedicalRecord, error) {
	needle := strings.ToLower(name)
	return s.filter(func(r MedicalRecord) bool {
		return strings.Contains(strings.ToLower(r.PatientName), needle)
	}), nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) filter(keep func(MedicalRecord) bool) []MedicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []MedicalRecord{}
	for _, r := range s.records {
		if keep(r) {
			r.ConversationHistory = slices.Clone(r.ConversationHistory)
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(records []MedicalRecord) {
	slices.SortStableFunc(records, func(a, b MedicalRecord) int {
		return b.ConsultationDate.Compare(a.ConsultationDate)
	})
}
