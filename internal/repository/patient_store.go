package repository

import (
	"sort"
	"sync"

	"VitalWatch/internal/domain/models"
	domrepo "VitalWatch/internal/domain/repository"
)

type patientRecord struct {
	mu  sync.RWMutex
	obs []models.Observation // ordered by timestamp, insertion order among equal timestamps
}

// PatientStore is an in-memory ObservationStore. The store lock guards only the
// subject map; each patient carries its own lock, so work on one subject never
// waits on another subject's write.
type PatientStore struct {
	mu       sync.RWMutex
	patients map[int]*patientRecord
}

// NewPatientStore creates an empty store.
func NewPatientStore() *PatientStore {
	return &PatientStore{patients: make(map[int]*patientRecord)}
}

// Append validates the category and records the observation, creating the patient on first use.
func (s *PatientStore) Append(subjectID int, category string, value float64, ts int64) error {
	c, err := models.ParseCategory(category)
	if err != nil {
		return err
	}
	o := models.Observation{SubjectID: subjectID, Category: c, Value: value, Timestamp: ts}

	rec := s.getOrCreate(subjectID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	n := len(rec.obs)
	if n == 0 || rec.obs[n-1].Timestamp <= ts {
		rec.obs = append(rec.obs, o)
		return nil
	}
	// out-of-order arrival: insert after every reading with timestamp <= ts
	i := sort.Search(n, func(i int) bool { return rec.obs[i].Timestamp > ts })
	rec.obs = append(rec.obs, models.Observation{})
	copy(rec.obs[i+1:], rec.obs[i:n])
	rec.obs[i] = o
	return nil
}

// Query returns observations with start <= timestamp <= end in ascending order.
// Unknown subjects and empty ranges yield an empty slice.
func (s *PatientStore) Query(subjectID int, start, end int64) []models.Observation {
	out := []models.Observation{}
	if start > end {
		return out
	}
	rec := s.lookup(subjectID)
	if rec == nil {
		return out
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()
	lo := sort.Search(len(rec.obs), func(i int) bool { return rec.obs[i].Timestamp >= start })
	hi := sort.Search(len(rec.obs), func(i int) bool { return rec.obs[i].Timestamp > end })
	if lo >= hi {
		return out
	}
	out = make([]models.Observation, hi-lo)
	copy(out, rec.obs[lo:hi])
	return out
}

// GetPatient returns a snapshot of the subject's history.
func (s *PatientStore) GetPatient(subjectID int) (models.Patient, bool) {
	rec := s.lookup(subjectID)
	if rec == nil {
		return models.Patient{}, false
	}
	return rec.snapshot(subjectID), true
}

// AllPatients returns snapshots of every patient ordered by subject id.
func (s *PatientStore) AllPatients() []models.Patient {
	ids := s.SubjectIDs()
	out := make([]models.Patient, 0, len(ids))
	for _, id := range ids {
		if rec := s.lookup(id); rec != nil {
			out = append(out, rec.snapshot(id))
		}
	}
	return out
}

// SubjectIDs lists known subjects in ascending order.
func (s *PatientStore) SubjectIDs() []int {
	s.mu.RLock()
	ids := make([]int, 0, len(s.patients))
	for id := range s.patients {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// Count returns the number of observations stored for a subject.
func (s *PatientStore) Count(subjectID int) int {
	rec := s.lookup(subjectID)
	if rec == nil {
		return 0
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return len(rec.obs)
}

func (s *PatientStore) lookup(subjectID int) *patientRecord {
	s.mu.RLock()
	rec := s.patients[subjectID]
	s.mu.RUnlock()
	return rec
}

func (s *PatientStore) getOrCreate(subjectID int) *patientRecord {
	if rec := s.lookup(subjectID); rec != nil {
		return rec
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.patients[subjectID]
	if !ok {
		rec = &patientRecord{}
		s.patients[subjectID] = rec
	}
	return rec
}

func (r *patientRecord) snapshot(subjectID int) models.Patient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obs := make([]models.Observation, len(r.obs))
	copy(obs, r.obs)
	return models.Patient{SubjectID: subjectID, Observations: obs}
}

var _ domrepo.ObservationStore = (*PatientStore)(nil)
