// Package store provides an in-memory stock.TxStore.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/oliverbenduhn/tabletto/stock"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	state
}

type state struct {
	users       map[stock.UserID]stock.User
	medications map[stock.MedicationID]stock.Medication
	history     []stock.HistoryEntry
	occurrences map[occurrence]bool
}

type occurrence struct {
	MedicationID stock.MedicationID
	Action       stock.Action
	Day          string
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func newState() state {
	return state{
		users:       make(map[stock.UserID]stock.User),
		medications: make(map[stock.MedicationID]stock.Medication),
		occurrences: make(map[occurrence]bool),
	}
}

// =============================================================================
// LOCKED PUBLIC API
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u *stock.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createUser(u)
}

func (m *Memory) GetUser(_ context.Context, id stock.UserID) (*stock.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUser(id)
}

func (m *Memory) UpdateDoseTimes(_ context.Context, id stock.UserID, times stock.DoseTimes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateDoseTimes(id, times)
}

func (m *Memory) CreateMedication(_ context.Context, med *stock.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createMedication(med)
}

func (m *Memory) GetMedication(_ context.Context, userID stock.UserID, id stock.MedicationID) (*stock.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMedication(userID, id)
}

func (m *Memory) ListMedications(_ context.Context, userID stock.UserID) ([]stock.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMedications(userID), nil
}

func (m *Memory) UpdateMedication(_ context.Context, med *stock.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateMedication(med)
}

func (m *Memory) DeleteMedication(_ context.Context, userID stock.UserID, id stock.MedicationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteMedication(userID, id)
}

func (m *Memory) ListCandidates(_ context.Context) ([]stock.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCandidates(), nil
}

func (m *Memory) ListNegativeStock(_ context.Context) ([]stock.Medication, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listNegativeStock(), nil
}

func (m *Memory) UpdateStock(_ context.Context, u stock.StockUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStock(u)
}

func (m *Memory) AppendHistory(_ context.Context, e stock.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendHistory(e)
}

func (m *Memory) ListHistory(_ context.Context, medID stock.MedicationID, userID stock.UserID, limit int) ([]stock.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listHistory(medID, userID, limit), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(stock.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *Memory) snapshot() state {
	s := newState()
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.medications {
		s.medications[k] = v
	}
	for k, v := range m.occurrences {
		s.occurrences[k] = v
	}
	s.history = append([]stock.HistoryEntry(nil), m.history...)
	return s
}

// txView runs against the parent's state while WithTx holds the lock.
type txView struct {
	parent *Memory
}

func (tv *txView) CreateUser(_ context.Context, u *stock.User) error {
	return tv.parent.createUser(u)
}

func (tv *txView) GetUser(_ context.Context, id stock.UserID) (*stock.User, error) {
	return tv.parent.getUser(id)
}

func (tv *txView) UpdateDoseTimes(_ context.Context, id stock.UserID, times stock.DoseTimes) error {
	return tv.parent.updateDoseTimes(id, times)
}

func (tv *txView) CreateMedication(_ context.Context, med *stock.Medication) error {
	return tv.parent.createMedication(med)
}

func (tv *txView) GetMedication(_ context.Context, userID stock.UserID, id stock.MedicationID) (*stock.Medication, error) {
	return tv.parent.getMedication(userID, id)
}

func (tv *txView) ListMedications(_ context.Context, userID stock.UserID) ([]stock.Medication, error) {
	return tv.parent.listMedications(userID), nil
}

func (tv *txView) UpdateMedication(_ context.Context, med *stock.Medication) error {
	return tv.parent.updateMedication(med)
}

func (tv *txView) DeleteMedication(_ context.Context, userID stock.UserID, id stock.MedicationID) error {
	return tv.parent.deleteMedication(userID, id)
}

func (tv *txView) ListCandidates(_ context.Context) ([]stock.Candidate, error) {
	return tv.parent.listCandidates(), nil
}

func (tv *txView) ListNegativeStock(_ context.Context) ([]stock.Medication, error) {
	return tv.parent.listNegativeStock(), nil
}

func (tv *txView) UpdateStock(_ context.Context, u stock.StockUpdate) error {
	return tv.parent.updateStock(u)
}

func (tv *txView) AppendHistory(_ context.Context, e stock.HistoryEntry) error {
	return tv.parent.appendHistory(e)
}

func (tv *txView) ListHistory(_ context.Context, medID stock.MedicationID, userID stock.UserID, limit int) ([]stock.HistoryEntry, error) {
	return tv.parent.listHistory(medID, userID, limit), nil
}

// =============================================================================
// UNLOCKED STATE OPERATIONS - callers hold mu
// =============================================================================

func (s *state) createUser(u *stock.User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return &stock.ValidationError{Field: "email", Message: "is already registered"}
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *state) getUser(id stock.UserID) (*stock.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, stock.ErrUserNotFound
	}
	return &u, nil
}

func (s *state) updateDoseTimes(id stock.UserID, times stock.DoseTimes) error {
	u, ok := s.users[id]
	if !ok {
		return stock.ErrUserNotFound
	}
	u.DoseTimes = times
	s.users[id] = u
	return nil
}

func (s *state) createMedication(med *stock.Medication) error {
	if _, ok := s.users[med.UserID]; !ok {
		return stock.ErrUserNotFound
	}
	if med.Version == 0 {
		med.Version = 1
	}
	s.medications[med.ID] = *med
	return nil
}

func (s *state) getMedication(userID stock.UserID, id stock.MedicationID) (*stock.Medication, error) {
	med, ok := s.medications[id]
	if !ok || med.UserID != userID {
		return nil, stock.ErrMedicationNotFound
	}
	return &med, nil
}

func (s *state) listMedications(userID stock.UserID) []stock.Medication {
	var out []stock.Medication
	for _, med := range s.medications {
		if med.UserID == userID {
			out = append(out, med)
		}
	}
	sortMedications(out)
	return out
}

func (s *state) updateMedication(med *stock.Medication) error {
	current, ok := s.medications[med.ID]
	if !ok || current.UserID != med.UserID {
		return stock.ErrMedicationNotFound
	}
	if current.Version != med.Version {
		return stock.ErrConcurrentModification
	}
	med.Version++
	s.medications[med.ID] = *med
	return nil
}

func (s *state) deleteMedication(userID stock.UserID, id stock.MedicationID) error {
	med, ok := s.medications[id]
	if !ok || med.UserID != userID {
		return stock.ErrMedicationNotFound
	}
	delete(s.medications, id)

	kept := s.history[:0]
	for _, e := range s.history {
		if e.MedicationID != id {
			kept = append(kept, e)
		}
	}
	s.history = kept
	for k := range s.occurrences {
		if k.MedicationID == id {
			delete(s.occurrences, k)
		}
	}
	return nil
}

func (s *state) listCandidates() []stock.Candidate {
	last := make(map[stock.MedicationID]map[stock.Action]string)
	for k := range s.occurrences {
		byAction := last[k.MedicationID]
		if byAction == nil {
			byAction = make(map[stock.Action]string)
			last[k.MedicationID] = byAction
		}
		if k.Day > byAction[k.Action] {
			byAction[k.Action] = k.Day
		}
	}

	meds := make([]stock.Medication, 0, len(s.medications))
	for _, med := range s.medications {
		meds = append(meds, med)
	}
	sortMedications(meds)

	out := make([]stock.Candidate, 0, len(meds))
	for _, med := range meds {
		u, ok := s.users[med.UserID]
		if !ok {
			continue
		}
		out = append(out, stock.Candidate{Medication: med, User: u, LastDeductions: last[med.ID]})
	}
	return out
}

func (s *state) listNegativeStock() []stock.Medication {
	var out []stock.Medication
	for _, med := range s.medications {
		if med.CurrentStock.IsNegative() {
			out = append(out, med)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CurrentStock.LessThan(out[j].CurrentStock)
	})
	return out
}

func (s *state) updateStock(u stock.StockUpdate) error {
	med, ok := s.medications[u.MedicationID]
	if !ok {
		return stock.ErrMedicationNotFound
	}
	if med.Version != u.ExpectedVersion {
		return stock.ErrConcurrentModification
	}
	med.CurrentStock = u.Stock
	if !u.KeepMeasuredAt {
		med.LastStockMeasuredAt = stock.NewTimestamp(u.MeasuredAt)
	}
	if u.NextDueAt != nil {
		med.NextDueAt = stock.NewTimestamp(*u.NextDueAt)
	}
	med.UpdatedAt = u.MeasuredAt
	med.Version++
	s.medications[med.ID] = med
	return nil
}

func (s *state) appendHistory(e stock.HistoryEntry) error {
	if _, ok := s.medications[e.MedicationID]; !ok {
		return stock.ErrMedicationNotFound
	}
	if e.OccurrenceDay != "" {
		k := occurrence{MedicationID: e.MedicationID, Action: e.Action, Day: e.OccurrenceDay}
		if s.occurrences[k] {
			return stock.ErrDuplicateDeduction
		}
		s.occurrences[k] = true
	}
	s.history = append(s.history, e)
	return nil
}

func (s *state) listHistory(medID stock.MedicationID, userID stock.UserID, limit int) []stock.HistoryEntry {
	var out []stock.HistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		e := s.history[i]
		if e.MedicationID != medID || e.UserID != userID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortMedications(meds []stock.Medication) {
	sort.Slice(meds, func(i, j int) bool {
		if !meds[i].CreatedAt.Equal(meds[j].CreatedAt) {
			return meds[i].CreatedAt.Before(meds[j].CreatedAt)
		}
		return meds[i].ID < meds[j].ID
	})
}

// Compile-time interface check.
var _ stock.TxStore = (*Memory)(nil)
