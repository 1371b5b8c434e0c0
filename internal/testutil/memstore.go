// Package testutil holds an in-memory transactional store used by evaluator
// and ingestion tests in place of Postgres.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

type state struct {
	products     map[string]storage.Product
	rules        map[string]storage.Rule
	measurements map[string]storage.Measurement
	events       map[string]storage.AlertEvent
	eventKeys    map[string]string
}

func (s state) clone() state {
	out := state{
		products:     make(map[string]storage.Product, len(s.products)),
		rules:        make(map[string]storage.Rule, len(s.rules)),
		measurements: make(map[string]storage.Measurement, len(s.measurements)),
		events:       make(map[string]storage.AlertEvent, len(s.events)),
		eventKeys:    make(map[string]string, len(s.eventKeys)),
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.rules {
		out.rules[k] = v
	}
	for k, v := range s.measurements {
		out.measurements[k] = v
	}
	for k, v := range s.events {
		out.events[k] = v
	}
	for k, v := range s.eventKeys {
		out.eventKeys[k] = v
	}
	return out
}

// MemStore serializes transactions behind one mutex. Each transaction works
// on a copy of the committed state that replaces it only on success.
type MemStore struct {
	mu    sync.Mutex
	state state

	// FailCreateEvent, when set, is returned by every CreateEventIfAbsent.
	FailCreateEvent error
	// FailRules, when set, is returned by every RulesForProduct.
	FailRules error
}

func NewMemStore() *MemStore {
	return &MemStore{state: state{
		products:     map[string]storage.Product{},
		rules:        map[string]storage.Rule{},
		measurements: map[string]storage.Measurement{},
		events:       map[string]storage.AlertEvent{},
		eventKeys:    map[string]string{},
	}}
}

func (s *MemStore) Do(ctx context.Context, fn func(*MemTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &MemTx{store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func lifecycle() storage.Lifecycle {
	now := time.Now().UTC()
	return storage.Lifecycle{Status: storage.StatusActive, CreatedAt: now, UpdatedAt: now}
}

func (s *MemStore) AddProduct(name string) storage.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := storage.Product{ID: uuid.NewString(), Name: name, Lifecycle: lifecycle()}
	s.state.products[p.ID] = p
	return p
}

func (s *MemStore) SoftDeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.state.products[id]
	now := time.Now().UTC()
	p.Status, p.DeletedAt = storage.StatusDeleted, &now
	s.state.products[id] = p
}

func (s *MemStore) AddRule(r storage.Rule) storage.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Lifecycle = lifecycle()
	}
	s.state.rules[r.ID] = r
	return r
}

func (s *MemStore) SoftDeleteRule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.state.rules[id]
	now := time.Now().UTC()
	r.Status, r.DeletedAt = storage.StatusDeleted, &now
	s.state.rules[id] = r
}

// AddMeasurement stores m outside of any evaluation.
func (s *MemStore) AddMeasurement(in storage.NewMeasurement) storage.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := newMeasurement(in)
	s.state.measurements[m.ID] = m
	return m
}

func (s *MemStore) Measurements() []storage.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Measurement, 0, len(s.state.measurements))
	for _, m := range s.state.measurements {
		out = append(out, m)
	}
	return out
}

func (s *MemStore) Events() []storage.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.AlertEvent, 0, len(s.state.events))
	for _, e := range s.state.events {
		out = append(out, e)
	}
	return out
}

func newMeasurement(in storage.NewMeasurement) storage.Measurement {
	return storage.Measurement{
		ID:         uuid.NewString(),
		ProductID:  in.ProductID,
		Value:      in.Value,
		Unit:       in.Unit,
		MeasuredAt: in.MeasuredAt.UTC(),
		Lifecycle:  lifecycle(),
	}
}

// MemTx satisfies alerts.Store and the ingestion unit of work.
type MemTx struct {
	store *MemStore
	state state
}

func (t *MemTx) FindProduct(_ context.Context, id string) (storage.Product, error) {
	p, ok := t.state.products[id]
	if !ok {
		return storage.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func (t *MemTx) RulesForProduct(_ context.Context, productID string) ([]storage.Rule, error) {
	if t.store.FailRules != nil {
		return nil, t.store.FailRules
	}
	out := []storage.Rule{}
	for _, r := range t.state.rules {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *MemTx) CreateEventIfAbsent(_ context.Context, ruleID, measurementID string) (storage.AlertEvent, bool, error) {
	if t.store.FailCreateEvent != nil {
		return storage.AlertEvent{}, false, t.store.FailCreateEvent
	}
	key := ruleID + "|" + measurementID
	if id, ok := t.state.eventKeys[key]; ok {
		return t.state.events[id], false, nil
	}
	if _, ok := t.state.rules[ruleID]; !ok {
		return storage.AlertEvent{}, false, fmt.Errorf("rule %s: foreign key violation", ruleID)
	}
	if _, ok := t.state.measurements[measurementID]; !ok {
		return storage.AlertEvent{}, false, fmt.Errorf("measurement %s: foreign key violation", measurementID)
	}
	now := time.Now().UTC()
	evt := storage.AlertEvent{
		ID:            uuid.NewString(),
		RuleID:        ruleID,
		MeasurementID: measurementID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	t.state.events[evt.ID] = evt
	t.state.eventKeys[key] = evt.ID
	return evt, true, nil
}

func (t *MemTx) InsertMeasurement(_ context.Context, in storage.NewMeasurement) (storage.Measurement, error) {
	if err := storage.ValidateMeasurement(in); err != nil {
		return storage.Measurement{}, err
	}
	m := newMeasurement(in)
	t.state.measurements[m.ID] = m
	return m, nil
}

func (t *MemTx) GetMeasurement(_ context.Context, id string) (storage.Measurement, error) {
	m, ok := t.state.measurements[id]
	if !ok {
		return storage.Measurement{}, storage.ErrNotFound
	}
	return m, nil
}

func (t *MemTx) CopyMeasurements(ctx context.Context, batch []storage.NewMeasurement) (int64, error) {
	for i, in := range batch {
		if _, err := t.InsertMeasurement(ctx, in); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return int64(len(batch)), nil
}
