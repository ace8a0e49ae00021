// Package memory is in-memory store for tests and demo runs.
package memory

import (
	"sync"

	"github.com/AlexTransit/kiosk/internal/store"
)

type Memory struct {
	mu      sync.RWMutex
	params  map[paramKey]string
	payment map[int64][]store.Note
	change  map[string][]store.Note

	// when set, writes fail with this error, used to test persistence failures
	FailWrites error
}

type paramKey struct{ device, key string }

var _ store.Store = &Memory{}

func New() *Memory {
	return &Memory{
		params:  make(map[paramKey]string),
		payment: make(map[int64][]store.Note),
		change:  make(map[string][]store.Note),
	}
}

func (m *Memory) GetDeviceParam(device, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.params[paramKey{device, key}]
	return v, ok, nil
}

func (m *Memory) SetDeviceParam(device, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.params[paramKey{device, key}] = value
	return nil
}

func (m *Memory) AddPaymentNote(paymentID int64, notes []store.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.payment[paymentID] = append(m.payment[paymentID], notes...)
	return nil
}

func (m *Memory) AddChangeNote(ref string, notes []store.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.change[ref] = append(m.change[ref], notes...)
	return nil
}

func (m *Memory) PaymentNotes(paymentID int64) ([]store.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Note(nil), m.payment[paymentID]...), nil
}

func (m *Memory) ChangeNotes(ref string) ([]store.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Note(nil), m.change[ref]...), nil
}

func (m *Memory) Close() error { return nil }
