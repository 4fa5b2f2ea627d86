package testsupport

import (
	"sync"

	"github.com/Qaquka/aatm-qaquka/internal/settings"
)

// StaticSettings is a settings.Source returning a fixed value.
type StaticSettings struct {
	Value settings.Settings
}

func (s StaticSettings) Get() (settings.Settings, error) { return s.Value, nil }

// MutableSettings is a settings.Source tests can change between calls.
type MutableSettings struct {
	mu    sync.Mutex
	value settings.Settings
}

func NewMutableSettings(v settings.Settings) *MutableSettings {
	return &MutableSettings{value: v}
}

func (m *MutableSettings) Get() (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *MutableSettings) Set(fn func(*settings.Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.value)
}
