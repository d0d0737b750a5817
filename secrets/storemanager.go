package secrets

import "sync"

type Manager struct {
	stores map[string]Store
	once   sync.Once
}

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// GetManager returns the process-wide Manager singleton. Stores registered
// by one caller are visible to every other caller of GetManager, matching
// messaging.GetManager's singleton-facade pattern.
func GetManager() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = &Manager{stores: make(map[string]Store)}
	})
	return defaultManager
}

func (m *Manager) Register(store Store) {
	if m.stores == nil {
		m.once.Do(func() {
			m.stores = make(map[string]Store)
		})
	}
	m.stores[store.Provider()] = store
}

func (m *Manager) Store(name string) (store Store) {
	if m.stores != nil {
		store = m.stores[name]
	}
	return
}
