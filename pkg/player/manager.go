package player

import (
	"sync"

	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/session"
)

// DeviceFactory creates the playback device of a guild.
type DeviceFactory func(guildID string) Device

// Manager pairs every guild session with its driver. Drivers are created on
// first use and live until Shutdown.
type Manager struct {
	registry  *session.Registry
	newDevice DeviceFactory
	deps      Deps

	mu      sync.Mutex
	drivers map[string]*Driver
}

// NewManager creates a manager over registry.
func NewManager(registry *session.Registry, newDevice DeviceFactory, deps Deps) *Manager {
	return &Manager{
		registry:  registry,
		newDevice: newDevice,
		deps:      deps,
		drivers:   make(map[string]*Driver),
	}
}

// Registry returns the session registry.
func (m *Manager) Registry() *session.Registry {
	return m.registry
}

// Driver returns the driver of a guild, creating it and its session if needed.
func (m *Manager) Driver(guildID string) *Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drivers[guildID]; ok {
		return d
	}
	d := NewDriver(m.registry.Get(guildID), m.newDevice(guildID), m.deps)
	m.drivers[guildID] = d
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordGauge("active_drivers", float64(len(m.drivers)), nil)
	}
	return d
}

// Lookup returns the driver of a guild without creating one.
func (m *Manager) Lookup(guildID string) (*Driver, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[guildID]
	return d, ok
}

// Enqueue adds items to a guild queue and kicks its driver.
func (m *Manager) Enqueue(guildID string, items ...*common.QueueItem) (int, bool) {
	return m.Driver(guildID).Enqueue(items...)
}

// Len returns the number of drivers.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drivers)
}

// Shutdown closes every driver.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	drivers := make([]*Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		drivers = append(drivers, d)
	}
	m.drivers = make(map[string]*Driver)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, d := range drivers {
		wg.Add(1)
		go func(d *Driver) {
			defer wg.Done()
			d.Close()
		}(d)
	}
	wg.Wait()
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordGauge("active_drivers", 0, nil)
	}
}
