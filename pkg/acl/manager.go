package acl

import "sync"

// Manager performs the management and checking operations over a Store.
// Mutations load, modify and re-save a whole resource under one lock,
// so concurrent operations on the same resource serialize.
type Manager struct {
	store Store
	mu    sync.Mutex
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// AddResource creates a resource, optionally pre-populated with empty
// actions for the given names. Duplicate resources are refused.
func (m *Manager) AddResource(resourceID uint32, actionNames ...[]byte) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found, err := m.store.Load(resourceID); err != nil || found {
		return StatusNotFound
	}

	res := &Resource{ResourceID: resourceID}
	for _, name := range actionNames {
		res.Actions = append(res.Actions, Action{Name: append([]byte(nil), name...)})
	}
	if err := m.store.Save(res); err != nil {
		return StatusRejected
	}
	return StatusOK
}

// RemoveResource deletes a resource and its ACL.
func (m *Manager) RemoveResource(resourceID uint32) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found, err := m.store.Load(resourceID); err != nil || !found {
		return StatusNotFound
	}
	if err := m.store.Delete(resourceID); err != nil {
		return StatusRejected
	}
	return StatusOK
}

// AddAction appends a new action to the resource. Duplicate action
// names are refused.
func (m *Manager) AddAction(resourceID uint32, name []byte) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, found, err := m.store.Load(resourceID)
	if err != nil || !found {
		return StatusNotFound
	}
	if res.actionIndex(name) >= 0 {
		return StatusNotFound
	}

	res.Actions = append(res.Actions, Action{Name: append([]byte(nil), name...)})
	if err := m.store.Save(res); err != nil {
		return StatusRejected
	}
	return StatusOK
}

// RemoveAction removes the named action and its allow list.
func (m *Manager) RemoveAction(resourceID uint32, name []byte) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, found, err := m.store.Load(resourceID)
	if err != nil || !found {
		return StatusNotFound
	}
	i := res.actionIndex(name)
	if i < 0 {
		return StatusNotFound
	}

	res.Actions = append(res.Actions[:i], res.Actions[i+1:]...)
	if err := m.store.Save(res); err != nil {
		return StatusRejected
	}
	return StatusOK
}

// AddDeviceToAction grants the device the named action. A device
// already in the allow list is refused, keeping removal single-shot.
func (m *Manager) AddDeviceToAction(resourceID uint32, name []byte, deviceID uint32) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, found, err := m.store.Load(resourceID)
	if err != nil || !found {
		return StatusNotFound
	}
	i := res.actionIndex(name)
	if i < 0 {
		return StatusNotFound
	}
	if deviceListed(res.Actions[i].AllowedDevices, deviceID) {
		return StatusRejected
	}

	res.Actions[i].AllowedDevices = append(res.Actions[i].AllowedDevices, deviceID)
	if err := m.store.Save(res); err != nil {
		return StatusRejected
	}
	return StatusOK
}

// AddDeviceToAllActions grants the device every action of the resource,
// skipping actions that already list it.
func (m *Manager) AddDeviceToAllActions(resourceID uint32, deviceID uint32) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, found, err := m.store.Load(resourceID)
	if err != nil || !found {
		return StatusNotFound
	}

	for i := range res.Actions {
		if !deviceListed(res.Actions[i].AllowedDevices, deviceID) {
			res.Actions[i].AllowedDevices = append(res.Actions[i].AllowedDevices, deviceID)
		}
	}
	if err := m.store.Save(res); err != nil {
		return StatusRejected
	}
	return StatusOK
}

// RemoveDeviceFromAction revokes the device's grant for the named
// action. A device not in the allow list is reported as StatusRejected.
func (m *Manager) RemoveDeviceFromAction(resourceID uint32, name []byte, deviceID uint32) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, found, err := m.store.Load(resourceID)
	if err != nil || !found {
		return StatusNotFound
	}
	i := res.actionIndex(name)
	if i < 0 {
		return StatusNotFound
	}

	devices := res.Actions[i].AllowedDevices
	for j, d := range devices {
		if d == deviceID {
			res.Actions[i].AllowedDevices = append(devices[:j], devices[j+1:]...)
			if err := m.store.Save(res); err != nil {
				return StatusRejected
			}
			return StatusOK
		}
	}
	return StatusRejected
}

// RemoveDeviceFromAllActions revokes the device's grants across the
// whole resource.
func (m *Manager) RemoveDeviceFromAllActions(resourceID uint32, deviceID uint32) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, found, err := m.store.Load(resourceID)
	if err != nil || !found {
		return StatusNotFound
	}

	for i := range res.Actions {
		devices := res.Actions[i].AllowedDevices
		kept := devices[:0]
		for _, d := range devices {
			if d != deviceID {
				kept = append(kept, d)
			}
		}
		res.Actions[i].AllowedDevices = kept
	}
	if err := m.store.Save(res); err != nil {
		return StatusRejected
	}
	return StatusOK
}

// CheckAccess reports whether the device is currently allowed the named
// action on the resource. Missing resources and actions deny.
func (m *Manager) CheckAccess(resourceID uint32, name []byte, deviceID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, found, err := m.store.Load(resourceID)
	if err != nil || !found {
		return false
	}
	i := res.actionIndex(name)
	if i < 0 {
		return false
	}
	return deviceListed(res.Actions[i].AllowedDevices, deviceID)
}

func deviceListed(devices []uint32, deviceID uint32) bool {
	for _, d := range devices {
		if d == deviceID {
			return true
		}
	}
	return false
}
