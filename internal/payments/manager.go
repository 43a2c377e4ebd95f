package payments

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrUnknownGateway = errors.New("gateway not registered")

type Manager struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewManager() *Manager {
	return &Manager{gateways: make(map[string]Gateway)}
}

func (m *Manager) Register(g Gateway) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateways[strings.ToUpper(g.Name())] = g
}

func (m *Manager) Get(name string) (Gateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gateways[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, name)
	}
	return g, nil
}
