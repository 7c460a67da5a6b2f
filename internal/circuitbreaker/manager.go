package circuitbreaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager holds one breaker per supplier, created lazily with shared
// defaults.
type Manager struct {
	breakers map[string]*Breaker
	defaults Config
	mutex    sync.RWMutex
	logger   *logrus.Logger
}

func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		defaults: Config{
			MaxFailures: 5,
			CoolDown:    60 * time.Second,
			MaxProbes:   1,
		},
		logger: logger,
	}
}

func (m *Manager) GetOrCreate(name string) *Breaker {
	m.mutex.RLock()
	breaker, exists := m.breakers[name]
	m.mutex.RUnlock()
	if exists {
		return breaker
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if breaker, exists := m.breakers[name]; exists {
		return breaker
	}

	config := m.defaults
	config.Name = name
	breaker = New(config, m.logger)
	m.breakers[name] = breaker

	m.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"max_failures":    config.MaxFailures,
		"cooldown":        config.CoolDown.String(),
	}).Info("Circuit breaker created")

	return breaker
}

func (m *Manager) AllMetrics() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	metrics := make(map[string]interface{}, len(m.breakers))
	for name, breaker := range m.breakers {
		metrics[name] = breaker.Metrics()
	}
	return metrics
}
