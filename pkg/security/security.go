// Package security maps the people and site groups that can read a file
// to the single coarse access label stored on its index documents.
package security

import "sync"

const (
	GroupCritical = "Group_critical"
	GroupMedium   = "Group_medium"
	GroupLow      = "Group_low"
)

// groupPriority orders labels from most to least restrictive. When a file
// is readable by several groups, the most restrictive one wins.
var groupPriority = []string{GroupCritical, GroupMedium, GroupLow}

// Manager resolves read-access entities to an access label.
type Manager struct {
	mu           sync.RWMutex
	associations map[string]string
	defaultGroup string
}

func NewManager(associations map[string]string, defaultGroup string) *Manager {
	if defaultGroup == "" {
		defaultGroup = GroupMedium
	}

	m := &Manager{
		associations: make(map[string]string, len(associations)),
		defaultGroup: defaultGroup,
	}
	for entity, group := range associations {
		m.associations[entity] = group
	}
	return m
}

// SetGroupAssociation binds an entity (a user id or a site group display
// name) to an access label.
func (m *Manager) SetGroupAssociation(entity, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.associations[entity] = group
}

// ResolveGroup returns the most restrictive label any of the entities maps
// to. Entities without an association fall back to the default label.
func (m *Manager) ResolveGroup(entities []string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for _, entity := range entities {
		group, ok := m.associations[entity]
		if !ok {
			group = m.defaultGroup
		}
		seen[group] = true
	}

	for _, group := range groupPriority {
		if seen[group] {
			return group
		}
	}
	return m.defaultGroup
}

// DefaultGroup is the label applied when a file exposes no readable
// entities at all.
func (m *Manager) DefaultGroup() string {
	return m.defaultGroup
}
