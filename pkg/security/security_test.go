package security_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spindexlabs/spindex/pkg/security"
)

func testManager() *security.Manager {
	return security.NewManager(map[string]string{
		"Contoso Owners":   security.GroupCritical,
		"Contoso Members":  security.GroupLow,
		"Contoso Visitors": security.GroupMedium,
	}, security.GroupMedium)
}

func TestResolveGroupPicksMostRestrictive(t *testing.T) {
	m := testManager()

	group := m.ResolveGroup([]string{"Contoso Members", "Contoso Owners"})
	assert.Equal(t, security.GroupCritical, group)
}

func TestResolveGroupSingleEntity(t *testing.T) {
	m := testManager()

	assert.Equal(t, security.GroupLow, m.ResolveGroup([]string{"Contoso Members"}))
}

func TestResolveGroupUnknownEntityFallsBack(t *testing.T) {
	m := testManager()

	group := m.ResolveGroup([]string{"user-id-9f2c"})
	assert.Equal(t, security.GroupMedium, group)
}

func TestResolveGroupNoEntities(t *testing.T) {
	m := testManager()

	assert.Equal(t, security.GroupMedium, m.ResolveGroup(nil))
}

func TestSetGroupAssociation(t *testing.T) {
	m := testManager()
	m.SetGroupAssociation("user-id-9f2c", security.GroupCritical)

	group := m.ResolveGroup([]string{"user-id-9f2c", "Contoso Visitors"})
	assert.Equal(t, security.GroupCritical, group)
}

func TestNewManagerDefaultGroup(t *testing.T) {
	m := security.NewManager(nil, "")
	assert.Equal(t, security.GroupMedium, m.DefaultGroup())
}
