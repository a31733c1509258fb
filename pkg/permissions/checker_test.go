package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		perms    []string
		required string
		want     bool
	}{
		{"nothing required", nil, "", true},
		{"exact", []string{Read}, Read, true},
		{"full access", []string{"*"}, PDMPReport, true},
		{"resource wildcard", []string{All}, PDMPReport, true},
		{"nested wildcard", []string{"pharmacy.pdmp.*"}, PDMPReport, true},
		{"nested wildcard stays nested", []string{"pharmacy.pdmp.*"}, Dispense, false},
		{"prefix is not a match", []string{"pharmacy.read"}, "pharmacy.readonly", false},
		{"missing", []string{Read}, Dispense, false},
		{"none", nil, Read, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.perms, tt.required))
		})
	}
}

func TestAnyAll(t *testing.T) {
	perms := []string{Read, PDMPRead}
	assert.True(t, HasAnyPermission(perms, []string{Dispense, PDMPRead}))
	assert.False(t, HasAnyPermission(perms, []string{Dispense, InventoryWrite}))
	assert.True(t, HasAllPermissions(perms, []string{Read, PDMPRead}))
	assert.False(t, HasAllPermissions(perms, []string{Read, Dispense}))
}

func TestParse(t *testing.T) {
	assert.Equal(t, []string{Read, Dispense}, Parse(`["pharmacy.read","pharmacy.dispense"]`))
	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("pharmacy.read"))
}

func TestIsValidPermission(t *testing.T) {
	assert.True(t, IsValidPermission("*"))
	assert.True(t, IsValidPermission(PDMPReport))
	assert.True(t, IsValidPermission("pharmacy.custom"))
	assert.False(t, IsValidPermission("pharmacy"))
}
