// Package permissions checks the permission lists the API gateway forwards
// with each request against what a pharmacy route requires.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "pharmacy.*")
//   - "resource.action" - Specific action (e.g., "pharmacy.read")
//   - "resource.subresource.action" - Nested permission (e.g., "pharmacy.pdmp.report")
package permissions

import (
	"encoding/json"
	"strings"
)

// Pharmacy permissions.
const (
	Read           = "pharmacy.read"
	Dispense       = "pharmacy.dispense"
	InventoryWrite = "pharmacy.inventory.write"
	PDMPRead       = "pharmacy.pdmp.read"
	PDMPReport     = "pharmacy.pdmp.report"
	All            = "pharmacy.*"
)

// Known lists the pharmacy permissions, for validation and role tooling.
var Known = []string{Read, Dispense, InventoryWrite, PDMPRead, PDMPReport, All, "*"}

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "pharmacy.*" matches "pharmacy.read", "pharmacy.pdmp.report", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission checks if the user has any of the required permissions.
func HasAnyPermission(userPerms []string, required []string) bool {
	for _, req := range required {
		if HasPermission(userPerms, req) {
			return true
		}
	}
	return false
}

// HasAllPermissions checks if the user has all of the required permissions.
func HasAllPermissions(userPerms []string, required []string) bool {
	for _, req := range required {
		if !HasPermission(userPerms, req) {
			return false
		}
	}
	return true
}

// Parse decodes the X-User-Permissions header, a JSON array of strings. A
// malformed header grants nothing.
func Parse(header string) []string {
	if header == "" {
		return nil
	}
	var perms []string
	if err := json.Unmarshal([]byte(header), &perms); err != nil {
		return nil
	}
	return perms
}

// IsValidPermission checks if a permission string is known or follows the
// resource.action pattern.
func IsValidPermission(perm string) bool {
	for _, p := range Known {
		if p == perm {
			return true
		}
	}
	parts := strings.Split(perm, ".")
	return len(parts) >= 2
}
