package auth

// RoleAdmin is carried by every staff token. Other roles are rejected by
// RequireRole on the staff routes.
const RoleAdmin = "admin"

// StaffRoles returns the roles allowed on the staff API.
func StaffRoles() []string {
	return []string{RoleAdmin}
}
