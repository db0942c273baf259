package auth

// Role is a caller's organisational role.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := grants[r]
	return ok
}

// Capability is an action guarded at the API edge.
type Capability string

const (
	CapScan           Capability = "attendance:scan"
	CapSessionRead    Capability = "session:read"
	CapSessionPresent Capability = "session:present"
	CapSessionManage  Capability = "session:manage"
	CapFlagsManage    Capability = "flags:manage"
)

var grants = map[Role][]Capability{
	RoleStudent: {CapScan, CapSessionRead},
	RoleTeacher: {CapSessionRead, CapSessionPresent},
	RoleAdmin:   {CapSessionRead, CapSessionPresent, CapSessionManage, CapFlagsManage},
}

// Can reports whether role grants capability.
func Can(role Role, capability Capability) bool {
	for _, c := range grants[role] {
		if c == capability {
			return true
		}
	}
	return false
}
