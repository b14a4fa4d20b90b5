package authcore

// Capability is a closed set of actions a role may be granted. Sign-in
// surfaces check roles through the single [Role.Can] predicate instead of
// ad-hoc allowed-role arrays scattered across login paths.
type Capability uint8

const (
	// CapPortalSignIn allows authentication on the employee portal.
	CapPortalSignIn Capability = iota
	// CapConsoleSignIn allows authentication on the administrative console.
	CapConsoleSignIn
)

// roleCapabilities maps each role variant to its allow-list exactly once.
var roleCapabilities = map[Role][]Capability{
	RoleAdmin:    {CapPortalSignIn, CapConsoleSignIn},
	RoleHR:       {CapPortalSignIn, CapConsoleSignIn},
	RoleManager:  {CapPortalSignIn},
	RoleEmployee: {CapPortalSignIn},
}

// Can reports whether the role holds the capability. Unknown roles hold
// nothing.
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}
