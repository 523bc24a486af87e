package roles

// Role is a room-level permission tier. The four tiers form a total order:
// viewer < writer < admin < owner. An empty Role means "no role".
type Role string

const (
	Viewer Role = "viewer"
	Writer Role = "writer"
	Admin  Role = "admin"
	Owner  Role = "owner"
)

var ranks = map[Role]int{
	Viewer: 1,
	Writer: 2,
	Admin:  3,
	Owner:  4,
}

// Valid reports whether r is one of the four known tiers.
func Valid(r Role) bool {
	_, ok := ranks[r]
	return ok
}

// Compare returns the rank difference between a and b. Unknown or empty
// roles rank as zero, below every valid tier.
func Compare(a, b Role) int {
	return ranks[a] - ranks[b]
}

// AtLeast reports whether role is a known tier ranking at or above required.
func AtLeast(role, required Role) bool {
	r, ok := ranks[role]
	if !ok {
		return false
	}
	return r >= ranks[required]
}

func CanViewMessages(role Role) bool   { return AtLeast(role, Viewer) }
func CanSendMessages(role Role) bool   { return AtLeast(role, Writer) }
func CanDeleteMessages(role Role) bool { return AtLeast(role, Writer) }
func CanEditPrompt(role Role) bool     { return AtLeast(role, Admin) }
func CanRenameRoom(role Role) bool     { return AtLeast(role, Admin) }
func CanManageRoles(role Role) bool    { return AtLeast(role, Admin) }
func CanDeleteRoom(role Role) bool     { return AtLeast(role, Owner) }

// CanAssignRole reports whether a holder of assigner may grant target.
// Owners may grant any tier; admins may grant anything except owner.
func CanAssignRole(assigner, target Role) bool {
	if !Valid(target) {
		return false
	}
	switch assigner {
	case Owner:
		return true
	case Admin:
		return target != Owner
	default:
		return false
	}
}

// ResolveRole picks the effective role for a member: an explicit role row
// always wins, otherwise the room's creator is treated as owner.
func ResolveRole(explicit Role, isCreator bool) Role {
	if Valid(explicit) {
		return explicit
	}
	if isCreator {
		return Owner
	}
	return ""
}
