package vacation

// =============================================================================
// PERMISSION TABLE - Role to operation capabilities
// =============================================================================

// Operation names a lifecycle operation for permission checks.
type Operation string

const (
	OpCreate  Operation = "create"
	OpApprove Operation = "approve"
	OpReject  Operation = "reject"
	OpCancel  Operation = "cancel"
)

// PermissionTable maps roles to the operations they may perform. A single
// explicit table in front of the lifecycle replaces per-transition role
// conditionals. Ownership rules (self-approval ban, cancel-own-only) are
// enforced separately by the lifecycle; the table only answers "may this
// role ever do this?".
type PermissionTable map[Role]map[Operation]bool

// Allows reports whether role may perform op.
func (p PermissionTable) Allows(role Role, op Operation) bool {
	ops, ok := p[role]
	if !ok {
		return false
	}
	return ops[op]
}

// DefaultPermissions returns the standard capability table:
// every role submits and cancels its own requests; only HR and
// administrators approve or reject.
func DefaultPermissions() PermissionTable {
	return PermissionTable{
		RoleEmployee: {
			OpCreate: true,
			OpCancel: true,
		},
		RoleManager: {
			OpCreate: true,
			OpCancel: true,
		},
		RoleHR: {
			OpCreate:  true,
			OpCancel:  true,
			OpApprove: true,
			OpReject:  true,
		},
		RoleAdministrator: {
			OpCreate:  true,
			OpCancel:  true,
			OpApprove: true,
			OpReject:  true,
		},
	}
}
