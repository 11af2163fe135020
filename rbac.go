package storeguard

// Permission names a single capability the storefront checks before serving
// a protected operation.
type Permission string

const (
	PermBrowseCatalog  Permission = "catalog:browse"
	PermManageCatalog  Permission = "catalog:manage"
	PermManageOrders   Permission = "orders:manage"
	PermManageAccounts Permission = "accounts:manage"
	PermReadAuditLog   Permission = "audit:read"
)

// DefaultPermissions maps a role to its permission set. The set is computed
// on read; it is never persisted on the account record, so changing this
// function changes effective permissions everywhere at once.
func DefaultPermissions(role Role) []Permission {
	switch role {
	case RoleAdmin:
		return []Permission{
			PermBrowseCatalog,
			PermManageCatalog,
			PermManageOrders,
			PermManageAccounts,
			PermReadAuditLog,
		}
	case RoleStaff:
		return []Permission{
			PermBrowseCatalog,
			PermManageCatalog,
			PermManageOrders,
		}
	case RoleCustomer:
		return []Permission{PermBrowseCatalog}
	default:
		return nil
	}
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range DefaultPermissions(role) {
		if p == perm {
			return true
		}
	}
	return false
}
