package security

import (
	"fmt"
	"log/slog"

	"github.com/fintrack/fintrack/internal/domain"
)

// Role represents a user role
type Role string

const (
	RoleStaff Role = "staff"
	RoleUser  Role = "user"
)

// RoleFor maps the identity's staff flag onto a role
func RoleFor(isStaff bool) Role {
	if isStaff {
		return RoleStaff
	}
	return RoleUser
}

// Permission represents an action permission
type Permission string

const (
	PermManageOwnProfile Permission = "manage_own_profile"
	PermManageOwnTier    Permission = "manage_own_tier"
	PermUseConverter     Permission = "use_converter"
	PermManageClients    Permission = "manage_clients"
	PermManageTiers      Permission = "manage_tiers"
	PermViewStatistics   Permission = "view_statistics"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleStaff: {
		PermManageOwnProfile,
		PermManageOwnTier,
		PermUseConverter,
		PermManageClients,
		PermManageTiers,
		PermViewStatistics,
	},
	RoleUser: {
		PermManageOwnProfile,
		PermManageOwnTier,
		PermUseConverter,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidatePermission returns an error matching domain.ErrPermissionDenied when the role lacks permission
func (as *AuthorizationService) ValidatePermission(role Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s role cannot %s", domain.ErrPermissionDenied, role, permission)
	}
	return nil
}
