package bot

import (
	"context"

	"github.com/servicefix/fixbot/internal/storage"
)

// resolveRole decides who is talking. The configured admin wins, an approved
// technician ranks next, everyone else is a customer. Pending or rejected
// technicians act as customers until approval.
func resolveRole(ctx context.Context, store storage.Store, adminID, userID int64) storage.Role {
	if userID == adminID {
		return storage.RoleAdmin
	}
	tech, err := store.Technician(ctx, userID)
	if err == nil && tech.Status == storage.TechApproved {
		return storage.RoleTechnician
	}
	return storage.RoleCustomer
}
