// Package permissions decides who may scan which event. Pure functions, no
// I/O; callers fetch the user document themselves.
package permissions

import "ms-checkin/internal/models"

// CanScan reports whether user may redeem tickets for eventID.
//
// Rules, in order: inactive users are denied everything; superadmin and
// wildcard permissions allow any event; everyone else needs the event in
// their assignment (new-schema id list or legacy per-event zone map).
func CanScan(user *models.User, eventID string) bool {
	if user == nil {
		return false
	}
	if user.Status != models.UserStatusActive {
		return false
	}
	if user.Role == models.RoleSuperadmin {
		return true
	}
	if user.Wildcard {
		return true
	}
	for _, id := range user.AssignedEventIDs {
		if id == eventID {
			return true
		}
	}
	_, assigned := user.EventZones[eventID]
	return assigned
}

// IsAdmin reports whether role gets the unrestricted event list instead of
// the assignment-scoped one.
func IsAdmin(role string) bool {
	return role == models.RoleSuperadmin || role == "admin"
}
