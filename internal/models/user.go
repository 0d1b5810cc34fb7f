package models

import "encoding/json"

// Roles as stored in the users collection. The set is open ended; only
// superadmin carries special meaning for permission checks.
const (
	RoleSuperadmin = "superadmin"
	RolePuntoVenta = "punto_venta"
	RolePromotor   = "promotor"
	RoleCliente    = "cliente"
)

const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User is a staff account. AssignedEventIDs lists the events the user may
// scan; Wildcard grants all of them. EventZones is the legacy per-event zone
// map, kept only because some documents still carry assignments there.
type User struct {
	ID               string
	Email            string
	Role             string
	Status           string
	AssignedEventIDs []string
	Wildcard         bool
	EventZones       map[string][]string
}

// userDoc is the wire shape of a user document, including the legacy field
// names still present in older documents. All legacy fallbacks happen here so
// the rest of the service only ever sees the new schema.
type userDoc struct {
	ID               string              `json:"id,omitempty"`
	Email            string              `json:"email,omitempty"`
	Role             string              `json:"role,omitempty"`
	Status           string              `json:"status,omitempty"`
	AssignedEventIDs []string            `json:"assignedEventId,omitempty"`
	Permissions      json.RawMessage     `json:"permissions,omitempty"`
	Correo           string              `json:"correo,omitempty"`
	Rol              string              `json:"rol,omitempty"`
	EventosAsignados map[string][]string `json:"eventosasignados,omitempty"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	var doc userDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	u.ID = doc.ID
	u.Email = firstNonEmpty(doc.Email, doc.Correo)
	u.Role = firstNonEmpty(doc.Role, doc.Rol)
	// Documents written before status existed are treated as active.
	u.Status = firstNonEmpty(doc.Status, UserStatusActive)
	u.AssignedEventIDs = doc.AssignedEventIDs
	u.Wildcard = false
	u.EventZones = nil

	// permissions is either a wildcard array like ["*"] or a map of
	// eventID -> allowed zones.
	if len(doc.Permissions) > 0 {
		var asList []string
		if err := json.Unmarshal(doc.Permissions, &asList); err == nil {
			for _, p := range asList {
				if p == "*" {
					u.Wildcard = true
				}
			}
		} else {
			var asMap map[string][]string
			if err := json.Unmarshal(doc.Permissions, &asMap); err == nil {
				u.EventZones = asMap
			}
		}
	}

	// Legacy per-event assignment map counts as assignment too.
	if len(doc.EventosAsignados) > 0 {
		if u.EventZones == nil {
			u.EventZones = make(map[string][]string, len(doc.EventosAsignados))
		}
		for eventID, zones := range doc.EventosAsignados {
			if _, ok := u.EventZones[eventID]; !ok {
				u.EventZones[eventID] = zones
			}
		}
	}

	return nil
}

func (u User) MarshalJSON() ([]byte, error) {
	doc := userDoc{
		ID:               u.ID,
		Email:            u.Email,
		Role:             u.Role,
		Status:           u.Status,
		AssignedEventIDs: u.AssignedEventIDs,
	}
	if u.Wildcard {
		doc.Permissions, _ = json.Marshal([]string{"*"})
	} else if u.EventZones != nil {
		doc.Permissions, _ = json.Marshal(u.EventZones)
	}
	return json.Marshal(doc)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
