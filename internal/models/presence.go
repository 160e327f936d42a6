package models

// PresenceEntry describes one currently reachable pharmacist. An entry
// exists while the pharmacist's websocket connection is open; there is
// no "maybe online" state.
type PresenceEntry struct {
	PharmacistID int    `json:"pharmacist_id"`
	DisplayName  string `json:"display_name"`
	AvatarRef    string `json:"avatar_ref,omitempty"`
}
