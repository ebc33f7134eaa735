package share

import "fmt"

// Member is one room participant as supplied by the chat layer.
type Member struct {
	ID          string
	Username    string
	DisplayName string
}

// Room is a read-only view of a chat room and its members.
type Room struct {
	ID      string
	Name    string
	Members []Member
}

// Directory resolves a participant id to a display name. Used only as a
// fallback when a signaling payload omits one.
type Directory interface {
	DisplayName(id string) (string, bool)
}

// DisplayName implements Directory over the room's member list.
func (r Room) DisplayName(id string) (string, bool) {
	for _, m := range r.Members {
		if m.ID != id {
			continue
		}
		if m.DisplayName != "" {
			return m.DisplayName, true
		}
		if m.Username != "" {
			return m.Username, true
		}
	}
	return "", false
}

// resolveDisplayName applies the fallback chain: explicit name from the
// signaling payload, then directory lookup, then a synthesized placeholder.
func resolveDisplayName(explicit string, dir Directory, id string) string {
	if explicit != "" {
		return explicit
	}
	if dir != nil {
		if name, ok := dir.DisplayName(id); ok {
			return name
		}
	}
	return fmt.Sprintf("User %s", id)
}
