package core

import "strings"

// DefaultDisplayName is shown for joiners that did not pick a name.
const DefaultDisplayName = "Anonymous"

// Identity is the caller as seen by the core layer. ID is an opaque token
// subject; Name is only used as the default display name.
type Identity struct {
	ID   string
	Name string
}

// Joiner describes who is joining a room.
type Joiner struct {
	UserID      string
	DisplayName string
}

// JoinerFor builds a Joiner for id, falling back to the identity name and then
// to DefaultDisplayName.
func JoinerFor(id Identity, displayName string) Joiner {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = strings.TrimSpace(id.Name)
	}
	if name == "" {
		name = DefaultDisplayName
	}
	return Joiner{UserID: id.ID, DisplayName: name}
}
