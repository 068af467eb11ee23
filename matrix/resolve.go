package matrix

// ResolveRoom resolves a symbolic room reference (room ID, canonical
// alias, display name, or alternate alias) against a set of known
// rooms. Priority: exact room ID, then canonical alias, then display
// name, then alternate alias membership. First match wins. Returns nil
// when nothing matches; the room may be unlisted or not yet joined.
func ResolveRoom(rooms map[string]*Room, ref string) *Room {
	for _, room := range rooms {
		if room.ID == ref {
			return room
		}
	}
	for _, room := range rooms {
		if room.CanonicalAlias != "" && room.CanonicalAlias == ref {
			return room
		}
	}
	for _, room := range rooms {
		if room.Name != "" && room.Name == ref {
			return room
		}
	}
	for _, room := range rooms {
		for _, alias := range room.AltAliases {
			if alias == ref {
				return room
			}
		}
	}
	return nil
}

// Rooms returns a snapshot of the rooms currently known to the client.
func (c *Client) Rooms() map[string]*Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make(map[string]*Room, len(c.rooms))
	for id, room := range c.rooms {
		rooms[id] = room
	}
	return rooms
}

// FindRoom resolves a symbolic reference against the client's room
// registry. Returns nil when the reference does not match any known
// room.
func (c *Client) FindRoom(ref string) *Room {
	return ResolveRoom(c.Rooms(), ref)
}
