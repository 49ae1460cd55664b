package collab

import (
	"slices"
	"sync"
)

// PresenceManager tracks the cursor, active side and selection of every
// user in a room.
type PresenceManager struct {
	mu        sync.RWMutex
	presences map[string]*PresencePayload // userID -> presence
}

func NewPresenceManager() *PresenceManager {
	return &PresenceManager{
		presences: make(map[string]*PresencePayload),
	}
}

// Update stores a copy of p for userID.
func (pm *PresenceManager) Update(userID string, p *PresencePayload) {
	stored := *p
	if p.Cursor != nil {
		cursor := *p.Cursor
		stored.Cursor = &cursor
	}
	stored.Selection = slices.Clone(p.Selection)

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.presences[userID] = &stored
}

func (pm *PresenceManager) Remove(userID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.presences, userID)
}

// ClearSelection drops elementID from every user's selection, after the
// element was deleted.
func (pm *PresenceManager) ClearSelection(elementID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.presences {
		p.Selection = slices.DeleteFunc(p.Selection, func(id string) bool { return id == elementID })
	}
}

func (pm *PresenceManager) GetAll() map[string]*PresencePayload {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]*PresencePayload, len(pm.presences))
	for userID, p := range pm.presences {
		c := *p
		c.Selection = slices.Clone(p.Selection)
		result[userID] = &c
	}
	return result
}

// StateMessage returns a presence.state message, or nil when the room has
// no presence yet.
func (pm *PresenceManager) StateMessage() *Message {
	all := pm.GetAll()
	if len(all) == 0 {
		return nil
	}
	return newMessage(TypePresenceState, PresenceStatePayload{Presences: all})
}
