package mcp

import "sync"

// WatchRegistry maps diagram IDs to the MCP sessions watching them.
// Populated when a client calls ucd.get with watch=true.
type WatchRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // diagramID → sessionIDs
}

// NewWatchRegistry creates a new empty WatchRegistry.
func NewWatchRegistry() *WatchRegistry {
	return &WatchRegistry{watchers: make(map[string]map[string]struct{})}
}

// Watch registers sessionID as a watcher of diagramID. Watching twice is a no-op.
func (r *WatchRegistry) Watch(diagramID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[diagramID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[diagramID] = set
	}
	set[sessionID] = struct{}{}
}

// SessionsFor returns the sessions watching diagramID.
func (r *WatchRegistry) SessionsFor(diagramID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.watchers[diagramID]
	out := make([]string, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	return out
}

// Forget drops every watcher of diagramID, e.g. after it was deleted.
func (r *WatchRegistry) Forget(diagramID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watchers, diagramID)
}

// Remove deletes all watches held by the given session ID.
// Called when a session disconnects.
func (r *WatchRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for did, set := range r.watchers {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.watchers, did)
		}
	}
}
