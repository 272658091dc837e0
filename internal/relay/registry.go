package relay

import (
	"log/slog"
	"sync"
)

// Peer is a registered view connection.
type Peer interface {
	ID() string
	Close(reason string)
}

// Registry tracks open view connections per chat session. Connections with
// no active session are kept under the empty key.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]Peer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]map[string]Peer)}
}

// Register adds p under chatUUID. A different peer with the same id is
// closed and replaced.
func (r *Registry) Register(chatUUID string, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(chatUUID, p)
	slog.Info("View registered", "chat_uuid", chatUUID, "conn_id", p.ID())
}

func (r *Registry) registerLocked(chatUUID string, p Peer) {
	if _, exists := r.active[chatUUID]; !exists {
		r.active[chatUUID] = make(map[string]Peer)
	}
	if existing, exists := r.active[chatUUID][p.ID()]; exists && existing != p {
		existing.Close("view replaced")
	}
	r.active[chatUUID][p.ID()] = p
}

// Unregister removes p from chatUUID if it is still the registered peer.
func (r *Registry) Unregister(chatUUID string, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unregisterLocked(chatUUID, p) {
		slog.Info("View unregistered", "chat_uuid", chatUUID, "conn_id", p.ID())
	}
}

func (r *Registry) unregisterLocked(chatUUID string, p Peer) bool {
	peers, ok := r.active[chatUUID]
	if !ok {
		return false
	}
	if current, exists := peers[p.ID()]; !exists || current != p {
		return false
	}
	delete(peers, p.ID())
	if len(peers) == 0 {
		delete(r.active, chatUUID)
	}
	return true
}

// Move re-files p after its view switched sessions.
func (r *Registry) Move(from, to string, p Peer) {
	if from == to {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(from, p)
	r.registerLocked(to, p)
	slog.Debug("View moved", "from", from, "to", to, "conn_id", p.ID())
}

// Count returns how many views show chatUUID.
func (r *Registry) Count(chatUUID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active[chatUUID])
}

// Total returns the number of open views.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, peers := range r.active {
		n += len(peers)
	}
	return n
}

// CloseAll closes every registered view.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for chatUUID, peers := range r.active {
		for id, p := range peers {
			p.Close(reason)
			slog.Info("View closed", "chat_uuid", chatUUID, "conn_id", id)
		}
	}
	r.active = make(map[string]map[string]Peer)
}
