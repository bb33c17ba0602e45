// Package presence tracks which users hold live connections.
//
// A Registry is not safe for concurrent use. The hub owns one and only touches
// it from its event loop.
package presence

type Registry struct {
	users map[string]map[string]struct{} // userID -> connection ids
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]struct{})}
}

// Connect records connID for userID and reports whether it is the user's first
// live connection.
func (r *Registry) Connect(userID, connID string) (first bool) {
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	conns[connID] = struct{}{}
	return !ok
}

// Disconnect removes connID and reports whether the user has no connections left.
// Unknown connections are ignored.
func (r *Registry) Disconnect(userID, connID string) (last bool) {
	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	return len(r.users[userID]) > 0
}

// Connections returns a copy of the user's connection ids.
func (r *Registry) Connections(userID string) []string {
	conns := r.users[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// OnlineCount is the number of users with at least one connection.
func (r *Registry) OnlineCount() int {
	return len(r.users)
}
