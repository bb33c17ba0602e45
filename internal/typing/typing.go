// Package typing holds the set of users currently typing in each conversation.
// Nothing expires on the server; entries leave on stop_typing, on send and on
// disconnect. Like presence.Registry it belongs to the hub loop.
package typing

import "sort"

type Registry struct {
	rooms map[string]map[string]struct{} // conversationID -> userIDs
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]struct{})}
}

// Start marks userID typing in convID. It reports false when the user was
// already typing so repeated signals are not re-broadcast.
func (r *Registry) Start(convID, userID string) (changed bool) {
	users, ok := r.rooms[convID]
	if !ok {
		users = make(map[string]struct{})
		r.rooms[convID] = users
	}
	if _, ok := users[userID]; ok {
		return false
	}
	users[userID] = struct{}{}
	return true
}

// Stop clears userID in convID and reports whether it was set.
func (r *Registry) Stop(convID, userID string) (changed bool) {
	users, ok := r.rooms[convID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(r.rooms, convID)
	}
	return true
}

// StopAll clears userID everywhere and returns the affected conversations.
func (r *Registry) StopAll(userID string) []string {
	var convs []string
	for convID := range r.rooms {
		if r.Stop(convID, userID) {
			convs = append(convs, convID)
		}
	}
	sort.Strings(convs)
	return convs
}

// Typing returns the users typing in convID, sorted.
func (r *Registry) Typing(convID string) []string {
	users := r.rooms[convID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
