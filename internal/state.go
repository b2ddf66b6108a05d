package internal

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrRoomFull is returned by AddUser when the room is at capacity.
var ErrRoomFull = errors.New("room full")

// ErrInvalidDisplayName is returned for names that are empty after trimming.
var ErrInvalidDisplayName = errors.New("invalid display name")

// NormalizeDisplayName trims the raw name and clamps it to
// MaxDisplayNameLen runes. The client rejects over-long names before
// sending; the clamp keeps the stored invariant even for clients that
// don't.
func NormalizeDisplayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrInvalidDisplayName
	}
	if runes := []rune(name); len(runes) > MaxDisplayNameLen {
		name = strings.TrimSpace(string(runes[:MaxDisplayNameLen]))
	}
	return name, nil
}

// State holds everything the room knows: members, message history, and the
// set of display names currently typing. It has no locks on purpose - the
// room event loop is the only writer, so every mutation is serialized.
type State struct {
	capacity int
	window   time.Duration

	users    []User
	messages []Message
	typing   map[string]struct{}
}

// NewState builds an empty store for a room with the given member capacity
// and message retention window.
func NewState(capacity int, window time.Duration) *State {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultRetention
	}
	return &State{
		capacity: capacity,
		window:   window,
		typing:   make(map[string]struct{}),
	}
}

// Capacity returns the maximum number of members.
func (s *State) Capacity() int { return s.capacity }

// Window returns the retention window.
func (s *State) Window() time.Duration { return s.window }

// Size returns the current member count.
func (s *State) Size() int { return len(s.users) }

// AddUser admits a member. The capacity check happens before any mutation,
// so a rejected join leaves the store untouched.
func (s *State) AddUser(u User) error {
	if len(s.users) >= s.capacity {
		return ErrRoomFull
	}
	s.users = append(s.users, u)
	return nil
}

// RemoveUser drops the member with the given connection id and, in the same
// step, clears their typing entry. It reports whether the user was present.
func (s *State) RemoveUser(id string) (User, bool) {
	for i, u := range s.users {
		if u.ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			delete(s.typing, u.DisplayName)
			return u, true
		}
	}
	return User{}, false
}

// UserByID looks up a current member.
func (s *State) UserByID(id string) (User, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// Users returns the member list in join order. The slice is a copy; callers
// may hand it straight to the broadcast path.
func (s *State) Users() []User {
	out := make([]User, len(s.users))
	copy(out, s.users)
	return out
}

// AppendMessage records an accepted message. Messages are never mutated
// afterwards; only PruneMessages removes them.
func (s *State) AppendMessage(m Message) {
	s.messages = append(s.messages, m)
}

// RecentMessages returns the messages still inside the retention window,
// oldest first.
func (s *State) RecentMessages(now time.Time) []Message {
	cutoff := now.Add(-s.window)
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Timestamp.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// PruneMessages drops every message at or older than the cutoff and
// returns how many were removed.
func (s *State) PruneMessages(cutoff time.Time) int {
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.Timestamp.After(cutoff) {
			kept = append(kept, m)
		}
	}
	removed := len(s.messages) - len(kept)
	s.messages = kept
	return removed
}

// MessageCount returns the number of retained messages, pruned or not.
func (s *State) MessageCount() int { return len(s.messages) }

// SetTyping adds or removes a display name from the typing set.
func (s *State) SetTyping(displayName string, typing bool) {
	if typing {
		s.typing[displayName] = struct{}{}
	} else {
		delete(s.typing, displayName)
	}
}

// TypingNames returns the typing set sorted for stable output.
func (s *State) TypingNames() []string {
	out := make([]string, 0, len(s.typing))
	for name := range s.typing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
