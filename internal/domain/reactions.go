package domain

import "encoding/json"

// UserSet is an insertion-ordered set of usernames. Membership checks are
// map lookups; the order slice only exists so broadcasts list reactors in the
// order they reacted.
type UserSet struct {
	order   []string
	members map[string]struct{}
}

// NewUserSet returns a set holding the given usernames.
func NewUserSet(users ...string) *UserSet {
	s := &UserSet{members: make(map[string]struct{}, len(users))}
	for _, u := range users {
		s.Add(u)
	}
	return s
}

// Add inserts user and reports whether it was absent.
func (s *UserSet) Add(user string) bool {
	if _, ok := s.members[user]; ok {
		return false
	}
	s.members[user] = struct{}{}
	s.order = append(s.order, user)
	return true
}

// Remove deletes user and reports whether it was present.
func (s *UserSet) Remove(user string) bool {
	if _, ok := s.members[user]; !ok {
		return false
	}
	delete(s.members, user)
	for i, u := range s.order {
		if u == user {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether user is in the set.
func (s *UserSet) Has(user string) bool {
	_, ok := s.members[user]
	return ok
}

// Len returns the number of users in the set.
func (s *UserSet) Len() int { return len(s.order) }

// Users returns the members in insertion order.
func (s *UserSet) Users() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// MarshalJSON implements json.Marshaler.
func (s *UserSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Users())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *UserSet) UnmarshalJSON(data []byte) error {
	var users []string
	if err := json.Unmarshal(data, &users); err != nil {
		return err
	}
	*s = *NewUserSet(users...)
	return nil
}

// Reactions maps an emoji to the users who reacted with it. An emoji whose
// set becomes empty is removed from the map.
type Reactions map[string]*UserSet

// Toggle flips user's reaction under emoji and reports whether the reaction
// is now present.
func (r Reactions) Toggle(emoji, user string) bool {
	set, ok := r[emoji]
	if ok && set.Has(user) {
		set.Remove(user)
		if set.Len() == 0 {
			delete(r, emoji)
		}
		return false
	}
	if !ok {
		set = NewUserSet()
		r[emoji] = set
	}
	set.Add(user)
	return true
}

// Clone returns a deep copy of r.
func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, set := range r {
		out[emoji] = NewUserSet(set.order...)
	}
	return out
}

// Snapshot flattens r into plain slices.
func (r Reactions) Snapshot() map[string][]string {
	out := make(map[string][]string, len(r))
	for emoji, set := range r {
		out[emoji] = set.Users()
	}
	return out
}

// MarshalJSON implements json.Marshaler. A nil map encodes as {}.
func (r Reactions) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}
