package entity

import "slices"

type Reaction struct {
	Users []string `bson:"users" json:"users"`
	Count int      `bson:"count" json:"count"`
}

// Reactions maps an emoji key to the identities that reacted with it.
// Count always equals len(Users) and an emptied key is removed.
type Reactions map[string]Reaction

// Add reports false when userID already reacted with emoji.
func (r Reactions) Add(emoji, userID string) bool {
	cur := r[emoji]
	if slices.Contains(cur.Users, userID) {
		return false
	}
	users := append(slices.Clone(cur.Users), userID)
	r[emoji] = Reaction{Users: users, Count: len(users)}
	return true
}

// Remove reports false when userID had not reacted with emoji.
func (r Reactions) Remove(emoji, userID string) bool {
	cur, ok := r[emoji]
	if !ok {
		return false
	}
	idx := slices.Index(cur.Users, userID)
	if idx < 0 {
		return false
	}
	users := slices.Delete(slices.Clone(cur.Users), idx, idx+1)
	if len(users) == 0 {
		delete(r, emoji)
		return true
	}
	r[emoji] = Reaction{Users: users, Count: len(users)}
	return true
}

func (r Reactions) Get(emoji string) Reaction {
	cur, ok := r[emoji]
	if !ok {
		return Reaction{Users: []string{}, Count: 0}
	}
	return cur
}

func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for k, v := range r {
		out[k] = Reaction{Users: slices.Clone(v.Users), Count: v.Count}
	}
	return out
}
