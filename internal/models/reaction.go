package models

import (
	"sort"

	"github.com/google/uuid"
)

// ReactionBucket is the set of users who reacted to a message with one
// emoji. Count always equals len(Users) and a bucket is never empty.
type ReactionBucket struct {
	Emoji string      `json:"emoji"`
	Users []uuid.UUID `json:"users"`
	Count int         `json:"count"`
}

// Reaction is a single (user, emoji) membership row.
type Reaction struct {
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
}

// ReactionSet is a message's reactions keyed by user. A user maps to at
// most one emoji, which is what enforces one reaction per user per message.
//
// Why key by user and not by (user, emoji)? Switching emoji has to be a
// replace, not a second row. The message_reactions table mirrors this with
// PRIMARY KEY (message_id, user_id), so a concurrent double tap collapses
// into one upsert instead of racing two inserts.
type ReactionSet map[uuid.UUID]string

// Add moves userID's reaction to emoji, replacing any previous one.
// Adding the same emoji twice changes nothing.
func (s ReactionSet) Add(userID uuid.UUID, emoji string) {
	s[userID] = emoji
}

// Remove drops userID's reaction if it is emoji. Returns false when there
// was nothing to remove.
func (s ReactionSet) Remove(userID uuid.UUID, emoji string) bool {
	if cur, ok := s[userID]; ok && cur == emoji {
		delete(s, userID)
		return true
	}
	return false
}

// Buckets groups the set by emoji. Buckets are sorted by descending count
// then emoji, users inside a bucket by id, so output is stable.
func (s ReactionSet) Buckets() []ReactionBucket {
	byEmoji := make(map[string][]uuid.UUID)
	for user, emoji := range s {
		byEmoji[emoji] = append(byEmoji[emoji], user)
	}
	return BucketsFrom(byEmoji)
}

// BucketsFrom builds buckets from an emoji → users grouping, dropping empty
// groups.
func BucketsFrom(byEmoji map[string][]uuid.UUID) []ReactionBucket {
	buckets := make([]ReactionBucket, 0, len(byEmoji))
	for emoji, users := range byEmoji {
		if len(users) == 0 {
			continue
		}
		sorted := append([]uuid.UUID(nil), users...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
		buckets = append(buckets, ReactionBucket{Emoji: emoji, Users: sorted, Count: len(sorted)})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Emoji < buckets[j].Emoji
	})
	return buckets
}
