package model

import (
	"time"
)

// Scope controls how provider-side conversations map onto local state.
// In per-chat mode every chat gets its own provider conversation; in
// per-user mode all of a user's chats share one. The mode is a deployment
// choice, there is no fallback between them at runtime.
type Scope string

const (
	ScopePerChat Scope = "per-chat"
	ScopePerUser Scope = "per-user"
)

// Valid reports whether s is a known scope mode.
func (s Scope) Valid() bool {
	return s == ScopePerChat || s == ScopePerUser
}

// ScopeKey identifies one logical conversation scope.
type ScopeKey struct {
	Scope   Scope  `json:"scope"`
	OwnerID string `json:"owner_id"`
}

// ScopeKeyFor derives the scope key for a turn. Per-user mode keys on the
// user, per-chat mode on the chat.
func ScopeKeyFor(scope Scope, userID, chatID string) ScopeKey {
	if scope == ScopePerChat {
		return ScopeKey{Scope: scope, OwnerID: chatID}
	}
	return ScopeKey{Scope: scope, OwnerID: userID}
}

// String returns the storage key form, e.g. "per-user:u_123".
func (k ScopeKey) String() string {
	return string(k.Scope) + ":" + k.OwnerID
}

// ConversationHandle maps a scope key to a provider-side conversation so
// runs have continuity across turns. Tombstoned handles are treated as
// absent; the provider-side context they point at is left orphaned.
type ConversationHandle struct {
	OwnerID                string     `json:"owner_id"`
	Scope                  Scope      `json:"scope"`
	ProviderConversationID string     `json:"provider_conversation_id"`
	CreatedAt              time.Time  `json:"created_at"`
	TombstonedAt           *time.Time `json:"tombstoned_at,omitempty"`
}

// Key returns the scope key this handle is stored under.
func (h *ConversationHandle) Key() ScopeKey {
	return ScopeKey{Scope: h.Scope, OwnerID: h.OwnerID}
}

// Tombstoned reports whether the handle has been cleared.
func (h *ConversationHandle) Tombstoned() bool {
	return h.TombstonedAt != nil
}
