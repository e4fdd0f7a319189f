package model

import (
	"time"
)

// OwnerScope identifies who a memory record belongs to. FacilitatorID,
// when set, groups several users under one shared memory pool and takes
// precedence over UserID in personal search filters.
type OwnerScope struct {
	UserID        string `json:"user_id"`
	FacilitatorID string `json:"facilitator_id,omitempty"`
	ChatID        string `json:"chat_id"`
}

// MemoryRecord is one embedded message stored in the vector index.
// Records are written once and never mutated.
type MemoryRecord struct {
	ID        string     `json:"id"`
	Scope     OwnerScope `json:"scope"`
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`

	// Score is populated on query results only.
	Score float64 `json:"score,omitempty"`
}
