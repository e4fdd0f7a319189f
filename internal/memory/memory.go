// Package memory owns embedding, vector storage and retrieval of
// long-term conversational memory, and assembles grounding context for
// each turn.
package memory

import (
	"context"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Filter restricts a vector search by payload equality. Match entries
// must all hold; Exclude entries must all not hold.
type Filter struct {
	Match   map[string]string
	Exclude map[string]string
}

// ScoredPoint is one nearest-neighbor match.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// VectorStore is the access contract the index requires from the vector
// database. Search returns matches at or above scoreThreshold in
// descending similarity order.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error
	Search(ctx context.Context, vector []float32, filter Filter, limit int, scoreThreshold float64) ([]ScoredPoint, error)
}

// Payload keys for memory records stored in the vector database.
const (
	payloadUserID        = "user_id"
	payloadFacilitatorID = "facilitator_id"
	payloadChatID        = "chat_id"
	payloadRole          = "role"
	payloadText          = "text"
	payloadTimestamp     = "timestamp"
)
