// Package storage defines the persistence contract consumed by the
// orchestration core, together with an in-memory implementation.
package storage

import (
	"context"
	"errors"

	"github.com/folioworks/portfolio-assistant/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the narrow persistence contract the core depends on. The
// relational backing store lives outside this repository; everything
// here goes through this interface.
type Store interface {
	// Conversation handles
	GetConversationHandle(ctx context.Context, key model.ScopeKey) (*model.ConversationHandle, error)
	SetConversationHandle(ctx context.Context, handle *model.ConversationHandle) error
	TombstoneConversationHandle(ctx context.Context, key model.ScopeKey) error

	// Messages
	CreateMessage(ctx context.Context, msg *model.Message) error
	UpdateMessage(ctx context.Context, id string, patch model.MessagePatch) error
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)

	// Portfolio
	GetPortfolioOwner(ctx context.Context, userID string) (*model.PortfolioOwner, error)
	CreateQualification(ctx context.Context, q *model.Qualification) error
	CreateActivity(ctx context.Context, a *model.Activity) error
	UpsertCompetency(ctx context.Context, c *model.Competency) error
}
