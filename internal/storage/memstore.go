package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/folioworks/portfolio-assistant/internal/model"
)

// MemStore is an in-memory Store (would be replaced with a database in
// production).
type MemStore struct {
	mu             sync.RWMutex
	handles        map[string]*model.ConversationHandle
	messages       map[string]*model.Message
	owners         map[string]*model.PortfolioOwner
	qualifications map[string]*model.Qualification
	activities     map[string]*model.Activity
	competencies   map[string]*model.Competency
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		handles:        make(map[string]*model.ConversationHandle),
		messages:       make(map[string]*model.Message),
		owners:         make(map[string]*model.PortfolioOwner),
		qualifications: make(map[string]*model.Qualification),
		activities:     make(map[string]*model.Activity),
		competencies:   make(map[string]*model.Competency),
	}
}

// GetConversationHandle returns the stored handle for a scope key.
// Tombstoned handles are reported as not found.
func (s *MemStore) GetConversationHandle(ctx context.Context, key model.ScopeKey) (*model.ConversationHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.handles[key.String()]
	if !exists || h.Tombstoned() {
		return nil, ErrNotFound
	}
	cp := *h
	return &cp, nil
}

// SetConversationHandle stores a handle under its scope key.
func (s *MemStore) SetConversationHandle(ctx context.Context, handle *model.ConversationHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *handle
	s.handles[handle.Key().String()] = &cp
	return nil
}

// TombstoneConversationHandle clears a handle without deleting the row,
// so a stale provider-side context is never reused.
func (s *MemStore) TombstoneConversationHandle(ctx context.Context, key model.ScopeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.handles[key.String()]
	if !exists {
		return ErrNotFound
	}
	now := time.Now()
	h.TombstonedAt = &now
	return nil
}

// CreateMessage stores a new message.
func (s *MemStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

// UpdateMessage applies a partial update to a stored message.
func (s *MemStore) UpdateMessage(ctx context.Context, id string, patch model.MessagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, exists := s.messages[id]
	if !exists {
		return ErrNotFound
	}

	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.Pending != nil {
		msg.Pending = *patch.Pending
	}
	if patch.Model != nil {
		msg.Model = patch.Model
	}
	if patch.TokensIn != nil {
		msg.TokensIn = patch.TokensIn
	}
	if patch.TokensOut != nil {
		msg.TokensOut = patch.TokensOut
	}
	if patch.LatencyMs != nil {
		msg.LatencyMs = patch.LatencyMs
	}
	msg.UpdatedAt = time.Now()
	return nil
}

// ListMessages returns a chat's messages in creation order.
func (s *MemStore) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []model.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			msgs = append(msgs, *m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// GetPortfolioOwner returns the portfolio owner for a user.
func (s *MemStore) GetPortfolioOwner(ctx context.Context, userID string) (*model.PortfolioOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.owners[userID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// PutPortfolioOwner registers a portfolio owner. Used by seeding and tests.
func (s *MemStore) PutPortfolioOwner(owner *model.PortfolioOwner) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *owner
	s.owners[owner.UserID] = &cp
}

// CreateQualification stores a qualification record.
func (s *MemStore) CreateQualification(ctx context.Context, q *model.Qualification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.Must(uuid.NewV7()).String()
	}
	cp := *q
	s.qualifications[q.ID] = &cp
	return nil
}

// CreateActivity stores an activity record.
func (s *MemStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.Must(uuid.NewV7()).String()
	}
	cp := *a
	s.activities[a.ID] = &cp
	return nil
}

// UpsertCompetency inserts or updates a competency keyed by owner and
// name.
func (s *MemStore) UpsertCompetency(ctx context.Context, c *model.Competency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.OwnerID + "/" + c.Name
	if existing, ok := s.competencies[key]; ok {
		existing.Status = c.Status
		existing.UpdatedAt = time.Now()
		c.ID = existing.ID
		return nil
	}
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	c.UpdatedAt = time.Now()
	cp := *c
	s.competencies[key] = &cp
	return nil
}

// Qualifications returns all stored qualifications for an owner. Used by
// tests and the admin surface.
func (s *MemStore) Qualifications(ownerID string) []model.Qualification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Qualification
	for _, q := range s.qualifications {
		if q.OwnerID == ownerID {
			out = append(out, *q)
		}
	}
	return out
}

// Activities returns all stored activities for an owner.
func (s *MemStore) Activities(ownerID string) []model.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Activity
	for _, a := range s.activities {
		if a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	return out
}

// Competency returns a stored competency by owner and name.
func (s *MemStore) Competency(ownerID, name string) (*model.Competency, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.competencies[ownerID+"/"+name]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}
