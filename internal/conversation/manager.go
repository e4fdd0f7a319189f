// Package conversation resolves stable provider-side conversation
// handles per scope key.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/internal/provider"
	"github.com/folioworks/portfolio-assistant/internal/storage"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
	"github.com/folioworks/portfolio-assistant/pkg/metrics"
)

// Manager creates conversation handles lazily and serializes creation
// per scope key so a first-message race never produces two provider
// conversations for one logical scope.
type Manager struct {
	store    storage.Store
	provider provider.Provider
	log      *logger.Logger

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// NewManager creates a conversation manager.
func NewManager(store storage.Store, prov provider.Provider, log *logger.Logger) *Manager {
	return &Manager{
		store:    store,
		provider: prov,
		log:      log.With("component", "conversation_manager"),
		keys:     make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex guarding one scope key. Locks are only held
// around handle creation, never across a turn.
func (m *Manager) keyLock(key model.ScopeKey) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.keys[key.String()]
	if !ok {
		l = &sync.Mutex{}
		m.keys[key.String()] = l
	}
	return l
}

// ResolveHandle returns the handle for a scope key, creating the
// provider-side conversation and persisting the mapping on first use.
// Exactly one storage write happens per creation.
func (m *Manager) ResolveHandle(ctx context.Context, key model.ScopeKey) (*model.ConversationHandle, error) {
	// Fast path without the key lock: most turns find an existing
	// handle.
	handle, err := m.store.GetConversationHandle(ctx, key)
	if err == nil {
		return handle, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load conversation handle: %w", err)
	}

	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock; a concurrent first message may have won.
	handle, err = m.store.GetConversationHandle(ctx, key)
	if err == nil {
		return handle, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load conversation handle: %w", err)
	}

	providerID, err := m.provider.CreateConversation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider conversation: %w", err)
	}

	handle = &model.ConversationHandle{
		OwnerID:                key.OwnerID,
		Scope:                  key.Scope,
		ProviderConversationID: providerID,
		CreatedAt:              time.Now(),
	}
	if err := m.store.SetConversationHandle(ctx, handle); err != nil {
		return nil, fmt.Errorf("failed to persist conversation handle: %w", err)
	}

	metrics.HandlesCreated.WithLabelValues(string(key.Scope)).Inc()
	m.log.Info("conversation handle created",
		"owner_id", key.OwnerID,
		"scope", key.Scope,
		"provider_conversation_id", providerID,
	)
	return handle, nil
}

// Invalidate tombstones the stored mapping. The provider-side context is
// left orphaned on purpose: a provider failure at deletion time must
// never block local cleanup.
func (m *Manager) Invalidate(ctx context.Context, key model.ScopeKey) error {
	if err := m.store.TombstoneConversationHandle(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to tombstone conversation handle: %w", err)
	}
	m.log.Info("conversation handle invalidated", "owner_id", key.OwnerID, "scope", key.Scope)
	return nil
}
