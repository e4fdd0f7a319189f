package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
	"github.com/folioworks/portfolio-assistant/pkg/metrics"
)

// Config tunes the two search scopes independently. Personal search is
// low-threshold/high-recall; global search is high-threshold/
// high-precision so weak matches from strangers never surface.
type Config struct {
	PersonalThreshold float64
	GlobalThreshold   float64
	PersonalLimit     int
	GlobalLimit       int
}

// QueryOptions narrows a single query.
type QueryOptions struct {
	// ExcludeChatID keeps a message from retrieving itself.
	ExcludeChatID string
	// Limit overrides the configured limit when > 0.
	Limit int
}

// Index stores and retrieves memory records against the vector store.
type Index struct {
	embed Embedder
	store VectorStore
	cfg   Config
	log   *logger.Logger

	// storeTimeout bounds detached write-back goroutines.
	storeTimeout time.Duration
}

// NewIndex creates a memory index.
func NewIndex(embed Embedder, store VectorStore, cfg Config, log *logger.Logger) *Index {
	if cfg.PersonalLimit <= 0 {
		cfg.PersonalLimit = 8
	}
	if cfg.GlobalLimit <= 0 {
		cfg.GlobalLimit = 4
	}
	// Global surfacing is never more permissive than personal recall.
	if cfg.GlobalThreshold < cfg.PersonalThreshold {
		cfg.GlobalThreshold = cfg.PersonalThreshold
	}
	return &Index{
		embed:        embed,
		store:        store,
		cfg:          cfg,
		log:          log.With("component", "memory_index"),
		storeTimeout: 30 * time.Second,
	}
}

// Store embeds and upserts one record. Failures are logged and swallowed;
// a memory write must never fail the user-visible turn.
func (ix *Index) Store(ctx context.Context, rec *model.MemoryRecord) {
	if rec.Text == "" {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	vector, err := ix.embed.Embed(ctx, rec.Text)
	if err != nil {
		metrics.MemoryWriteFailures.Inc()
		ix.log.Warn("memory embed failed, dropping record", "record_id", rec.ID, "error", err)
		return
	}

	payload := map[string]any{
		payloadUserID:    rec.Scope.UserID,
		payloadChatID:    rec.Scope.ChatID,
		payloadRole:      string(rec.Role),
		payloadText:      rec.Text,
		payloadTimestamp: rec.Timestamp.Format(time.RFC3339),
	}
	if rec.Scope.FacilitatorID != "" {
		payload[payloadFacilitatorID] = rec.Scope.FacilitatorID
	}

	if err := ix.store.Upsert(ctx, rec.ID, vector, payload); err != nil {
		metrics.MemoryWriteFailures.Inc()
		ix.log.Warn("memory upsert failed, dropping record", "record_id", rec.ID, "error", err)
	}
}

// StoreAsync fires a detached write-back. The caller never waits on it
// and the result is only logged.
func (ix *Index) StoreAsync(rec *model.MemoryRecord) {
	cp := *rec
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ix.storeTimeout)
		defer cancel()
		ix.Store(ctx, &cp)
	}()
}

// Query runs a personal-scope nearest-neighbor search. When the scope
// carries a facilitator the filter uses it instead of the raw user ID,
// so users grouped under one facilitator share recall.
func (ix *Index) Query(ctx context.Context, text string, scope model.OwnerScope, opts QueryOptions) ([]model.MemoryRecord, error) {
	filter := Filter{Match: map[string]string{}}
	if scope.FacilitatorID != "" {
		filter.Match[payloadFacilitatorID] = scope.FacilitatorID
	} else {
		filter.Match[payloadUserID] = scope.UserID
	}
	if opts.ExcludeChatID != "" {
		filter.Exclude = map[string]string{payloadChatID: opts.ExcludeChatID}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = ix.cfg.PersonalLimit
	}
	return ix.search(ctx, "personal", text, filter, limit, ix.cfg.PersonalThreshold)
}

// QueryGlobal searches across all owners. It always applies the stricter
// global threshold and still honors ExcludeChatID.
func (ix *Index) QueryGlobal(ctx context.Context, text string, opts QueryOptions) ([]model.MemoryRecord, error) {
	var filter Filter
	if opts.ExcludeChatID != "" {
		filter.Exclude = map[string]string{payloadChatID: opts.ExcludeChatID}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = ix.cfg.GlobalLimit
	}
	return ix.search(ctx, "global", text, filter, limit, ix.cfg.GlobalThreshold)
}

func (ix *Index) search(ctx context.Context, scopeName, text string, filter Filter, limit int, threshold float64) ([]model.MemoryRecord, error) {
	start := time.Now()

	vector, err := ix.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	points, err := ix.store.Search(ctx, vector, filter, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	records := make([]model.MemoryRecord, 0, len(points))
	for _, p := range points {
		records = append(records, recordFromPayload(p))
	}

	metrics.RecordMemorySearch(scopeName, time.Since(start).Seconds(), len(records))
	return records, nil
}

func recordFromPayload(p ScoredPoint) model.MemoryRecord {
	rec := model.MemoryRecord{
		ID:    p.ID,
		Score: p.Score,
	}
	if v, ok := p.Payload[payloadText].(string); ok {
		rec.Text = v
	}
	if v, ok := p.Payload[payloadRole].(string); ok {
		rec.Role = model.Role(v)
	}
	if v, ok := p.Payload[payloadUserID].(string); ok {
		rec.Scope.UserID = v
	}
	if v, ok := p.Payload[payloadFacilitatorID].(string); ok {
		rec.Scope.FacilitatorID = v
	}
	if v, ok := p.Payload[payloadChatID].(string); ok {
		rec.Scope.ChatID = v
	}
	if v, ok := p.Payload[payloadTimestamp].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			rec.Timestamp = ts
		}
	}
	return rec
}
