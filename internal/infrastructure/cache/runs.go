package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"flowattr-lab/internal/domain/models"
)

// HistoryLength is how many runs the history list keeps
const HistoryLength = 100

// TraceTTL bounds how long a reconstructed actor trace is served from cache
const TraceTTL = time.Hour

// SaveRun stores summary as the last run and pushes it onto the history
func (c *RedisCache) SaveRun(ctx context.Context, summary *models.RunSummary) error {
	last, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	entry, err := json.Marshal(summary.HistoryEntry())
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.key(KeyLastRun), last, 0)
	pipe.LPush(ctx, c.key(KeyRunHistory), entry)
	pipe.LTrim(ctx, c.key(KeyRunHistory), 0, HistoryLength-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LastRun returns the latest run summary or nil when none was saved
func (c *RedisCache) LastRun(ctx context.Context) (*models.RunSummary, error) {
	var summary models.RunSummary
	found, err := c.getJSON(ctx, KeyLastRun, &summary)
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &summary, nil
}

// RunHistory returns up to limit runs, newest first
func (c *RedisCache) RunHistory(ctx context.Context, limit int) ([]models.RunHistoryEntry, error) {
	if limit <= 0 || limit > HistoryLength {
		limit = HistoryLength
	}

	raw, err := c.client.LRange(ctx, c.key(KeyRunHistory), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}

	entries := make([]models.RunHistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.RunHistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			c.logger.Warn().Err(err).Msg("skipping malformed run history entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetTrace loads a cached trace into dest
func (c *RedisCache) GetTrace(ctx context.Context, key string, dest any) (bool, error) {
	return c.getJSON(ctx, KeyTracePrefix+key, dest)
}

// SetTrace caches a trace for TraceTTL
func (c *RedisCache) SetTrace(ctx context.Context, key string, trace any) error {
	return c.setJSON(ctx, KeyTracePrefix+key, trace, TraceTTL)
}
