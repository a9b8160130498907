package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// WeakPasswordSource loads the authoritative weak password set.
type WeakPasswordSource interface {
	ListAll(ctx context.Context) ([]string, error)
}

type weakSnapshot struct {
	set      map[string]struct{}
	loadedAt time.Time
}

// WeakCredentialCache holds an immutable, lowercased snapshot of the weak
// password set. Readers never block; Refresh swaps in a new snapshot.
type WeakCredentialCache struct {
	source  WeakPasswordSource
	logger  *slog.Logger
	current atomic.Pointer[weakSnapshot]
}

// NewWeakCredentialCache returns a cache with an empty snapshot. Call Refresh
// before serving traffic.
func NewWeakCredentialCache(source WeakPasswordSource, logger *slog.Logger) *WeakCredentialCache {
	c := &WeakCredentialCache{source: source, logger: logger}
	c.current.Store(&weakSnapshot{set: map[string]struct{}{}})
	return c
}

// Refresh reloads the set. On failure the previous snapshot stays in place.
func (c *WeakCredentialCache) Refresh(ctx context.Context) error {
	passwords, err := c.source.ListAll(ctx)
	if err != nil {
		c.logger.Error("weak password refresh failed, keeping previous snapshot",
			slog.Int("current_size", c.Size()),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to refresh weak passwords: %w", err)
	}

	set := make(map[string]struct{}, len(passwords))
	for _, p := range passwords {
		set[strings.ToLower(p)] = struct{}{}
	}

	c.current.Store(&weakSnapshot{set: set, loadedAt: time.Now()})
	c.logger.Info("weak password cache refreshed", slog.Int("size", len(set)))
	return nil
}

// Contains reports whether candidate, lowercased, is in the current snapshot.
func (c *WeakCredentialCache) Contains(candidate string) bool {
	_, ok := c.current.Load().set[strings.ToLower(candidate)]
	return ok
}

// Size returns the number of entries in the current snapshot.
func (c *WeakCredentialCache) Size() int {
	return len(c.current.Load().set)
}

// LoadedAt returns when the current snapshot was published; zero before the first load.
func (c *WeakCredentialCache) LoadedAt() time.Time {
	return c.current.Load().loadedAt
}
