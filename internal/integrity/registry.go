package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBaselineNotFound means no baseline is registered for the document.
var ErrBaselineNotFound = errors.New("baseline not found")

// BaselineLoader fetches a document baseline from durable storage.
type BaselineLoader interface {
	Baseline(ctx context.Context, documentID string) (Baseline, error)
}

// Registry is a read-through cache in front of the baseline store. The
// hot path is read-only; entries are invalidated when a document's
// baseline changes. Runs without redis when rdb is nil.
type Registry struct {
	loader BaselineLoader
	rdb    *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRegistry wires the cache. rdb may be nil.
func NewRegistry(loader BaselineLoader, rdb *redis.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		loader: loader,
		rdb:    rdb,
		ttl:    10 * time.Minute,
		log:    logger,
	}
}

func cacheKey(documentID string) string {
	return "baseline:" + documentID
}

// Baseline returns the document baseline, from cache when possible.
// Cache failures degrade to the loader, never to an error.
func (r *Registry) Baseline(ctx context.Context, documentID string) (Baseline, error) {
	if r.rdb != nil {
		raw, err := r.rdb.Get(ctx, cacheKey(documentID)).Bytes()
		if err == nil {
			var b Baseline
			if jsonErr := json.Unmarshal(raw, &b); jsonErr == nil {
				return b, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			r.log.Warn("baseline cache read failed", "document_id", documentID, "error", err)
		}
	}

	b, err := r.loader.Baseline(ctx, documentID)
	if err != nil {
		return Baseline{}, err
	}

	if r.rdb != nil {
		if raw, err := json.Marshal(b); err == nil {
			if err := r.rdb.Set(ctx, cacheKey(documentID), raw, r.ttl).Err(); err != nil {
				r.log.Warn("baseline cache write failed", "document_id", documentID, "error", err)
			}
		}
	}
	return b, nil
}

// Invalidate drops the cached baseline after a registration change.
func (r *Registry) Invalidate(ctx context.Context, documentID string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Del(ctx, cacheKey(documentID)).Err(); err != nil {
		r.log.Warn("baseline cache invalidate failed", "document_id", documentID, "error", err)
	}
}
