// Package serving implements the Query/Serving Layer: read-only formatters
// over the IP Store and CollectionRun history, wrapped in the cache layer.
// Nothing here performs a blocking upstream fetch — that is the Scheduler's
// job — so every handler reads only ipstore.Store, collection.Store, and
// cache.Layer.
package serving

import (
	"context"
	"fmt"
	"time"

	"github.com/jclee94/blacklist/pkg/cache"
	"github.com/jclee94/blacklist/pkg/collection"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

// Handler serves every read endpoint backed by the IP Store and
// CollectionRun history.
type Handler struct {
	store *ipstore.Store
	runs  *collection.Store
	cache *cache.Layer
}

// NewHandler creates a serving Handler.
func NewHandler(store *ipstore.Store, runs *collection.Store, layer *cache.Layer) *Handler {
	return &Handler{store: store, runs: runs, cache: layer}
}

// window parses the analytics window query parameter ("7d", "30d", "90d")
// into a since timestamp relative to now.
func window(raw string, now time.Time) (time.Time, error) {
	switch raw {
	case "", "7d":
		return now.AddDate(0, 0, -7), nil
	case "30d":
		return now.AddDate(0, 0, -30), nil
	case "90d":
		return now.AddDate(0, 0, -90), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported window %q", raw)
	}
}

// loadActive reads every currently-active record from the store, the common
// origin read behind both the plain-list and FortiGate formatters.
func (h *Handler) loadActive(ctx context.Context) ([]ipstore.Record, error) {
	it, err := h.store.QueryActive(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("querying active records: %w", err)
	}
	defer it.Close()

	var out []ipstore.Record
	for it.Next() {
		r, err := it.Record()
		if err != nil {
			return nil, fmt.Errorf("reading active record: %w", err)
		}
		out = append(out, r)
	}
	return out, it.Err()
}
