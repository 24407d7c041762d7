package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// fortigateEntry is one active IP as FortiGate's external connector feed
// expects it.
type fortigateEntry struct {
	IP        string    `json:"ip"`
	ExpiresAt time.Time `json:"expires_at"`
}

type fortigateResponse struct {
	Version     string           `json:"version"`
	GeneratedAt time.Time        `json:"generated_at"`
	TTLSeconds  int64            `json:"ttl_seconds"`
	Entries     []fortigateEntry `json:"entries"`
}

// FortiGate renders the active set in FortiGate external connector format:
// ttl_seconds is the minimum remaining lifetime across every entry, floored
// at 0 so a just-expired record never reports a negative TTL.
func (h *Handler) FortiGate(ctx context.Context) ([]byte, error) {
	key := h.cache.Key("fortigate")
	return h.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		records, err := h.loadActive(ctx)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		resp := fortigateResponse{
			Version:     "1.0",
			GeneratedAt: now,
			Entries:     make([]fortigateEntry, 0, len(records)),
		}

		minTTL := int64(-1)
		for _, r := range records {
			resp.Entries = append(resp.Entries, fortigateEntry{IP: r.IP.String(), ExpiresAt: r.ExpiresAt})

			ttl := int64(r.ExpiresAt.Sub(now).Seconds())
			if ttl < 0 {
				ttl = 0
			}
			if minTTL < 0 || ttl < minTTL {
				minTTL = ttl
			}
		}
		if minTTL < 0 {
			minTTL = 0
		}
		resp.TTLSeconds = minTTL

		out, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("encoding fortigate response: %w", err)
		}
		return out, nil
	})
}
