package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type analyticsPoint struct {
	Source      string    `json:"source"`
	ThreatLevel string    `json:"threat_level"`
	Day         time.Time `json:"day"`
	Count       int       `json:"count"`
}

type analyticsResponse struct {
	Window      string           `json:"window"`
	GeneratedAt time.Time        `json:"generated_at"`
	Points      []analyticsPoint `json:"points"`
}

// Analytics renders counts by source, threat level, and day over the given
// window ("7d", "30d", "90d"; empty defaults to "7d").
func (h *Handler) Analytics(ctx context.Context, windowParam string) ([]byte, error) {
	key := h.cache.Key("analytics", windowParam)
	return h.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		since, err := window(windowParam, time.Now())
		if err != nil {
			return nil, err
		}

		stats, err := h.store.Stats(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("querying analytics: %w", err)
		}

		resp := analyticsResponse{
			Window:      windowParam,
			GeneratedAt: time.Now(),
			Points:      make([]analyticsPoint, 0, len(stats)),
		}
		for _, s := range stats {
			resp.Points = append(resp.Points, analyticsPoint{
				Source:      string(s.Source),
				ThreatLevel: string(s.ThreatLevel),
				Day:         s.Day,
				Count:       s.Count,
			})
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("encoding analytics response: %w", err)
		}
		return out, nil
	})
}
