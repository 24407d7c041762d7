package serving

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type sourceStatus struct {
	Source     string     `json:"source"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Inserted   int        `json:"inserted"`
	Updated    int        `json:"updated"`
}

// SourcesStatus renders the most recent CollectionRun per source, a thin
// read with no upstream call — supplemented beyond the distilled formats
// since spec.md names GET /api/v2/sources/status without detailing it.
func (h *Handler) SourcesStatus(ctx context.Context) ([]byte, error) {
	key := h.cache.Key("sources", "status")
	return h.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		summaries, err := h.runs.LastRunPerSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying source status: %w", err)
		}

		out := make([]sourceStatus, 0, len(summaries))
		for _, s := range summaries {
			out = append(out, sourceStatus{
				Source:     string(s.Source),
				Status:     string(s.Status),
				StartedAt:  s.StartedAt,
				FinishedAt: s.FinishedAt,
				Inserted:   s.Inserted,
				Updated:    s.Updated,
			})
		}

		raw, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encoding source status response: %w", err)
		}
		return raw, nil
	})
}
