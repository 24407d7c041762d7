package serving

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"
)

// Plain renders the active set as a newline-delimited plain-text list with
// a leading comment header, sorted numeric-ascending (v4 and v6 mixed sets
// compare by their 16-byte form via netip.Addr.Compare).
func (h *Handler) Plain(ctx context.Context) ([]byte, error) {
	key := h.cache.Key("blacklist", "plain")
	return h.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		records, err := h.loadActive(ctx)
		if err != nil {
			return nil, err
		}

		sort.Slice(records, func(i, j int) bool {
			return records[i].IP.Compare(records[j].IP) < 0
		})

		var buf bytes.Buffer
		fmt.Fprintf(&buf, "# generated_at=%s count=%d\n", time.Now().UTC().Format(time.RFC3339), len(records))
		for _, r := range records {
			buf.WriteString(r.IP.String())
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	})
}
