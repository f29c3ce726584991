// Package dedup remembers which records were already delivered so repeated
// runs over overlapping ranges do not resend them.
package dedup

import (
	"context"

	"github.com/creator4ever-bot/geodac/internal/transit"
)

// Deduper marks a key as seen and reports whether it was seen before.
type Deduper interface {
	Seen(ctx context.Context, key string) bool
}

// Filter returns the records whose ids d has not seen, marking them.
func Filter(ctx context.Context, d Deduper, records []transit.Record) []transit.Record {
	out := make([]transit.Record, 0, len(records))
	for _, r := range records {
		if !d.Seen(ctx, r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// None never reports a key as seen.
type None struct{}

// Seen implements Deduper.
func (None) Seen(context.Context, string) bool { return false }
