package dedup

import (
	"context"
	"sync"
)

// Memory is a process-local Deduper.
type Memory struct{ m sync.Map }

func NewMemory() *Memory { return &Memory{} }

func (d *Memory) Seen(_ context.Context, key string) bool {
	_, ok := d.m.LoadOrStore(key, struct{}{})
	return ok
}
