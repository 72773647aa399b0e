package sync

import (
	"context"
	"fmt"
	"strconv"

	"github.com/matheus3301/chronsync/internal/store"
)

// Checkpoints persists the global lastSyncTime in the store's state table.
type Checkpoints struct {
	db *store.DB
}

// NewCheckpoints creates a checkpoint accessor.
func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

// LastSyncTime returns the last successful sync checkpoint, 0 if none.
func (c *Checkpoints) LastSyncTime(ctx context.Context) (int64, error) {
	v, ok, err := c.db.GetState(ctx, store.KeyLastSyncTime)
	if err != nil || !ok {
		return 0, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", store.KeyLastSyncTime, v, err)
	}
	return ts, nil
}

// SetLastSyncTime records a successful sync checkpoint.
func (c *Checkpoints) SetLastSyncTime(ctx context.Context, ts int64) error {
	return c.db.SetState(ctx, store.KeyLastSyncTime, strconv.FormatInt(ts, 10))
}
