package repository

import (
	"context"
	"time"
)

// SnapshotStore 会话快照存储；未命中返回 (nil, nil)
type SnapshotStore interface {
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Save(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}
