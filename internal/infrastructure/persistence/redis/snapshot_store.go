package redis

import (
	"context"
	"strings"
	"time"

	apperrors "z-novel-context/pkg/errors"
)

// SnapshotStore 以 <prefix>:<session_id> 为键保存会话快照
type SnapshotStore struct {
	client *Client
	prefix string
}

// NewSnapshotStore 创建快照存储；prefix 为空时使用 "ctx:session"
func NewSnapshotStore(client *Client, prefix string) *SnapshotStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "ctx:session"
	}
	return &SnapshotStore{client: client, prefix: prefix}
}

func (s *SnapshotStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Load 读取快照；键不存在时返回 (nil, nil)
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(sessionID))
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, apperrors.ErrCache.WithDetail("load " + sessionID).WithError(err)
	}
	return data, nil
}

// Save 写入快照；ttl 为 0 表示不过期
func (s *SnapshotStore) Save(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(sessionID), data, ttl); err != nil {
		return apperrors.ErrCache.WithDetail("save " + sessionID).WithError(err)
	}
	return nil
}

// Delete 删除快照
func (s *SnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)); err != nil {
		return apperrors.ErrCache.WithDetail("delete " + sessionID).WithError(err)
	}
	return nil
}
