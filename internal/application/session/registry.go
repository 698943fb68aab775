package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"z-novel-context/internal/domain/repository"
	apperrors "z-novel-context/pkg/errors"
	"z-novel-context/pkg/logger"
	"z-novel-context/pkg/metrics"
)

// Factory 创建空白会话
type Factory func() (*Manager, error)

// Handle 会话句柄；同一会话的所有访问经由 Do 串行化
type Handle struct {
	mu      sync.Mutex
	id      string
	manager *Manager
}

// ID 会话 ID
func (h *Handle) ID() string {
	return h.id
}

// Do 持锁执行 fn
func (h *Handle) Do(fn func(m *Manager) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.manager)
}

// Options 会话注册表参数
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Registry 进程内会话缓存，可选地由 SnapshotStore 持久化
type Registry struct {
	sessions *cache.Cache
	group    singleflight.Group
	store    repository.SnapshotStore
	factory  Factory
	ttl      time.Duration
}

// NewRegistry 创建会话注册表；store 为 nil 时会话只保存在内存中
func NewRegistry(store repository.SnapshotStore, factory Factory, opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = cache.NoExpiration
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 10 * time.Minute
	}
	r := &Registry{
		sessions: cache.New(opts.TTL, opts.CleanupInterval),
		store:    store,
		factory:  factory,
		ttl:      opts.TTL,
	}
	r.sessions.OnEvicted(func(string, interface{}) {
		metrics.ActiveSessions.Dec()
	})
	return r
}

// Open 返回会话句柄：先查缓存，再从快照恢复，都没有时新建
// 同一 ID 的并发 Open 只加载一次。
func (r *Registry) Open(ctx context.Context, id string) (*Handle, error) {
	if id == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("session id is required")
	}
	ctx = logger.WithContext(ctx, logger.SessionIDKey, id)

	if h, ok := r.lookup(id); ok {
		return h, nil
	}

	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		if h, ok := r.lookup(id); ok {
			return h, nil
		}
		m, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}
		h := &Handle{id: id, manager: m}
		if err := r.sessions.Add(id, h, cache.DefaultExpiration); err != nil {
			// 已被其他调用写入
			if existing, ok := r.lookup(id); ok {
				return existing, nil
			}
			return nil, apperrors.ErrInternalError.WithError(err)
		}
		metrics.ActiveSessions.Inc()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (r *Registry) lookup(id string) (*Handle, bool) {
	v, ok := r.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Handle), true
}

func (r *Registry) load(ctx context.Context, id string) (*Manager, error) {
	m, err := r.factory()
	if err != nil {
		return nil, err
	}
	if r.store == nil {
		return m, nil
	}

	data, err := r.store.Load(ctx, id)
	metrics.SnapshotOps.WithLabelValues("load", metrics.StatusLabel(err)).Inc()
	if err != nil {
		logger.Error(ctx, "failed to load session snapshot", err)
		return nil, err
	}
	if data == nil {
		logger.Debug(ctx, "session created")
		return m, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.ErrInternalError.WithDetail("decode session snapshot").WithError(err)
	}
	if err := m.Restore(&snap); err != nil {
		return nil, err
	}
	logger.Debug(ctx, "session restored", "bytes", len(data))
	return m, nil
}

// Save 持久化会话快照；未配置存储时为空操作
func (r *Registry) Save(ctx context.Context, id string) error {
	h, ok := r.lookup(id)
	if !ok {
		return apperrors.ErrSessionNotFound.WithDetail(id)
	}
	if r.store == nil {
		return nil
	}

	var data []byte
	err := h.Do(func(m *Manager) error {
		var err error
		data, err = json.Marshal(m.Snapshot())
		return err
	})
	if err != nil {
		return apperrors.ErrInternalError.WithDetail("encode session snapshot").WithError(err)
	}

	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	err = r.store.Save(ctx, id, data, ttl)
	metrics.SnapshotOps.WithLabelValues("save", metrics.StatusLabel(err)).Inc()
	if err != nil {
		logger.Error(logger.WithContext(ctx, logger.SessionIDKey, id), "failed to save session snapshot", err)
		return err
	}
	return nil
}

// Close 保存并移出缓存
func (r *Registry) Close(ctx context.Context, id string) error {
	if err := r.Save(ctx, id); err != nil {
		return err
	}
	r.sessions.Delete(id)
	return nil
}

// Discard 移出缓存并删除快照
func (r *Registry) Discard(ctx context.Context, id string) error {
	r.sessions.Delete(id)
	if r.store == nil {
		return nil
	}
	return r.store.Delete(ctx, id)
}

// Len 当前缓存中的会话数
func (r *Registry) Len() int {
	return r.sessions.ItemCount()
}
