package repository

import (
	"context"

	"z-novel-context/internal/domain/entity"
)

// ChunkArchiveRepository 分片索引归档仓储（核心本身不跨调用持久化分片）
type ChunkArchiveRepository interface {
	// SaveManuscript 以整体替换的方式保存某文稿的全部分片分析
	SaveManuscript(ctx context.Context, manuscriptID string, analyses []*entity.ChunkAnalysis) error
	// ListByManuscript 按分片顺序返回归档
	ListByManuscript(ctx context.Context, manuscriptID string) ([]*entity.ChunkAnalysis, error)
	// DeleteManuscript 删除某文稿的全部归档
	DeleteManuscript(ctx context.Context, manuscriptID string) error
}
