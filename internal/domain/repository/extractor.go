package repository

import (
	"context"

	"z-novel-context/internal/domain/entity"
)

// EntityExtractor 实体抽取协作方（人名/地名/日期/情感），其准确度不在本层保证范围内
type EntityExtractor interface {
	Extract(ctx context.Context, text string) (*entity.ExtractedEntities, error)
}

// EntityExtractorFunc 函数适配器
type EntityExtractorFunc func(ctx context.Context, text string) (*entity.ExtractedEntities, error)

// Extract 实现 EntityExtractor
func (f EntityExtractorFunc) Extract(ctx context.Context, text string) (*entity.ExtractedEntities, error) {
	return f(ctx, text)
}
