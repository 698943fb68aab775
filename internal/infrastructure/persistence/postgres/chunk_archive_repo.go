package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-context/internal/domain/entity"
	"z-novel-context/internal/domain/repository"
	apperrors "z-novel-context/pkg/errors"
)

// chunkArchive 分片分析的归档行；数组列使用 text[]，派生结构使用 jsonb
type chunkArchive struct {
	ManuscriptID  string         `gorm:"primaryKey;type:text"`
	ChunkID       string         `gorm:"primaryKey;type:text"`
	ChunkIndex    int            `gorm:"not null;index"`
	Content       string         `gorm:"type:text;not null"`
	StartPosition int            `gorm:"not null"`
	EndPosition   int            `gorm:"not null"`
	Overlap       string         `gorm:"type:text"`
	Characters    pq.StringArray `gorm:"type:text[]"`
	Locations     pq.StringArray `gorm:"type:text[]"`
	Timeframe     string         `gorm:"type:text"`
	KeyEvents     pq.StringArray `gorm:"type:text[]"`
	RelatedChunks pq.StringArray `gorm:"type:text[]"`
	Metadata      []byte         `gorm:"type:jsonb"`
	Elements      []byte         `gorm:"type:jsonb"`
	CreatedAt     time.Time
}

func (chunkArchive) TableName() string {
	return "chunk_archives"
}

// ChunkArchiveRepository 分片归档仓储实现
type ChunkArchiveRepository struct {
	client *Client
	tx     repository.Transactor
}

var _ repository.ChunkArchiveRepository = (*ChunkArchiveRepository)(nil)

// NewChunkArchiveRepository 创建分片归档仓储
func NewChunkArchiveRepository(client *Client) *ChunkArchiveRepository {
	return &ChunkArchiveRepository{client: client, tx: NewTxManager(client)}
}

// Migrate 创建/更新归档表
func (r *ChunkArchiveRepository) Migrate(ctx context.Context) error {
	if err := r.client.DB().WithContext(ctx).AutoMigrate(&chunkArchive{}); err != nil {
		return apperrors.ErrDatabase.WithDetail("migrate chunk_archives").WithError(err)
	}
	return nil
}

// SaveManuscript 在事务中替换某文稿的全部归档
func (r *ChunkArchiveRepository) SaveManuscript(ctx context.Context, manuscriptID string, analyses []*entity.ChunkAnalysis) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkArchiveRepository.SaveManuscript",
		trace.WithAttributes(
			attribute.String("manuscript.id", manuscriptID),
			attribute.Int("manuscript.chunks", len(analyses)),
		))
	defer span.End()

	rows := make([]*chunkArchive, 0, len(analyses))
	for _, a := range analyses {
		row, err := toArchive(manuscriptID, a)
		if err != nil {
			span.RecordError(err)
			return err
		}
		rows = append(rows, row)
	}

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		db := getDB(ctx, r.client.DB())
		if err := db.Where("manuscript_id = ?", manuscriptID).Delete(&chunkArchive{}).Error; err != nil {
			return fmt.Errorf("failed to clear chunk archive: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := db.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("failed to insert chunk archive: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return apperrors.ErrDatabase.WithDetail("save manuscript " + manuscriptID).WithError(err)
	}
	return nil
}

// ListByManuscript 按分片顺序读取归档
func (r *ChunkArchiveRepository) ListByManuscript(ctx context.Context, manuscriptID string) ([]*entity.ChunkAnalysis, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkArchiveRepository.ListByManuscript",
		trace.WithAttributes(attribute.String("manuscript.id", manuscriptID)))
	defer span.End()

	var rows []*chunkArchive
	db := getDB(ctx, r.client.DB())
	if err := db.Where("manuscript_id = ?", manuscriptID).Order("chunk_index ASC").Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.ErrDatabase.WithDetail("list manuscript " + manuscriptID).WithError(err)
	}

	out := make([]*entity.ChunkAnalysis, 0, len(rows))
	for _, row := range rows {
		a, err := fromArchive(row)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// DeleteManuscript 删除某文稿的全部归档
func (r *ChunkArchiveRepository) DeleteManuscript(ctx context.Context, manuscriptID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkArchiveRepository.DeleteManuscript",
		trace.WithAttributes(attribute.String("manuscript.id", manuscriptID)))
	defer span.End()

	db := getDB(ctx, r.client.DB())
	if err := db.Where("manuscript_id = ?", manuscriptID).Delete(&chunkArchive{}).Error; err != nil {
		span.RecordError(err)
		return apperrors.ErrDatabase.WithDetail("delete manuscript " + manuscriptID).WithError(err)
	}
	return nil
}

func toArchive(manuscriptID string, a *entity.ChunkAnalysis) (*chunkArchive, error) {
	if a == nil || a.Chunk == nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("analysis without chunk")
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chunk metadata: %w", err)
	}
	elements, err := json.Marshal(a.ContextualElements)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal contextual elements: %w", err)
	}

	c := a.Chunk
	return &chunkArchive{
		ManuscriptID:  manuscriptID,
		ChunkID:       c.ID,
		ChunkIndex:    c.Index,
		Content:       c.Content,
		StartPosition: c.StartPosition,
		EndPosition:   c.EndPosition,
		Overlap:       c.Overlap,
		Characters:    pq.StringArray(nonNil(c.Characters)),
		Locations:     pq.StringArray(nonNil(c.Locations)),
		Timeframe:     c.Timeframe,
		KeyEvents:     pq.StringArray(nonNil(c.KeyEvents)),
		RelatedChunks: pq.StringArray(nonNil(a.RelatedChunks)),
		Metadata:      meta,
		Elements:      elements,
	}, nil
}

func fromArchive(row *chunkArchive) (*entity.ChunkAnalysis, error) {
	a := &entity.ChunkAnalysis{
		Chunk: &entity.TextChunk{
			ID:            row.ChunkID,
			Index:         row.ChunkIndex,
			Content:       row.Content,
			StartPosition: row.StartPosition,
			EndPosition:   row.EndPosition,
			Overlap:       row.Overlap,
			Characters:    nonNil(row.Characters),
			Locations:     nonNil(row.Locations),
			Timeframe:     row.Timeframe,
			KeyEvents:     nonNil(row.KeyEvents),
		},
		RelatedChunks: nonNil(row.RelatedChunks),
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk metadata: %w", err)
		}
	}
	if len(row.Elements) > 0 {
		if err := json.Unmarshal(row.Elements, &a.ContextualElements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contextual elements: %w", err)
		}
	}
	return a, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}
