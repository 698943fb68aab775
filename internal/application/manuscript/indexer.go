// Package manuscript 实现文稿切分与分片关系索引。
//
// Indexer 不是并发安全的：一个实例对应一个分析会话，由调用方串行访问。
package manuscript

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"z-novel-context/internal/domain/entity"
	"z-novel-context/internal/domain/repository"
	apperrors "z-novel-context/pkg/errors"
	"z-novel-context/pkg/logger"
	"z-novel-context/pkg/metrics"
	"z-novel-context/pkg/tracer"
)

// DefaultWindowSize 按位置检索时常用的窗口大小
const DefaultWindowSize = 2

// Indexer 分片存储 + 关系索引；每次 ChunkManuscript 都会清空并重建
type Indexer struct {
	extractor repository.EntityExtractor

	chunks   []*entity.TextChunk
	analyses map[string]*entity.ChunkAnalysis
}

// NewIndexer 创建索引器；extractor 为 nil 时所有分片的实体为空
func NewIndexer(extractor repository.EntityExtractor) *Indexer {
	if extractor == nil {
		extractor = repository.EntityExtractorFunc(func(context.Context, string) (*entity.ExtractedEntities, error) {
			return &entity.ExtractedEntities{}, nil
		})
	}
	return &Indexer{
		extractor: extractor,
		analyses:  make(map[string]*entity.ChunkAnalysis),
	}
}

// ChunkManuscript 切分文稿、抽取实体并建立分片关系
// 空文本返回零个分片且不报错；抽取失败时中止，存储保持为空。
func (i *Indexer) ChunkManuscript(ctx context.Context, text string, opts entity.ChunkOptions) ([]*entity.TextChunk, error) {
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}

	ctx, span := tracer.StartWithAttrs(ctx, "manuscript.ChunkManuscript",
		attribute.Int("manuscript.length", len(text)),
		attribute.Int("chunking.max_chunk_size", opts.MaxChunkSize),
	)
	defer span.End()

	i.reset()
	if strings.TrimSpace(text) == "" {
		return []*entity.TextChunk{}, nil
	}

	start := time.Now()
	chunks := buildChunks(text, segment(text, opts))
	applyOverlap(chunks, opts.OverlapSize)

	analyses := make([]*entity.ChunkAnalysis, 0, len(chunks))
	for _, chunk := range chunks {
		ents, err := i.extract(ctx, chunk)
		if err != nil {
			tracer.Fail(span, err)
			return nil, err
		}
		analyses = append(analyses, analyzeChunk(chunk, ents))
	}
	buildRelations(analyses)

	i.chunks = chunks
	for _, a := range analyses {
		i.analyses[a.Chunk.ID] = a
		metrics.ChunkTokens.Observe(float64(a.Metadata.TokenCount))
		metrics.ChunkRelations.Observe(float64(len(a.RelatedChunks)))
	}
	metrics.ChunksProduced.Add(float64(len(chunks)))
	span.SetAttributes(attribute.Int("manuscript.chunks", len(chunks)))

	logger.Debug(ctx, "manuscript chunked",
		"chunks", len(chunks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return i.Chunks(), nil
}

func (i *Indexer) extract(ctx context.Context, chunk *entity.TextChunk) (*entity.ExtractedEntities, error) {
	ctx, span := tracer.StartWithAttrs(ctx, "manuscript.extract", attribute.String("chunk.id", chunk.ID))
	defer span.End()

	ents, err := i.extractor.Extract(ctx, chunk.Content)
	if err != nil {
		metrics.ExtractionFailures.Inc()
		tracer.Fail(span, err)
		logger.Warn(ctx, "entity extraction failed", "chunk_id", chunk.ID, "error", err.Error())
		return nil, apperrors.ErrExtractionFailed.WithDetail("chunk " + chunk.ID).WithError(err)
	}
	return ents, nil
}

func (i *Indexer) reset() {
	i.chunks = nil
	i.analyses = make(map[string]*entity.ChunkAnalysis)
}

// buildRelations 两个分片共享角色、共享地点，或关键事件互为子串（忽略大小写）即相关
// 每个方向单独计算，结果按分片顺序排列。
func buildRelations(analyses []*entity.ChunkAnalysis) {
	for _, a := range analyses {
		related := make([]string, 0)
		for _, b := range analyses {
			if a == b {
				continue
			}
			if isRelated(a.Chunk, b.Chunk) {
				related = append(related, b.Chunk.ID)
			}
		}
		a.RelatedChunks = related
	}
}

func isRelated(a, b *entity.TextChunk) bool {
	return sharesName(a.Characters, b.Characters) ||
		sharesName(a.Locations, b.Locations) ||
		eventsOverlap(a.KeyEvents, b.KeyEvents)
}

func sharesName(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}

func eventsOverlap(a, b []string) bool {
	for _, x := range a {
		lx := normalizeEvent(x)
		if lx == "" {
			continue
		}
		for _, y := range b {
			ly := normalizeEvent(y)
			if ly == "" {
				continue
			}
			if strings.Contains(lx, ly) || strings.Contains(ly, lx) {
				return true
			}
		}
	}
	return false
}

// normalizeEvent 小写并去掉句末标点
func normalizeEvent(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ".!?。！？\"'”’) "))
}

// GetContextForPosition 返回 position 所在分片前后 windowSize 个分片的分析结果
//
// position 是源文本字节偏移，用于定位中心分片；窗口按分片序号展开。
// 结果按到 position 的距离升序（位于分片内为 0，否则取到最近边界的距离），距离相同按序号。
// position 落在分片间隙时取其后的分片，越界时取首/末分片。
func (i *Indexer) GetContextForPosition(position, windowSize int) ([]*entity.ChunkAnalysis, error) {
	if windowSize < 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("window_size must not be negative")
	}
	if len(i.chunks) == 0 {
		return []*entity.ChunkAnalysis{}, nil
	}

	center := i.locate(position)
	lo := max(0, center-windowSize)
	hi := min(len(i.chunks)-1, center+windowSize)

	window := make([]*entity.ChunkAnalysis, 0, hi-lo+1)
	for idx := lo; idx <= hi; idx++ {
		window = append(window, i.analyses[i.chunks[idx].ID].Clone())
	}
	sort.SliceStable(window, func(a, b int) bool {
		da, db := distance(window[a].Chunk, position), distance(window[b].Chunk, position)
		if da != db {
			return da < db
		}
		return window[a].Chunk.Index < window[b].Chunk.Index
	})
	return window, nil
}

// locate 返回包含 position 的分片序号
func (i *Indexer) locate(position int) int {
	idx := sort.Search(len(i.chunks), func(n int) bool {
		return i.chunks[n].EndPosition > position
	})
	if idx == len(i.chunks) {
		return len(i.chunks) - 1
	}
	return idx
}

func distance(c *entity.TextChunk, position int) int {
	switch {
	case c.Contains(position):
		return 0
	case position < c.StartPosition:
		return c.StartPosition - position
	default:
		return position - c.EndPosition + 1
	}
}

// Chunks 按顺序返回当前分片（副本）
func (i *Indexer) Chunks() []*entity.TextChunk {
	out := make([]*entity.TextChunk, 0, len(i.chunks))
	for _, c := range i.chunks {
		out = append(out, c.Clone())
	}
	return out
}

// Analyses 按分片顺序返回分析结果（副本）
func (i *Indexer) Analyses() []*entity.ChunkAnalysis {
	out := make([]*entity.ChunkAnalysis, 0, len(i.chunks))
	for _, c := range i.chunks {
		out = append(out, i.analyses[c.ID].Clone())
	}
	return out
}

// Analysis 按 ID 获取分析结果
func (i *Indexer) Analysis(id string) (*entity.ChunkAnalysis, bool) {
	a, ok := i.analyses[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// RelatedChunks 返回与指定分片相关的分片 ID
func (i *Indexer) RelatedChunks(id string) []string {
	a, ok := i.analyses[id]
	if !ok {
		return nil
	}
	return append([]string(nil), a.RelatedChunks...)
}
