package manuscript

import (
	"fmt"
	"strings"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

// flushReason 分片结束的原因
type flushReason int

const (
	flushSize flushReason = iota
	flushStructure
	flushFinal
)

type span struct {
	start int
	end   int
}

// ValidateOptions 校验切分参数；核心不提供隐式默认值
func ValidateOptions(opts entity.ChunkOptions) error {
	switch {
	case opts.MaxChunkSize <= 0:
		return apperrors.ErrInvalidParam.WithDetail("max_chunk_size must be positive")
	case opts.OverlapSize < 0:
		return apperrors.ErrInvalidParam.WithDetail("overlap_size must not be negative")
	case opts.ContextWindow < 0:
		return apperrors.ErrInvalidParam.WithDetail("context_window must not be negative")
	}
	return nil
}

// segment 按段落累积切分，返回有序的源文本范围
//
// 新分片的起点：估算 token 将超过 MaxChunkSize；或开启 PreserveScenes 且遇到场景分隔行；
// 或开启 PreserveChapters 且遇到章节标题。分隔行/标题行归入新分片。
func segment(text string, opts entity.ChunkOptions) []span {
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil
	}

	spans := make([]span, 0, len(paras)/4+1)
	cur := span{start: paras[0].start, end: paras[0].end}

	for _, p := range paras[1:] {
		if startsStructure(p.text, opts) {
			spans = append(spans, refine(text, cur, flushStructure))
			cur = span{start: p.start, end: p.end}
			continue
		}
		if estimateTokens(text[cur.start:p.end]) <= opts.MaxChunkSize {
			cur.end = p.end
			continue
		}

		done := refine(text, cur, flushSize)
		spans = append(spans, done)
		if done.end < cur.end {
			// 未完成的句子带入下一分片
			cur = span{start: skipSpace(text, done.end, cur.end), end: p.end}
		} else {
			cur = span{start: p.start, end: p.end}
		}
	}
	spans = append(spans, refine(text, cur, flushFinal))
	return spans
}

func startsStructure(line string, opts entity.ChunkOptions) bool {
	if opts.PreserveScenes && isSceneBreak(line) {
		return true
	}
	return opts.PreserveChapters && isChapterHeading(line)
}

// refine 将按体积截断的分片收缩到最后一个完整句子；结构边界和文末本身就是段落结尾
func refine(text string, s span, reason flushReason) span {
	if reason != flushSize {
		return s
	}
	cut := lastSentenceEnd(text[s.start:s.end])
	if cut <= 0 {
		return s
	}
	return span{start: s.start, end: s.start + cut}
}

// buildChunks 将范围转换为分片
func buildChunks(text string, spans []span) []*entity.TextChunk {
	chunks := make([]*entity.TextChunk, 0, len(spans))
	for _, s := range spans {
		content := text[s.start:s.end]
		if strings.TrimSpace(content) == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, &entity.TextChunk{
			ID:            fmt.Sprintf("chunk_%d", idx),
			Index:         idx,
			Content:       content,
			StartPosition: s.start,
			EndPosition:   s.end,
		})
	}
	return chunks
}

// applyOverlap 把上一分片尾部约 overlapSize 个 token 的文本复制到 Overlap，按词首对齐
func applyOverlap(chunks []*entity.TextChunk, overlapSize int) {
	if overlapSize <= 0 {
		return
	}
	limit := overlapSize * charsPerToken
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Content)
		if len(prev) <= limit {
			chunks[i].Overlap = strings.TrimSpace(string(prev))
			continue
		}
		tail := string(prev[len(prev)-limit:])
		if sp := strings.IndexAny(tail, " \t\n"); sp >= 0 && sp < len(tail)-1 {
			tail = tail[sp+1:]
		}
		chunks[i].Overlap = strings.TrimSpace(tail)
	}
}
