// Package entity 定义领域实体
package entity

// ChunkOptions 切分参数；所有字段在调用时必须显式给出
type ChunkOptions struct {
	// MaxChunkSize 单个分片的估算 token 上限
	MaxChunkSize int `json:"max_chunk_size"`
	// OverlapSize 从上一分片带入的估算 token 数，0 表示不重叠
	OverlapSize      int  `json:"overlap_size"`
	PreserveScenes   bool `json:"preserve_scenes"`
	PreserveChapters bool `json:"preserve_chapters"`
	ContextWindow    int  `json:"context_window"`
}

// TextChunk 文稿分片
// StartPosition/EndPosition 为源文本的字节偏移，[start, end)。
type TextChunk struct {
	ID            string `json:"id"`
	Index         int    `json:"index"`
	Content       string `json:"content"`
	StartPosition int    `json:"start_position"`
	EndPosition   int    `json:"end_position"`
	// Overlap 为上一分片尾部的只读副本，不计入偏移
	Overlap string `json:"overlap,omitempty"`

	Characters []string `json:"characters"`
	Locations  []string `json:"locations"`
	Timeframe  string   `json:"timeframe,omitempty"`
	KeyEvents  []string `json:"key_events"`
}

// Contains 判断偏移是否落在分片范围内
func (c *TextChunk) Contains(position int) bool {
	return c != nil && position >= c.StartPosition && position < c.EndPosition
}

// ExtractedEntities 实体抽取协作方的返回值
type ExtractedEntities struct {
	People         []string `json:"people"`
	Places         []string `json:"places"`
	Dates          []string `json:"dates"`
	SentimentScore float64  `json:"sentiment_score"`
}

// SignificantElements 分片内的显著元素
type SignificantElements struct {
	Characters []string `json:"characters"`
	Locations  []string `json:"locations"`
	Objects    []string `json:"objects"`
	Events     []string `json:"events"`
}

// ContextualReferences 分片内指向前后文的线索
type ContextualReferences struct {
	PastEvents    []string `json:"past_events"`
	FutureSetups  []string `json:"future_setups"`
	CharacterArcs []string `json:"character_arcs"`
}

// ChunkMetadata 分片派生元数据
type ChunkMetadata struct {
	WordCount            int                  `json:"word_count"`
	TokenCount           int                  `json:"token_count"`
	Sentiment            float64              `json:"sentiment"`
	SignificantElements  SignificantElements  `json:"significant_elements"`
	ContextualReferences ContextualReferences `json:"contextual_references"`
}

// ChunkAnalysis 单个分片的索引结果（与 TextChunk 一一对应）
type ChunkAnalysis struct {
	Chunk              *TextChunk          `json:"chunk"`
	Metadata           ChunkMetadata       `json:"metadata"`
	ContextualElements []ContextualElement `json:"contextual_elements"`
	RelatedChunks      []string            `json:"related_chunks"`
}

// Clone 深拷贝分片
func (c *TextChunk) Clone() *TextChunk {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Characters = cloneStrings(c.Characters)
	cp.Locations = cloneStrings(c.Locations)
	cp.KeyEvents = cloneStrings(c.KeyEvents)
	return &cp
}

// Clone 深拷贝分析结果
func (a *ChunkAnalysis) Clone() *ChunkAnalysis {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Chunk = a.Chunk.Clone()
	cp.Metadata.SignificantElements = SignificantElements{
		Characters: cloneStrings(a.Metadata.SignificantElements.Characters),
		Locations:  cloneStrings(a.Metadata.SignificantElements.Locations),
		Objects:    cloneStrings(a.Metadata.SignificantElements.Objects),
		Events:     cloneStrings(a.Metadata.SignificantElements.Events),
	}
	cp.Metadata.ContextualReferences = ContextualReferences{
		PastEvents:    cloneStrings(a.Metadata.ContextualReferences.PastEvents),
		FutureSetups:  cloneStrings(a.Metadata.ContextualReferences.FutureSetups),
		CharacterArcs: cloneStrings(a.Metadata.ContextualReferences.CharacterArcs),
	}
	if a.ContextualElements != nil {
		cp.ContextualElements = append([]ContextualElement(nil), a.ContextualElements...)
	}
	cp.RelatedChunks = cloneStrings(a.RelatedChunks)
	return &cp
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
