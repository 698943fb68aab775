// Package session 把分片索引、推理日志和 Prompt 组装器组合成一个分析会话
package session

import (
	"context"

	"z-novel-context/internal/application/manuscript"
	"z-novel-context/internal/application/reasoning"
	"z-novel-context/internal/domain/entity"
	"z-novel-context/internal/domain/repository"
	"z-novel-context/internal/workflow/prompt"
	apperrors "z-novel-context/pkg/errors"
)

// Manager 一个分析会话的全部状态，不是并发安全的（并发访问通过 Handle.Do 串行化）
type Manager struct {
	indexer   *manuscript.Indexer
	log       *reasoning.Log
	assembler *prompt.Assembler
	window    int
}

// NewManager 创建会话；window 为按位置组装 Prompt 时的窗口大小，assembler 为 nil 时使用内置模板包
func NewManager(extractor repository.EntityExtractor, assembler *prompt.Assembler, window int) *Manager {
	if assembler == nil {
		// 内置模板包随二进制嵌入，加载失败时退回空注册表
		def, err := prompt.NewDefaultAssembler()
		if err != nil {
			def = prompt.NewAssembler(nil)
		}
		assembler = def
	}
	if window < 0 {
		window = manuscript.DefaultWindowSize
	}
	return &Manager{
		indexer:   manuscript.NewIndexer(extractor),
		log:       reasoning.NewLog(),
		assembler: assembler,
		window:    window,
	}
}

// Indexer 分片索引
func (m *Manager) Indexer() *manuscript.Indexer { return m.indexer }

// Log 推理日志
func (m *Manager) Log() *reasoning.Log { return m.log }

// Assembler Prompt 组装器
func (m *Manager) Assembler() *prompt.Assembler { return m.assembler }

// ChunkManuscript 切分并索引文稿（清空之前的分片）
func (m *Manager) ChunkManuscript(ctx context.Context, text string, opts entity.ChunkOptions) ([]*entity.TextChunk, error) {
	return m.indexer.ChunkManuscript(ctx, text, opts)
}

// ProcessThought 向推理日志记录一个分析步骤
func (m *Manager) ProcessThought(ctx context.Context, in reasoning.ThoughtInput) (*entity.StoryAnalysisThought, error) {
	return m.log.ProcessThought(ctx, in)
}

// PromptForPosition 取 position 附近的分片，合并为上下文窗口后按模板组装
func (m *Manager) PromptForPosition(ctx context.Context, templateName string, position int, focus entity.Focus, local []entity.PromptConstraint) (*entity.DynamicPrompt, error) {
	analyses, err := m.indexer.GetContextForPosition(position, m.window)
	if err != nil {
		return nil, err
	}
	windows := make([]entity.ContextWindow, 0, len(analyses))
	for _, a := range analyses {
		windows = append(windows, m.assembler.IntegrateChunkAnalysis(a))
	}
	return m.assembler.CreatePrompt(ctx, templateName, focus, prompt.MergeWindows(windows...), local)
}

// PromptForLatestThought 以当前分支最后一个节点为焦点组装顺序分析 Prompt
func (m *Manager) PromptForLatestThought(ctx context.Context) (*entity.DynamicPrompt, error) {
	history := m.log.ThoughtHistory()
	if len(history) == 0 {
		return nil, apperrors.ErrNotFound.WithDetail("branch " + m.log.CurrentBranch() + " has no thoughts")
	}
	return m.assembler.CreateSequentialPrompt(ctx, history[len(history)-1], history)
}

// Snapshot 会话的可持久化部分；分片每次调用都会重建，不保存
type Snapshot struct {
	Log               *reasoning.Snapshot                `json:"log"`
	ContextHistory    map[string][]entity.ContextElement `json:"context_history,omitempty"`
	GlobalConstraints []entity.PromptConstraint          `json:"global_constraints,omitempty"`
}

// Snapshot 导出推理日志、上下文历史与全局约束
func (m *Manager) Snapshot() *Snapshot {
	return &Snapshot{
		Log:               m.log.Snapshot(),
		ContextHistory:    m.assembler.ContextHistorySnapshot(),
		GlobalConstraints: m.assembler.GlobalConstraints(),
	}
}

// Restore 用快照替换推理日志与上下文历史，并补充全局约束
func (m *Manager) Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	log, err := reasoning.RestoreLog(snap.Log)
	if err != nil {
		return err
	}
	m.log = log
	m.assembler.RestoreContextHistory(snap.ContextHistory)
	for _, c := range snap.GlobalConstraints {
		m.assembler.AddGlobalConstraint(c)
	}
	return nil
}
