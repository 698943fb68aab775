// Package reasoning 实现可分支的顺序推理日志。
//
// 修订会派生新分支并切换过去，合并只生成新分支而不切换；已追加的节点不可变。
// Log 不是并发安全的，由会话层串行访问。
package reasoning

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
	"z-novel-context/pkg/logger"
	"z-novel-context/pkg/metrics"
)

// MainBranch 初始分支
const MainBranch = "main"

const (
	revisionPrefix = "revision-"
	mergePrefix    = "merge-"
)

// Log 分支名 -> 节点序列，外加当前分支指针
type Log struct {
	branches map[string][]*entity.StoryAnalysisThought
	order    []string
	current  string
}

// NewLog 创建只含空 main 分支的日志
func NewLog() *Log {
	return &Log{
		branches: map[string][]*entity.StoryAnalysisThought{MainBranch: {}},
		order:    []string{MainBranch},
		current:  MainBranch,
	}
}

// ProcessThought 校验并记录一个分析步骤
//
// 非修订节点追加到当前分支；修订节点以当前分支 [0, revisesThought-1) 为前缀派生新分支并切换。
// totalThoughts 自动上调到不小于 thoughtNumber 和当前分支最后一个节点的 totalThoughts。
func (l *Log) ProcessThought(ctx context.Context, in ThoughtInput) (*entity.StoryAnalysisThought, error) {
	kind := "append"
	if in.IsRevision {
		kind = "revision"
	}
	if err := validateInput(in); err != nil {
		metrics.ThoughtsProcessed.WithLabelValues(kind, metrics.StatusLabel(err)).Inc()
		return nil, err
	}

	history := l.branches[l.current]
	total := max(in.TotalThoughts, in.ThoughtNumber)
	if n := len(history); n > 0 {
		total = max(total, history[n-1].TotalThoughts)
	}

	node := &entity.StoryAnalysisThought{
		Thought:           in.Thought,
		ThoughtNumber:     in.ThoughtNumber,
		TotalThoughts:     total,
		IsRevision:        in.IsRevision,
		RevisesThought:    in.RevisesThought,
		NextThoughtNeeded: in.NextThoughtNeeded,
		NarrativeContext:  cloneNarrative(in.NarrativeContext),
	}

	if in.IsRevision {
		keep := min(max(in.RevisesThought-1, 0), len(history))
		seq := make([]*entity.StoryAnalysisThought, 0, keep+1)
		seq = append(seq, history[:keep]...)
		seq = append(seq, node)

		name := revisionPrefix + uuid.NewString()
		l.store(name, seq)
		logger.Debug(ctx, "revision branch created",
			"from", l.current, "branch", name, "revises", in.RevisesThought)
		l.current = name
	} else {
		l.store(l.current, append(history[:len(history):len(history)], node))
	}

	metrics.ThoughtsProcessed.WithLabelValues(kind, "ok").Inc()
	return cloneThought(node), nil
}

// store 写入分支；新名字追加到顺序表末尾
func (l *Log) store(name string, seq []*entity.StoryAnalysisThought) {
	if _, ok := l.branches[name]; !ok {
		l.order = append(l.order, name)
	}
	l.branches[name] = seq
}

// Branches 按创建顺序返回分支名
func (l *Log) Branches() []string {
	return append([]string(nil), l.order...)
}

// CurrentBranch 返回当前分支名
func (l *Log) CurrentBranch() string {
	return l.current
}

// SwitchBranch 分支存在时切换并返回 true
func (l *Log) SwitchBranch(name string) bool {
	if _, ok := l.branches[name]; !ok {
		return false
	}
	l.current = name
	return true
}

// ThoughtHistory 返回当前分支的节点（副本）
func (l *Log) ThoughtHistory() []*entity.StoryAnalysisThought {
	return cloneThoughts(l.branches[l.current])
}

// BranchHistory 返回指定分支的节点（副本）
func (l *Log) BranchHistory(name string) ([]*entity.StoryAnalysisThought, bool) {
	seq, ok := l.branches[name]
	if !ok {
		return nil, false
	}
	return cloneThoughts(seq), true
}

// MergeBranches 以 source[0, atThought-1) 接上 target[atThought-1, end) 生成新分支
//
// 两个输入分支都不会被修改，当前分支也不切换。任一分支不存在时返回 false。
// atThought 超出范围时截断到 [1, len+1]。
func (l *Log) MergeBranches(ctx context.Context, source, target string, atThought int) (string, bool) {
	src, okSrc := l.branches[source]
	tgt, okTgt := l.branches[target]
	if !okSrc || !okTgt {
		metrics.BranchMerges.WithLabelValues("not_found").Inc()
		logger.Debug(ctx, "merge rejected: unknown branch", "source", source, "target", target)
		return "", false
	}

	cut := max(atThought-1, 0)
	head := min(cut, len(src))
	tail := min(cut, len(tgt))

	merged := make([]*entity.StoryAnalysisThought, 0, head+len(tgt)-tail)
	merged = append(merged, src[:head]...)
	merged = append(merged, tgt[tail:]...)

	name := mergePrefix + uuid.NewString()
	l.store(name, merged)
	metrics.BranchMerges.WithLabelValues("ok").Inc()
	logger.Debug(ctx, "branches merged",
		"source", source, "target", target, "at", atThought, "branch", name, "length", len(merged))
	return name, true
}

// Snapshot 日志的可序列化形式
type Snapshot struct {
	Current  string          `json:"current"`
	Branches []entity.Branch `json:"branches"`
}

// Snapshot 导出全部分支（按创建顺序）
func (l *Log) Snapshot() *Snapshot {
	snap := &Snapshot{Current: l.current, Branches: make([]entity.Branch, 0, len(l.order))}
	for _, name := range l.order {
		snap.Branches = append(snap.Branches, entity.Branch{Name: name, Thoughts: cloneThoughts(l.branches[name])})
	}
	return snap
}

// RestoreLog 由快照重建日志；nil 快照得到新日志
func RestoreLog(snap *Snapshot) (*Log, error) {
	l := NewLog()
	if snap == nil {
		return l, nil
	}
	for _, b := range snap.Branches {
		if b.Name == "" {
			return nil, apperrors.ErrInvalidParam.WithDetail("snapshot contains an unnamed branch")
		}
		seq := cloneThoughts(b.Thoughts)
		if seq == nil {
			seq = []*entity.StoryAnalysisThought{}
		}
		l.store(b.Name, seq)
	}
	if snap.Current != "" && !l.SwitchBranch(snap.Current) {
		return nil, apperrors.ErrBranchNotFound.WithDetail(fmt.Sprintf("snapshot current branch %q", snap.Current))
	}
	return l, nil
}

func cloneThoughts(in []*entity.StoryAnalysisThought) []*entity.StoryAnalysisThought {
	if in == nil {
		return nil
	}
	out := make([]*entity.StoryAnalysisThought, len(in))
	for i, t := range in {
		out[i] = cloneThought(t)
	}
	return out
}

func cloneThought(t *entity.StoryAnalysisThought) *entity.StoryAnalysisThought {
	if t == nil {
		return nil
	}
	cp := *t
	cp.NarrativeContext = cloneNarrative(t.NarrativeContext)
	return &cp
}

func cloneNarrative(nc *entity.NarrativeContext) *entity.NarrativeContext {
	if nc == nil {
		return nil
	}
	return &entity.NarrativeContext{
		FocusScene: nc.FocusScene,
		Themes:     append([]string(nil), nc.Themes...),
		Characters: append([]string(nil), nc.Characters...),
		PlotPoints: append([]string(nil), nc.PlotPoints...),
	}
}
