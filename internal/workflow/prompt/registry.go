package prompt

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

//go:embed templates/default.yaml
var defaultPackYAML []byte

// SequentialTemplate 推理日志使用的模板名
const SequentialTemplate = "sequential_analysis"

// Pack 一个 YAML 模板包
type Pack struct {
	Templates         []entity.PromptTemplate   `yaml:"templates"`
	GlobalConstraints []entity.PromptConstraint `yaml:"global_constraints"`
	Render            RenderTemplates           `yaml:"render"`
}

// RenderTemplates 渲染消息时使用的 user 模板
type RenderTemplates struct {
	User string `yaml:"user"`
}

// ParsePack 解析模板包；未知字段视为错误
func ParsePack(r io.Reader) (*Pack, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pack Pack
	if err := dec.Decode(&pack); err != nil {
		if errors.Is(err, io.EOF) {
			return &pack, nil
		}
		return nil, apperrors.ErrInvalidParam.WithDetail("template pack").WithError(err)
	}
	for i := range pack.Templates {
		t := &pack.Templates[i]
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("template #%d has no name", i))
		}
		t.BaseStructure = strings.TrimSpace(t.BaseStructure)
	}
	for i := range pack.GlobalConstraints {
		pack.GlobalConstraints[i].Scope = entity.ScopeGlobal
	}
	pack.Render.User = strings.TrimSpace(pack.Render.User)
	return &pack, nil
}

var loadDefaultPack = sync.OnceValues(func() (*Pack, error) {
	return ParsePack(bytes.NewReader(defaultPackYAML))
})

// DefaultPack 返回内置模板包（调用方不得修改）
func DefaultPack() (*Pack, error) {
	return loadDefaultPack()
}

// Registry 模板注册表：只增不改
type Registry struct {
	mu        sync.RWMutex
	templates map[string]entity.PromptTemplate
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]entity.PromptTemplate),
	}
}

// NewDefaultRegistry 返回已载入内置模板的注册表
func NewDefaultRegistry() (*Registry, error) {
	pack, err := DefaultPack()
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	for _, t := range pack.Templates {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 注册模板；同名模板已存在时返回 ErrConflict
func (r *Registry) Register(t entity.PromptTemplate) error {
	if r == nil {
		return fmt.Errorf("prompt registry is nil")
	}
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return apperrors.ErrInvalidParam.WithDetail("template name is required")
	}
	t.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[name]; ok {
		return apperrors.ErrConflict.WithDetail("template " + name + " already registered")
	}
	r.templates[name] = cloneTemplate(t)
	r.order = append(r.order, name)
	return nil
}

// Template 按名称查找模板
func (r *Registry) Template(name string) (entity.PromptTemplate, error) {
	if r == nil {
		return entity.PromptTemplate{}, fmt.Errorf("prompt registry is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[name]
	if !ok {
		return entity.PromptTemplate{}, apperrors.ErrTemplateNotFound.WithDetail(name)
	}
	return cloneTemplate(t), nil
}

// Names 按注册顺序返回模板名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// LoadTemplates 从 YAML 读取模板包并注册其中的模板，返回包内的全局约束
// 任一模板与已有模板重名时整体失败，不注册任何模板。
func (r *Registry) LoadTemplates(src io.Reader) ([]entity.PromptConstraint, error) {
	pack, err := ParsePack(src)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(pack.Templates))
	for _, t := range pack.Templates {
		if _, ok := r.templates[t.Name]; ok {
			return nil, apperrors.ErrConflict.WithDetail("template " + t.Name + " already registered")
		}
		if _, ok := seen[t.Name]; ok {
			return nil, apperrors.ErrConflict.WithDetail("template " + t.Name + " defined twice")
		}
		seen[t.Name] = struct{}{}
	}
	for _, t := range pack.Templates {
		r.templates[t.Name] = cloneTemplate(t)
		r.order = append(r.order, t.Name)
	}
	return pack.GlobalConstraints, nil
}

func cloneTemplate(t entity.PromptTemplate) entity.PromptTemplate {
	t.RequiredContext = append([]entity.ContextCategory(nil), t.RequiredContext...)
	t.OptionalContext = append([]entity.ContextCategory(nil), t.OptionalContext...)
	t.ConstraintTypes = append([]string(nil), t.ConstraintTypes...)
	return t
}
