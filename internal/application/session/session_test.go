package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-context/internal/application/reasoning"
	"z-novel-context/internal/domain/entity"
	"z-novel-context/internal/domain/repository"
	"z-novel-context/internal/workflow/prompt"
	apperrors "z-novel-context/pkg/errors"
)

// memoryStore 内存快照存储
type memoryStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	loads atomic.Int32
	err   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Load(_ context.Context, id string) ([]byte, error) {
	s.loads.Add(1)
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.data[id], nil
}

func (s *memoryStore) Save(_ context.Context, id string, data []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = append([]byte(nil), data...)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

var _ repository.SnapshotStore = (*memoryStore)(nil)

func namesExtractor(names ...string) repository.EntityExtractor {
	return repository.EntityExtractorFunc(func(_ context.Context, text string) (*entity.ExtractedEntities, error) {
		out := &entity.ExtractedEntities{}
		for _, n := range names {
			if strings.Contains(text, n) {
				out.People = append(out.People, n)
			}
		}
		return out, nil
	})
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	a, err := prompt.NewDefaultAssembler()
	require.NoError(t, err)
	return NewManager(namesExtractor("Anna", "Ben", "Cara"), a, 1)
}

func newFactory(t *testing.T) Factory {
	return func() (*Manager, error) {
		return newTestManager(t), nil
	}
}

func thought(n int, text string) reasoning.ThoughtInput {
	return reasoning.ThoughtInput{Thought: text, ThoughtNumber: n, TotalThoughts: 3, NextThoughtNeeded: true}
}

func TestManager_PromptForPosition(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	text := "Anna met Ben at the gate. Cara watched them.\n\n***\n\nLater that night Ben left alone."
	opts := entity.ChunkOptions{MaxChunkSize: 1000, PreserveScenes: true, PreserveChapters: true, ContextWindow: 1}
	chunks, err := m.ChunkManuscript(ctx, text, opts)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	p, err := m.PromptForPosition(ctx, "scene_analysis", 0, entity.Focus{ID: "scene-1", CriticalElements: []string{"Anna"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "scene_analysis", p.Template)

	var contents []string
	for _, el := range p.ContextualElements {
		contents = append(contents, el.Content)
	}
	assert.Contains(t, contents, "Anna")
	assert.Contains(t, p.Objectives[0], "Anna")

	t.Run("unknown template", func(t *testing.T) {
		_, err := m.PromptForPosition(ctx, "missing", 0, entity.Focus{ID: "x"}, nil)
		assert.True(t, errors.Is(err, apperrors.ErrTemplateNotFound))
	})

	t.Run("empty manuscript", func(t *testing.T) {
		empty := newTestManager(t)
		p, err := empty.PromptForPosition(ctx, "scene_analysis", 10, entity.Focus{ID: "x"}, nil)
		require.NoError(t, err)
		assert.Empty(t, p.ContextualElements)
	})
}

func TestNewManager_NilAssemblerUsesBuiltinTemplates(t *testing.T) {
	m := NewManager(nil, nil, 1)
	ctx := context.Background()

	_, err := m.ProcessThought(ctx, thought(1, "Opening establishes the harbor"))
	require.NoError(t, err)

	p, err := m.PromptForLatestThought(ctx)
	require.NoError(t, err)
	assert.Equal(t, prompt.SequentialTemplate, p.Template)
}

func TestManager_PromptForLatestThought(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.PromptForLatestThought(ctx)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = m.ProcessThought(ctx, thought(1, "Opening establishes the harbor"))
	require.NoError(t, err)
	_, err = m.ProcessThought(ctx, thought(2, "Anna distrusts Ben"))
	require.NoError(t, err)

	p, err := m.PromptForLatestThought(ctx)
	require.NoError(t, err)
	assert.Equal(t, prompt.SequentialTemplate, p.Template)
	require.Len(t, p.ContextualElements, 1)
	assert.Equal(t, "thought_1", p.ContextualElements[0].ID)
}

func TestManager_SnapshotRestore(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	_, err := m.ProcessThought(ctx, thought(1, "a"))
	require.NoError(t, err)
	_, err = m.ProcessThought(ctx, reasoning.ThoughtInput{Thought: "a'", ThoughtNumber: 2, TotalThoughts: 3, IsRevision: true, RevisesThought: 1})
	require.NoError(t, err)
	m.Assembler().UpdateContextHistory("scene-1", []entity.ContextElement{{ID: "h1", Type: entity.ElementCharacter, Content: "Anna", Relevance: 0.9}})
	m.Assembler().AddGlobalConstraint(entity.PromptConstraint{Type: "style", Rule: "Past tense"})

	snap := m.Snapshot()

	restored := newTestManager(t)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, m.Log().CurrentBranch(), restored.Log().CurrentBranch())
	assert.ElementsMatch(t, m.Log().Branches(), restored.Log().Branches())
	assert.Len(t, restored.Assembler().ContextHistory("scene-1"), 1)

	var rules []string
	for _, c := range restored.Assembler().GlobalConstraints() {
		rules = append(rules, c.Rule)
	}
	assert.Contains(t, rules, "Past tense")
	assert.Contains(t, rules, "Preserve established facts")

	t.Run("broken snapshot is rejected", func(t *testing.T) {
		bad := &Snapshot{Log: &reasoning.Snapshot{Current: "nowhere"}}
		err := newTestManager(t).Restore(bad)
		assert.True(t, errors.Is(err, apperrors.ErrBranchNotFound))
	})
}

func TestRegistry_OpenIsSingleFlight(t *testing.T) {
	store := newMemoryStore()
	r := NewRegistry(store, newFactory(t), Options{TTL: time.Minute})

	const n = 16
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.Open(context.Background(), "s1")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, int32(1), store.loads.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SaveAndReopen(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	r := NewRegistry(store, newFactory(t), Options{TTL: time.Minute})

	h, err := r.Open(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, h.Do(func(m *Manager) error {
		_, err := m.ProcessThought(ctx, thought(1, "first"))
		return err
	}))
	require.NoError(t, r.Close(ctx, "s1"))
	assert.Equal(t, 0, r.Len())
	assert.NotEmpty(t, store.data["s1"])

	h, err = r.Open(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, h.Do(func(m *Manager) error {
		history := m.Log().ThoughtHistory()
		require.Len(t, history, 1)
		assert.Equal(t, "first", history[0].Thought)
		return nil
	}))

	require.NoError(t, r.Discard(ctx, "s1"))
	assert.Empty(t, store.data["s1"])
}

func TestRegistry_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty id", func(t *testing.T) {
		r := NewRegistry(nil, newFactory(t), Options{})
		_, err := r.Open(ctx, "")
		assert.True(t, errors.Is(err, apperrors.ErrInvalidParam))
	})

	t.Run("save unknown session", func(t *testing.T) {
		r := NewRegistry(nil, newFactory(t), Options{})
		err := r.Save(ctx, "ghost")
		assert.True(t, errors.Is(err, apperrors.ErrSessionNotFound))
	})

	t.Run("store failure is propagated", func(t *testing.T) {
		store := newMemoryStore()
		store.err = apperrors.ErrCache.WithDetail("down")
		r := NewRegistry(store, newFactory(t), Options{})
		_, err := r.Open(ctx, "s1")
		assert.True(t, errors.Is(err, apperrors.ErrCache))
		assert.Equal(t, 0, r.Len())
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		store := newMemoryStore()
		store.data["s1"] = []byte("{not json")
		r := NewRegistry(store, newFactory(t), Options{})
		_, err := r.Open(ctx, "s1")
		assert.True(t, errors.Is(err, apperrors.ErrInternalError))
	})

	t.Run("memory only registry", func(t *testing.T) {
		r := NewRegistry(nil, newFactory(t), Options{})
		_, err := r.Open(ctx, "s1")
		require.NoError(t, err)
		assert.NoError(t, r.Save(ctx, "s1"))
		assert.NoError(t, r.Close(ctx, "s1"))
	})
}
