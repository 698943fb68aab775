package main

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"

	"z-novel-context/internal/application/session"
	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <file|->",
	Short: "Split a manuscript into analysed chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

var contextCmd = &cobra.Command{
	Use:   "context <file|->",
	Short: "Show the chunks around a byte offset, nearest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runContext,
}

var promptCmd = &cobra.Command{
	Use:   "prompt <template> <file|->",
	Short: "Assemble a prompt for the context around a byte offset",
	Long: `Assembles a prompt from the named template using the chunks around
--position. Local constraints are given as type:rule, e.g.
  --constraint "character:Anna never lies"`,
	Args: cobra.ExactArgs(2),
	RunE: runPrompt,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List registered prompt templates",
	RunE:  runTemplates,
}

func init() {
	addChunkFlags(chunkCmd)

	addChunkFlags(contextCmd)
	contextCmd.Flags().Int("position", 0, "byte offset in the manuscript")
	contextCmd.Flags().Int("window", -1, "chunks on each side (defaults to chunking.context_window)")

	addChunkFlags(promptCmd)
	promptCmd.Flags().Int("position", 0, "byte offset in the manuscript")
	promptCmd.Flags().String("focus", "focus", "focus id, also used to look up context history")
	promptCmd.Flags().String("description", "", "focus description")
	promptCmd.Flags().StringSlice("critical", nil, "critical elements of the focus")
	promptCmd.Flags().StringArray("constraint", nil, "local constraint as type:rule")
	promptCmd.Flags().Bool("render", false, "also render system/user messages")
	promptCmd.Flags().Bool("remember", false, "store the selected context as history for the focus")

	rootCmd.AddCommand(chunkCmd, contextCmd, promptCmd, templatesCmd)
}

func runChunk(cmd *cobra.Command, args []string) error {
	text, err := readManuscript(cmd, args[0])
	if err != nil {
		return err
	}
	opts := chunkOptions(cmd)
	return withSession(cmd.Context(), func(m *session.Manager) error {
		if _, err := m.ChunkManuscript(cmd.Context(), text, opts); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), m.Indexer().Analyses())
	})
}

func runContext(cmd *cobra.Command, args []string) error {
	text, err := readManuscript(cmd, args[0])
	if err != nil {
		return err
	}
	opts := chunkOptions(cmd)
	position, _ := cmd.Flags().GetInt("position")
	window, _ := cmd.Flags().GetInt("window")
	if !cmd.Flags().Changed("window") {
		window = opts.ContextWindow
	}

	return withSession(cmd.Context(), func(m *session.Manager) error {
		if _, err := m.ChunkManuscript(cmd.Context(), text, opts); err != nil {
			return err
		}
		analyses, err := m.Indexer().GetContextForPosition(position, window)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), analyses)
	})
}

type promptOutput struct {
	Prompt   *entity.DynamicPrompt `json:"prompt"`
	Messages []*schema.Message     `json:"messages,omitempty"`
}

func runPrompt(cmd *cobra.Command, args []string) error {
	name := args[0]
	text, err := readManuscript(cmd, args[1])
	if err != nil {
		return err
	}
	opts := chunkOptions(cmd)
	flags := cmd.Flags()
	position, _ := flags.GetInt("position")
	render, _ := flags.GetBool("render")
	remember, _ := flags.GetBool("remember")
	raw, _ := flags.GetStringArray("constraint")
	local, err := parseConstraints(raw)
	if err != nil {
		return err
	}
	focus := entity.Focus{}
	focus.ID, _ = flags.GetString("focus")
	focus.Description, _ = flags.GetString("description")
	focus.CriticalElements, _ = flags.GetStringSlice("critical")

	ctx := cmd.Context()
	return withSession(ctx, func(m *session.Manager) error {
		if _, err := m.ChunkManuscript(ctx, text, opts); err != nil {
			return err
		}
		p, err := m.PromptForPosition(ctx, name, position, focus, local)
		if err != nil {
			return err
		}
		if remember {
			m.Assembler().UpdateContextHistory(focus.ID, p.ContextualElements)
		}
		out := promptOutput{Prompt: p}
		if render {
			if out.Messages, err = m.Assembler().Render(ctx, p, focus); err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

// parseConstraints 解析 type:rule 形式的本地约束
func parseConstraints(raw []string) ([]entity.PromptConstraint, error) {
	out := make([]entity.PromptConstraint, 0, len(raw))
	for _, r := range raw {
		typ, rule, ok := strings.Cut(r, ":")
		typ, rule = strings.TrimSpace(typ), strings.TrimSpace(rule)
		if !ok || typ == "" || rule == "" {
			return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("constraint %q must be type:rule", r))
		}
		out = append(out, entity.PromptConstraint{Type: typ, Rule: rule, Scope: entity.ScopeLocal})
	}
	return out, nil
}

func runTemplates(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(m *session.Manager) error {
		templates := make([]entity.PromptTemplate, 0)
		for _, name := range m.Assembler().Registry().Names() {
			t, err := m.Assembler().Registry().Template(name)
			if err != nil {
				return err
			}
			templates = append(templates, t)
		}
		return printJSON(cmd.OutOrStdout(), templates)
	})
}
