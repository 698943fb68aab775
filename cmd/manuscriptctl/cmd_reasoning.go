package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"z-novel-context/internal/application/reasoning"
	"z-novel-context/internal/application/session"
	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

var thinkCmd = &cobra.Command{
	Use:   "think <thought>",
	Short: "Record an analysis step on the current branch",
	Long: `Records an analysis step. A revision (--revises N) forks a new branch
from the first N-1 steps of the current branch and switches to it.`,
	Args: cobra.ExactArgs(1),
	RunE: runThink,
}

var historyCmd = &cobra.Command{
	Use:   "history [branch]",
	Short: "Show the steps of a branch (current branch by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var branchesCmd = &cobra.Command{
	Use:   "branches",
	Short: "List branches and the current branch",
	RunE:  runBranches,
}

var switchCmd = &cobra.Command{
	Use:   "switch <branch>",
	Short: "Make an existing branch current",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitch,
}

var mergeCmd = &cobra.Command{
	Use:   "merge <source> <target>",
	Short: "Combine two branches into a new merge branch",
	Long: `Creates a new branch holding the first at-1 steps of source followed by
the steps of target from position at onwards. The current branch is unchanged.`,
	Args: cobra.ExactArgs(2),
	RunE: runMerge,
}

var nextPromptCmd = &cobra.Command{
	Use:   "next-prompt",
	Short: "Assemble a sequential analysis prompt for the latest step",
	RunE:  runNextPrompt,
}

func init() {
	f := thinkCmd.Flags()
	f.Int("number", 0, "thought number (defaults to the next position on the branch)")
	f.Int("total", 1, "estimated total number of thoughts")
	f.Int("revises", 0, "thought number this step revises")
	f.Bool("done", false, "no further thought is needed")
	f.String("scene", "", "scene this step focuses on")
	f.StringSlice("characters", nil, "characters this step is about")
	f.StringSlice("themes", nil, "themes this step is about")
	f.StringSlice("plot-points", nil, "plot points this step is about")

	mergeCmd.Flags().Int("at", 1, "1-based merge point")
	_ = mergeCmd.MarkFlagRequired("at")

	nextPromptCmd.Flags().Bool("render", false, "also render system/user messages")

	rootCmd.AddCommand(thinkCmd, historyCmd, branchesCmd, switchCmd, mergeCmd, nextPromptCmd)
}

func runThink(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	in := reasoning.ThoughtInput{Thought: args[0]}
	in.ThoughtNumber, _ = f.GetInt("number")
	in.TotalThoughts, _ = f.GetInt("total")
	in.RevisesThought, _ = f.GetInt("revises")
	in.IsRevision = f.Changed("revises")
	done, _ := f.GetBool("done")
	in.NextThoughtNeeded = !done

	nc := &entity.NarrativeContext{}
	nc.FocusScene, _ = f.GetString("scene")
	nc.Characters, _ = f.GetStringSlice("characters")
	nc.Themes, _ = f.GetStringSlice("themes")
	nc.PlotPoints, _ = f.GetStringSlice("plot-points")
	if nc.FocusScene != "" || len(nc.Characters)+len(nc.Themes)+len(nc.PlotPoints) > 0 {
		in.NarrativeContext = nc
	}

	ctx := cmd.Context()
	return withSession(ctx, func(m *session.Manager) error {
		if in.ThoughtNumber == 0 {
			in.ThoughtNumber = len(m.Log().ThoughtHistory()) + 1
		}
		t, err := m.ProcessThought(ctx, in)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"thought":        t,
			"current_branch": m.Log().CurrentBranch(),
		})
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(m *session.Manager) error {
		name := m.Log().CurrentBranch()
		if len(args) == 1 {
			name = args[0]
		}
		history, ok := m.Log().BranchHistory(name)
		if !ok {
			return apperrors.ErrBranchNotFound.WithDetail(name)
		}
		return printJSON(cmd.OutOrStdout(), entity.Branch{Name: name, Thoughts: history})
	})
}

func runBranches(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(m *session.Manager) error {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"branches":       m.Log().Branches(),
			"current_branch": m.Log().CurrentBranch(),
		})
	})
}

func runSwitch(cmd *cobra.Command, args []string) error {
	return withSession(cmd.Context(), func(m *session.Manager) error {
		if !m.Log().SwitchBranch(args[0]) {
			return apperrors.ErrBranchNotFound.WithDetail(args[0])
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"current_branch": args[0]})
	})
}

func runMerge(cmd *cobra.Command, args []string) error {
	at, _ := cmd.Flags().GetInt("at")
	ctx := cmd.Context()
	return withSession(ctx, func(m *session.Manager) error {
		name, ok := m.Log().MergeBranches(ctx, args[0], args[1], at)
		if !ok {
			return apperrors.ErrBranchNotFound.WithDetail(fmt.Sprintf("%s or %s", args[0], args[1]))
		}
		history, _ := m.Log().BranchHistory(name)
		return printJSON(cmd.OutOrStdout(), entity.Branch{Name: name, Thoughts: history})
	})
}

func runNextPrompt(cmd *cobra.Command, args []string) error {
	render, _ := cmd.Flags().GetBool("render")
	ctx := cmd.Context()
	return withSession(ctx, func(m *session.Manager) error {
		p, err := m.PromptForLatestThought(ctx)
		if err != nil {
			return err
		}
		out := promptOutput{Prompt: p}
		if render {
			history := m.Log().ThoughtHistory()
			latest := history[len(history)-1]
			focus := entity.Focus{ID: fmt.Sprintf("thought_%d", latest.ThoughtNumber), Description: latest.Thought}
			if out.Messages, err = m.Assembler().Render(ctx, p, focus); err != nil {
				return err
			}
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}
