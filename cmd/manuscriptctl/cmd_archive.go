package main

import (
	"context"

	"github.com/spf13/cobra"

	"z-novel-context/internal/application/session"
	"z-novel-context/internal/domain/repository"
	"z-novel-context/internal/infrastructure/persistence/postgres"
	"z-novel-context/pkg/logger"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive chunk analyses in PostgreSQL",
}

var archiveSaveCmd = &cobra.Command{
	Use:   "save <manuscript-id> <file|->",
	Short: "Chunk a manuscript and replace its archived analyses",
	Args:  cobra.ExactArgs(2),
	RunE:  runArchiveSave,
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <manuscript-id>",
	Short: "Print the archived analyses of a manuscript",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveShow,
}

var archiveDeleteCmd = &cobra.Command{
	Use:   "delete <manuscript-id>",
	Short: "Delete the archived analyses of a manuscript",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveDelete,
}

func init() {
	addChunkFlags(archiveSaveCmd)
	archiveCmd.AddCommand(archiveSaveCmd, archiveShowCmd, archiveDeleteCmd)
	rootCmd.AddCommand(archiveCmd)
}

// withArchive 连接数据库并确保归档表存在
func withArchive(ctx context.Context, fn func(repo repository.ChunkArchiveRepository) error) error {
	client, err := postgres.NewClient(&app.cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer client.Close()

	repo := postgres.NewChunkArchiveRepository(client)
	if err := repo.Migrate(ctx); err != nil {
		return err
	}
	return fn(repo)
}

func runArchiveSave(cmd *cobra.Command, args []string) error {
	manuscriptID := args[0]
	text, err := readManuscript(cmd, args[1])
	if err != nil {
		return err
	}
	opts := chunkOptions(cmd)
	ctx := logger.WithContext(cmd.Context(), logger.ManuscriptIDKey, manuscriptID)

	return withSession(ctx, func(m *session.Manager) error {
		if _, err := m.ChunkManuscript(ctx, text, opts); err != nil {
			return err
		}
		analyses := m.Indexer().Analyses()
		err := withArchive(ctx, func(repo repository.ChunkArchiveRepository) error {
			return repo.SaveManuscript(ctx, manuscriptID, analyses)
		})
		if err != nil {
			return err
		}
		logger.Info(ctx, "manuscript archived", "chunks", len(analyses))
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"manuscript_id": manuscriptID,
			"chunks":        len(analyses),
		})
	})
}

func runArchiveShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withArchive(ctx, func(repo repository.ChunkArchiveRepository) error {
		analyses, err := repo.ListByManuscript(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), analyses)
	})
}

func runArchiveDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withArchive(ctx, func(repo repository.ChunkArchiveRepository) error {
		return repo.DeleteManuscript(ctx, args[0])
	})
}
