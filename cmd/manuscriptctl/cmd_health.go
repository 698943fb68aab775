package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"z-novel-context/internal/infrastructure/persistence/postgres"
	"z-novel-context/internal/infrastructure/persistence/redis"
	apperrors "z-novel-context/pkg/errors"
	"z-novel-context/pkg/logger"
)

const (
	statusUp   = "up"
	statusDown = "down"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the Redis snapshot store and the PostgreSQL archive",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

// healthChecker 可做健康检查的存储客户端
type healthChecker interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// componentHealth 单个依赖的检查结果
type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Stats  any    `json:"stats,omitempty"`
}

// checkComponent 连接、检查并读取连接池统计；stats 可为 nil
func checkComponent[C healthChecker](ctx context.Context, open func() (C, error), stats func(C) (any, error)) componentHealth {
	c, err := open()
	if err != nil {
		return componentHealth{Status: statusDown, Error: err.Error()}
	}
	defer c.Close()

	if err := c.HealthCheck(ctx); err != nil {
		return componentHealth{Status: statusDown, Error: err.Error()}
	}
	h := componentHealth{Status: statusUp}
	if stats != nil {
		s, err := stats(c)
		if err != nil {
			h.Error = err.Error()
		} else {
			h.Stats = s
		}
	}
	return h
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	names := []string{"redis", "postgres"}
	report := map[string]componentHealth{
		"redis": checkComponent(ctx,
			func() (*redis.Client, error) { return redis.NewClient(&app.cfg.Cache.Redis) },
			func(c *redis.Client) (any, error) { return c.Redis().PoolStats(), nil },
		),
		"postgres": checkComponent(ctx,
			func() (*postgres.Client, error) { return postgres.NewClient(&app.cfg.Database.Postgres) },
			func(c *postgres.Client) (any, error) {
				s, err := c.Stats()
				return s, err
			},
		),
	}
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	var down []string
	for _, name := range names {
		if h := report[name]; h.Status != statusUp {
			logger.Warn(ctx, "dependency unhealthy", "component", name, "error", h.Error)
			down = append(down, name)
		}
	}
	if len(down) > 0 {
		return apperrors.ErrInternalError.WithDetail("unhealthy: " + strings.Join(down, ", "))
	}
	return nil
}
